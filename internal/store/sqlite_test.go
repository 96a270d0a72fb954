package store

import (
	"context"
	"testing"
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates an in-memory SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := OpenSQLite(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func broadcastAt(id int64, sender, content string, offset time.Duration) models.Message {
	return models.Message{
		ID:                 id,
		Sender:             sender,
		SenderConnectionID: "conn-" + sender,
		Content:            content,
		Timestamp:          base.Add(offset),
		AvatarColor:        "#111",
	}
}

func directAt(id int64, from, to, content string, offset time.Duration) models.Message {
	recipient := to
	return models.Message{
		ID:                    id,
		Sender:                from,
		SenderConnectionID:    from,
		RecipientConnectionID: &recipient,
		Content:               content,
		Timestamp:             base.Add(offset),
		IsPrivate:             true,
	}
}

func TestSQLiteStore_SaveAndGeneralHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	msgs := []models.Message{
		broadcastAt(1, "alice", "first", 0),
		broadcastAt(3, "alice", "third", 2*time.Second),
		broadcastAt(2, "bob", "second", 1500*time.Millisecond),
		directAt(4, "A", "B", "private", 3*time.Second),
	}
	for _, m := range msgs {
		require.NoError(t, s.Save(ctx, m))
	}

	history, err := s.GeneralHistory(ctx, 50)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, "third", history[0].Content)
	assert.Equal(t, "second", history[1].Content)
	assert.Equal(t, "first", history[2].Content)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].Timestamp.After(history[i].Timestamp), "history must be strictly descending")
	}

	got := history[1]
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, "bob", got.Sender)
	assert.Equal(t, "conn-bob", got.SenderConnectionID)
	assert.Nil(t, got.RecipientConnectionID)
	assert.False(t, got.IsPrivate)
	assert.Equal(t, "#111", got.AvatarColor)
	assert.True(t, base.Add(1500*time.Millisecond).Equal(got.Timestamp))
}

func TestSQLiteStore_GeneralHistoryLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, s.Save(ctx, broadcastAt(int64(i+1), "alice", "m", time.Duration(i)*time.Millisecond)))
	}

	history, err := s.GeneralHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, DefaultHistoryLimit)
	assert.Equal(t, int64(60), history[0].ID)
	assert.Equal(t, int64(11), history[DefaultHistoryLimit-1].ID)

	history, err = s.GeneralHistory(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestSQLiteStore_DirectHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, directAt(1, "A", "B", "a to b", 0)))
	require.NoError(t, s.Save(ctx, directAt(2, "B", "A", "b to a", time.Second)))
	require.NoError(t, s.Save(ctx, directAt(3, "C", "D", "c to d", 2*time.Second)))
	require.NoError(t, s.Save(ctx, broadcastAt(4, "A", "public", 3*time.Second)))

	t.Run("sender or recipient", func(t *testing.T) {
		history, err := s.DirectHistory(ctx, "A", 50)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "b to a", history[0].Content)
		assert.Equal(t, "a to b", history[1].Content)
		for _, m := range history {
			assert.True(t, m.IsPrivate)
			require.NotNil(t, m.RecipientConnectionID)
		}
	})

	t.Run("unrelated connection", func(t *testing.T) {
		history, err := s.DirectHistory(ctx, "Z", 50)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, broadcastAt(7, "alice", "original", 0)))
	err := s.Save(ctx, broadcastAt(7, "alice", "copy", time.Second))
	require.ErrorIs(t, err, ErrDuplicateMessage)

	history, err := s.GeneralHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "original", history[0].Content)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
