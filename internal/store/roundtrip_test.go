package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/chat"
	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/presence"
	"github.com/nzuziariete/Chat-Aribeth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardOutbound struct{}

func (discardOutbound) Deliver(models.Event, ...string) {}

func TestRoundTrip_SendPersistFetch(t *testing.T) {
	db, err := store.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	defer db.Close()

	persister := store.NewPersister(db, store.DefaultPersisterConfig(), nil)
	require.NoError(t, persister.Start())

	var tick time.Time
	clock := func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	tick = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	svc := chat.NewService(presence.NewRegistry(), discardOutbound{}, persister, chat.WithClock(clock))
	require.NoError(t, svc.Handle("A", chat.Identify{DisplayName: "alice"}))
	require.NoError(t, svc.Handle("B", chat.Identify{DisplayName: "bob", AvatarColor: "#FF0000"}))

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Handle("A", chat.SendBroadcast{Content: fmt.Sprintf("hello %d", i)}))
	}
	require.NoError(t, svc.Handle("B", chat.SendDirect{RecipientConnectionID: "A", Content: "psst"}))

	require.NoError(t, persister.Stop(context.Background()))
	assert.Equal(t, uint64(6), persister.Stats().Persisted)

	general, err := db.GeneralHistory(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, general, 5)
	for i, m := range general {
		assert.Equal(t, fmt.Sprintf("hello %d", 4-i), m.Content)
		assert.Equal(t, "alice", m.Sender)
		assert.Equal(t, "A", m.SenderConnectionID)
		assert.Equal(t, models.DefaultAvatarColor, m.AvatarColor)
		if i > 0 {
			assert.True(t, general[i-1].Timestamp.After(m.Timestamp))
		}
	}

	direct, err := db.DirectHistory(context.Background(), "A", 0)
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, "psst", direct[0].Content)
	assert.Equal(t, "bob", direct[0].Sender)
	assert.Equal(t, "#FF0000", direct[0].AvatarColor)
	require.NotNil(t, direct[0].RecipientConnectionID)
	assert.Equal(t, "A", *direct[0].RecipientConnectionID)
	assert.True(t, direct[0].IsPrivate)
}
