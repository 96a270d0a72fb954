package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	to    string
	event models.Event
}

// recordingOutbound captures every delivery in order.
type recordingOutbound struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (r *recordingOutbound) Deliver(event models.Event, connectionIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range connectionIDs {
		r.deliveries = append(r.deliveries, delivery{to: id, event: event})
	}
}

func (r *recordingOutbound) to(id string) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, d := range r.deliveries {
		if d.to == id {
			out = append(out, d.event)
		}
	}
	return out
}

func (r *recordingOutbound) ofType(id, eventType string) []models.Event {
	var out []models.Event
	for _, ev := range r.to(id) {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingOutbound) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}

// recordingPersister stores queued messages, optionally failing.
type recordingPersister struct {
	mu       sync.Mutex
	messages []models.Message
	err      error
}

func (p *recordingPersister) Enqueue(msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPersister) queued() []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Message(nil), p.messages...)
}

// stepClock advances one millisecond per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	base := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

type fixture struct {
	svc      *Service
	out      *recordingOutbound
	persist  *recordingPersister
	registry *presence.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	out := &recordingOutbound{}
	persist := &recordingPersister{}
	registry := presence.NewRegistry()
	svc := NewService(registry, out, persist, WithClock(stepClock()))
	return &fixture{svc: svc, out: out, persist: persist, registry: registry}
}

func (f *fixture) identify(t *testing.T, id, name, color string) {
	t.Helper()
	require.NoError(t, f.svc.Handle(id, Identify{DisplayName: name, AvatarColor: color}))
}

func messageOf(t *testing.T, ev models.Event) models.Message {
	t.Helper()
	msg, ok := ev.Data.(models.Message)
	require.True(t, ok, "expected models.Message, got %T", ev.Data)
	return msg
}

func TestService_AliceBobScenario(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "#111")
	f.identify(t, "B", "bob", "#222")
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", SendBroadcast{Content: "hi"}))

	for _, id := range []string{"A", "B"} {
		events := f.out.ofType(id, models.EventMessageBroadcast)
		require.Len(t, events, 1, "connection %s", id)
		msg := messageOf(t, events[0])
		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, "A", msg.SenderConnectionID)
		assert.Equal(t, "hi", msg.Content)
		assert.False(t, msg.IsPrivate)
		assert.Nil(t, msg.RecipientConnectionID)
		assert.Equal(t, "#111", msg.AvatarColor)
	}
	assert.Empty(t, f.out.to("C"))

	require.NoError(t, f.svc.Handle("A", SendDirect{RecipientConnectionID: "B", Content: "secret"}))

	for _, id := range []string{"A", "B"} {
		events := f.out.ofType(id, models.EventMessageDirect)
		require.Len(t, events, 1, "connection %s", id)
		msg := messageOf(t, events[0])
		assert.True(t, msg.IsPrivate)
		assert.Equal(t, "secret", msg.Content)
		require.NotNil(t, msg.RecipientConnectionID)
		assert.Equal(t, "B", *msg.RecipientConnectionID)
	}
	assert.Empty(t, f.out.to("C"))

	queued := f.persist.queued()
	require.Len(t, queued, 2)
	assert.False(t, queued[0].IsPrivate)
	assert.True(t, queued[1].IsPrivate)
	assert.Less(t, queued[0].ID, queued[1].ID)
}

func TestService_DirectToUnknownRecipient(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "#111")
	f.identify(t, "B", "bob", "#222")
	f.out.reset()

	err := f.svc.Handle("A", SendDirect{RecipientConnectionID: "ghost", Content: "anyone?"})
	require.ErrorIs(t, err, ErrRecipientOffline)

	events := f.out.to("A")
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSendRejected, events[0].Type)
	rejection, ok := events[0].Data.(models.RejectionData)
	require.True(t, ok)
	assert.Equal(t, models.RejectRecipientOffline, rejection.Kind)

	assert.Empty(t, f.out.to("B"))
	assert.Empty(t, f.out.to("ghost"))
	assert.Empty(t, f.persist.queued())
}

func TestService_DisconnectNotifiesRemaining(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "#111")
	f.identify(t, "B", "bob", "#222")
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", Disconnect{}))
	require.NoError(t, f.svc.Handle("A", Disconnect{}))

	left := f.out.ofType("B", models.EventParticipantLeft)
	require.Len(t, left, 1)
	data, ok := left[0].Data.(models.PresenceData)
	require.True(t, ok)
	assert.Equal(t, "alice", data.DisplayName)
	assert.Equal(t, "A", data.ConnectionID)
	assert.Empty(t, f.out.to("A"))

	f.out.reset()
	err := f.svc.Handle("B", SendDirect{RecipientConnectionID: "A", Content: "still there?"})
	require.ErrorIs(t, err, ErrRecipientOffline)
	require.Len(t, f.out.to("B"), 1)
	assert.Equal(t, models.EventSendRejected, f.out.to("B")[0].Type)
	assert.Empty(t, f.out.to("A"))
	assert.Empty(t, f.persist.queued())
}

func TestService_DisconnectBeforeIdentifyIsSilent(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "B", "bob", "#222")
	f.out.reset()

	require.NoError(t, f.svc.Handle("C", Disconnect{}))
	assert.Empty(t, f.out.deliveries)
}

func TestService_IdentifyValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace", "     ", true},
		{"one char", "a", true},
		{"two chars", "ab", true},
		{"two chars padded", "  ab  ", true},
		{"exactly three", "abc", false},
		{"three padded", "  abc  ", false},
		{"multibyte", "ção", false},
		{"long", "alexandria", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.svc.Handle("X", Identify{DisplayName: tt.input})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidUsername)
				assert.Equal(t, 0, f.registry.Len())
				rejected := f.out.ofType("X", models.EventIdentifyRejected)
				require.Len(t, rejected, 1)
				assert.Equal(t, models.RejectInvalidUsername, rejected[0].Data.(models.RejectionData).Kind)
				return
			}
			require.NoError(t, err)
			p, ok := f.registry.Lookup("X")
			require.True(t, ok)
			assert.Equal(t, strings.TrimSpace(tt.input), p.DisplayName)
		})
	}
}

func TestService_IdentifyAnnouncesAndSnapshots(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "#111")

	snap := f.out.ofType("A", models.EventPresenceSnapshot)
	require.Len(t, snap, 1)
	assert.Len(t, snap[0].Data.([]models.Participant), 1)
	assert.Empty(t, f.out.ofType("A", models.EventParticipantJoined))

	f.out.reset()
	f.identify(t, "B", "bob", "")

	joined := f.out.ofType("A", models.EventParticipantJoined)
	require.Len(t, joined, 1)
	p := joined[0].Data.(models.Participant)
	assert.Equal(t, "bob", p.DisplayName)
	assert.Equal(t, models.DefaultAvatarColor, p.AvatarColor)

	assert.Empty(t, f.out.ofType("B", models.EventParticipantJoined))
	assert.Empty(t, f.out.ofType("A", models.EventPresenceSnapshot))

	snap = f.out.ofType("B", models.EventPresenceSnapshot)
	require.Len(t, snap, 1)
	roster := snap[0].Data.([]models.Participant)
	require.Len(t, roster, 2)
	assert.Equal(t, "alice", roster[0].DisplayName)
	assert.Equal(t, "bob", roster[1].DisplayName)
}

func TestService_BroadcastReachesEveryParticipantOnce(t *testing.T) {
	f := newFixture(t)
	const n = 7
	for i := 0; i < n; i++ {
		f.identify(t, fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i), "")
	}
	f.out.reset()

	require.NoError(t, f.svc.Handle("c3", SendBroadcast{Content: "hello all"}))

	require.Len(t, f.out.deliveries, n)
	seen := make(map[string]int)
	for _, d := range f.out.deliveries {
		seen[d.to]++
		assert.Equal(t, models.EventMessageBroadcast, d.event.Type)
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[fmt.Sprintf("c%d", i)])
	}
}

func TestService_DirectReachesExactlyTwo(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"A", "B", "C", "D"} {
		f.identify(t, id, "user-"+id, "")
	}
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", SendDirect{RecipientConnectionID: "C", Content: "psst"}))

	require.Len(t, f.out.deliveries, 2)
	assert.Len(t, f.out.to("A"), 1)
	assert.Len(t, f.out.to("C"), 1)
}

func TestService_DirectToSelfDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "")
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", SendDirect{RecipientConnectionID: "A", Content: "note to self"}))
	assert.Len(t, f.out.to("A"), 1)
}

func TestService_UnknownSenderIsDropped(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "B", "bob", "")
	f.out.reset()

	assert.ErrorIs(t, f.svc.Handle("ghost", SendBroadcast{Content: "boo"}), ErrUnknownSender)
	assert.ErrorIs(t, f.svc.Handle("ghost", SendDirect{RecipientConnectionID: "B", Content: "boo"}), ErrUnknownSender)
	assert.ErrorIs(t, f.svc.Handle("ghost", SetTyping{IsTyping: true}), ErrUnknownSender)
	assert.ErrorIs(t, f.svc.Handle("ghost", UpdateIdentity{DisplayName: "ghosty"}), ErrUnknownSender)

	assert.Empty(t, f.out.deliveries)
	assert.Empty(t, f.persist.queued())
}

func TestService_EmptyContentIsDropped(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "")
	f.identify(t, "B", "bob", "")
	f.out.reset()

	assert.ErrorIs(t, f.svc.Handle("A", SendBroadcast{Content: "   "}), ErrEmptyContent)
	assert.ErrorIs(t, f.svc.Handle("A", SendDirect{RecipientConnectionID: "B", Content: ""}), ErrEmptyContent)
	assert.Empty(t, f.out.deliveries)
	assert.Empty(t, f.persist.queued())
}

func TestService_PersistenceFailureDoesNotBlockDelivery(t *testing.T) {
	f := newFixture(t)
	f.persist.err = errors.New("disk full")
	f.identify(t, "A", "alice", "")
	f.identify(t, "B", "bob", "")
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", SendBroadcast{Content: "hi"}))
	assert.Len(t, f.out.ofType("B", models.EventMessageBroadcast), 1)
}

func TestService_PerSenderOrder(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "")
	f.identify(t, "B", "bob", "")
	f.out.reset()

	for i := 0; i < 20; i++ {
		require.NoError(t, f.svc.Handle("A", SendBroadcast{Content: fmt.Sprintf("m%d", i)}))
	}

	events := f.out.ofType("B", models.EventMessageBroadcast)
	require.Len(t, events, 20)
	var lastID int64
	for i, ev := range events {
		msg := messageOf(t, ev)
		assert.Equal(t, fmt.Sprintf("m%d", i), msg.Content)
		assert.Greater(t, msg.ID, lastID)
		lastID = msg.ID
	}
}

func TestService_Typing(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "")
	f.identify(t, "B", "bob", "")
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", SetTyping{IsTyping: true}))
	assert.True(t, f.svc.IsTyping("A"))

	events := f.out.ofType("B", models.EventTypingChanged)
	require.Len(t, events, 1)
	data := events[0].Data.(models.TypingChangedData)
	assert.Equal(t, models.TypingChangedData{ConnectionID: "A", DisplayName: "alice", IsTyping: true}, data)
	assert.Empty(t, f.out.to("A"))

	require.NoError(t, f.svc.Handle("A", SetTyping{IsTyping: false}))
	assert.False(t, f.svc.IsTyping("A"))
	events = f.out.ofType("B", models.EventTypingChanged)
	require.Len(t, events, 2)
	assert.False(t, events[1].Data.(models.TypingChangedData).IsTyping)
}

func TestService_DisconnectWhileTypingClearsIndicator(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "")
	f.identify(t, "B", "bob", "")
	require.NoError(t, f.svc.Handle("A", SetTyping{IsTyping: true}))
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", Disconnect{}))

	events := f.out.to("B")
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTypingChanged, events[0].Type)
	assert.False(t, events[0].Data.(models.TypingChangedData).IsTyping)
	assert.Equal(t, models.EventParticipantLeft, events[1].Type)
	assert.False(t, f.svc.IsTyping("A"))
}

func TestService_UpdateIdentity(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "#111")
	f.identify(t, "B", "bob", "#222")
	f.out.reset()

	require.NoError(t, f.svc.Handle("A", UpdateIdentity{DisplayName: " alicia ", AvatarColor: "#333"}))

	p, ok := f.registry.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "alicia", p.DisplayName)
	assert.Equal(t, "#333", p.AvatarColor)
	assert.Equal(t, 2, f.registry.Len())

	updated := f.out.ofType("B", models.EventParticipantUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, "alicia", updated[0].Data.(models.PresenceData).DisplayName)
	assert.Empty(t, f.out.ofType("B", models.EventParticipantJoined))
	assert.Empty(t, f.out.ofType("B", models.EventParticipantLeft))
	assert.Empty(t, f.out.to("A"))

	require.NoError(t, f.svc.Handle("A", SendBroadcast{Content: "renamed"}))
	msg := messageOf(t, f.out.ofType("B", models.EventMessageBroadcast)[0])
	assert.Equal(t, "alicia", msg.Sender)

	t.Run("invalid name keeps old record", func(t *testing.T) {
		f.out.reset()
		err := f.svc.Handle("A", UpdateIdentity{DisplayName: "x"})
		require.ErrorIs(t, err, ErrInvalidUsername)
		p, _ := f.registry.Lookup("A")
		assert.Equal(t, "alicia", p.DisplayName)
		assert.Len(t, f.out.ofType("A", models.EventIdentifyRejected), 1)
		assert.Empty(t, f.out.to("B"))
	})
}

func TestService_ReidentifyOverwrites(t *testing.T) {
	f := newFixture(t)
	f.identify(t, "A", "alice", "")
	f.identify(t, "A", "alice2", "")

	assert.Equal(t, 1, f.registry.Len())
	p, _ := f.registry.Lookup("A")
	assert.Equal(t, "alice2", p.DisplayName)
}

func TestService_UnknownCommand(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Handle("A", nil), ErrUnknownCommand)
}

type panickingOutbound struct{}

func (panickingOutbound) Deliver(models.Event, ...string) { panic("socket exploded") }

func TestService_RecoversFromPanics(t *testing.T) {
	svc := NewService(presence.NewRegistry(), panickingOutbound{}, &recordingPersister{})

	err := svc.Handle("A", Identify{DisplayName: "alice"})
	require.Error(t, err)

	// The service stays usable afterwards.
	assert.ErrorIs(t, svc.Handle("B", SendBroadcast{Content: "x"}), ErrUnknownSender)
}
