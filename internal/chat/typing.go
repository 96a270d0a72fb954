package chat

import (
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/presence"
)

// TypingTracker relays typing indicators between participants. It keeps no
// timers; clients are expected to send isTyping=false after a quiet period.
// A missing entry means "not typing".
type TypingTracker struct {
	registry *presence.Registry
	out      Outbound
	now      func() time.Time
	active   map[string]struct{}
}

// NewTypingTracker creates a TypingTracker.
func NewTypingTracker(registry *presence.Registry, out Outbound, now func() time.Time) *TypingTracker {
	if now == nil {
		now = time.Now
	}
	return &TypingTracker{
		registry: registry,
		out:      out,
		now:      now,
		active:   make(map[string]struct{}),
	}
}

// SetTyping records the indicator for connectionID and relays it to every
// other participant.
func (t *TypingTracker) SetTyping(connectionID string, isTyping bool) error {
	p, ok := t.registry.Lookup(connectionID)
	if !ok {
		return ErrUnknownSender
	}

	if isTyping {
		t.active[connectionID] = struct{}{}
	} else {
		delete(t.active, connectionID)
	}

	t.relay(p, isTyping)
	return nil
}

// Clear drops the indicator for a connection that is going away. Peers are
// told the participant stopped typing if it was marked as typing. Must be
// called before the participant is unregistered.
func (t *TypingTracker) Clear(connectionID string) {
	if _, ok := t.active[connectionID]; !ok {
		return
	}
	delete(t.active, connectionID)

	if p, ok := t.registry.Lookup(connectionID); ok {
		t.relay(p, false)
	}
}

// IsTyping reports whether connectionID is currently marked as typing.
func (t *TypingTracker) IsTyping(connectionID string) bool {
	_, ok := t.active[connectionID]
	return ok
}

func (t *TypingTracker) relay(p models.Participant, isTyping bool) {
	t.out.Deliver(newEvent(models.EventTypingChanged, models.TypingChangedData{
		ConnectionID: p.ConnectionID,
		DisplayName:  p.DisplayName,
		IsTyping:     isTyping,
	}, t.now()), t.registry.ConnectionIDs(p.ConnectionID)...)
}
