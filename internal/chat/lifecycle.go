package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/presence"
)

// MinDisplayNameLength is the minimum number of characters in a trimmed
// display name.
const MinDisplayNameLength = 3

// ValidateDisplayName trims name and checks its length.
func ValidateDisplayName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < MinDisplayNameLength {
		return "", fmt.Errorf("%w: must be at least %d characters", ErrInvalidUsername, MinDisplayNameLength)
	}
	return trimmed, nil
}

// Lifecycle moves connections between Connected, Identified and
// Disconnected, keeping the registry and peers in sync.
type Lifecycle struct {
	registry *presence.Registry
	out      Outbound
	typing   *TypingTracker
	now      func() time.Time
	logger   *slog.Logger
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(registry *presence.Registry, out Outbound, typing *TypingTracker, now func() time.Time, logger *slog.Logger) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		registry: registry,
		out:      out,
		typing:   typing,
		now:      now,
		logger:   logger,
	}
}

// Identify registers connectionID as a participant, announces it to the
// other participants and sends the full roster to the new participant.
func (l *Lifecycle) Identify(connectionID, displayName, avatarColor string) (models.Participant, error) {
	name, err := ValidateDisplayName(displayName)
	if err != nil {
		l.reject(connectionID, err)
		return models.Participant{}, err
	}

	p, err := l.registry.Register(connectionID, name, avatarColor)
	if errors.Is(err, presence.ErrDuplicateConnection) {
		l.logger.Warn("[LIFECYCLE] Connection identified twice, record overwritten", "connection", connectionID, "name", name)
	}

	l.out.Deliver(l.event(models.EventParticipantJoined, p), l.registry.ConnectionIDs(connectionID)...)
	l.out.Deliver(l.event(models.EventPresenceSnapshot, l.registry.ListAll()), connectionID)

	l.logger.Info("[LIFECYCLE] Participant joined", "connection", connectionID, "name", name, "online", l.registry.Len())
	return p, nil
}

// UpdateIdentity changes the name or color of an identified participant in
// place. No join or leave event is emitted.
func (l *Lifecycle) UpdateIdentity(connectionID, displayName, avatarColor string) (models.Participant, error) {
	if _, ok := l.registry.Lookup(connectionID); !ok {
		return models.Participant{}, ErrUnknownSender
	}

	name, err := ValidateDisplayName(displayName)
	if err != nil {
		l.reject(connectionID, err)
		return models.Participant{}, err
	}

	p, ok := l.registry.Update(connectionID, name, avatarColor)
	if !ok {
		return models.Participant{}, ErrUnknownSender
	}

	l.out.Deliver(l.event(models.EventParticipantUpdated, models.PresenceData{
		ConnectionID: p.ConnectionID,
		DisplayName:  p.DisplayName,
		AvatarColor:  p.AvatarColor,
	}), l.registry.ConnectionIDs(connectionID)...)

	l.logger.Info("[LIFECYCLE] Participant updated", "connection", connectionID, "name", name)
	return p, nil
}

// Disconnect removes connectionID from the registry and tells the remaining
// participants. It reports whether the connection had been identified.
func (l *Lifecycle) Disconnect(connectionID string) bool {
	if l.typing != nil {
		l.typing.Clear(connectionID)
	}

	p, ok := l.registry.Unregister(connectionID)
	if !ok {
		return false
	}

	l.out.Deliver(l.event(models.EventParticipantLeft, models.PresenceData{
		ConnectionID: p.ConnectionID,
		DisplayName:  p.DisplayName,
	}), l.registry.ConnectionIDs("")...)

	l.logger.Info("[LIFECYCLE] Participant left", "connection", connectionID, "name", p.DisplayName, "online", l.registry.Len())
	return true
}

func (l *Lifecycle) reject(connectionID string, err error) {
	l.out.Deliver(l.event(models.EventIdentifyRejected, models.RejectionData{
		Kind:    models.RejectInvalidUsername,
		Message: err.Error(),
	}), connectionID)
}

func (l *Lifecycle) event(eventType string, data interface{}) models.Event {
	return newEvent(eventType, data, l.now())
}
