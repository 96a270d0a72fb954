// Package presence holds the authoritative in-memory view of who is online.
package presence

import (
	"errors"
	"sync"
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
)

// ErrDuplicateConnection is returned by Register when the connection id is
// already present. The existing record has been overwritten.
var ErrDuplicateConnection = errors.New("connection already registered")

// Registry maps connection ids to participants. All methods are safe for
// concurrent use and every read observes a fully applied mutation.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*models.Participant
	order        []string
	now          func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]*models.Participant),
		now:          time.Now,
	}
}

// Register records a participant for connectionID. An empty avatarColor is
// replaced by models.DefaultAvatarColor.
func (r *Registry) Register(connectionID, displayName, avatarColor string) (models.Participant, error) {
	if avatarColor == "" {
		avatarColor = models.DefaultAvatarColor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := &models.Participant{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		AvatarColor:  avatarColor,
		JoinedAt:     r.now().UTC(),
	}

	if _, exists := r.participants[connectionID]; exists {
		// Keep the original insertion slot.
		r.participants[connectionID] = p
		return *p, ErrDuplicateConnection
	}

	r.participants[connectionID] = p
	r.order = append(r.order, connectionID)
	return *p, nil
}

// Unregister removes connectionID. Repeated calls are no-ops.
func (r *Registry) Unregister(connectionID string) (models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[connectionID]
	if !ok {
		return models.Participant{}, false
	}

	delete(r.participants, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *p, true
}

// Update changes display name and avatar color in place. JoinedAt and the
// connection id are preserved.
func (r *Registry) Update(connectionID, displayName, avatarColor string) (models.Participant, bool) {
	if avatarColor == "" {
		avatarColor = models.DefaultAvatarColor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[connectionID]
	if !ok {
		return models.Participant{}, false
	}
	p.DisplayName = displayName
	p.AvatarColor = avatarColor
	return *p, true
}

// Lookup returns the participant registered for connectionID.
func (r *Registry) Lookup(connectionID string) (models.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[connectionID]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// ListAll returns a snapshot of all participants in insertion order.
func (r *Registry) ListAll() []models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.Participant, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, *r.participants[id])
	}
	return list
}

// ConnectionIDs returns the ids of all participants, optionally leaving one out.
func (r *Registry) ConnectionIDs(except string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id == except {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
