// Package chat implements presence-aware message routing: participant
// lifecycle, broadcast and direct delivery, and typing relays.
package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/presence"
)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps and ids.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// Service is the single handling path for every inbound command. Commands
// are applied one at a time so that registry mutations and delivery
// decisions never interleave.
type Service struct {
	mu        sync.Mutex
	registry  *presence.Registry
	router    *Router
	lifecycle *Lifecycle
	typing    *TypingTracker
	now       func() time.Time
	logger    *slog.Logger
}

// NewService wires the router, lifecycle manager and typing tracker around
// a shared registry.
func NewService(registry *presence.Registry, out Outbound, persist Persister, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.typing = NewTypingTracker(registry, out, s.now)
	s.router = NewRouter(registry, out, persist, s.now, s.logger)
	s.lifecycle = NewLifecycle(registry, out, s.typing, s.now, s.logger)
	return s
}

// Handle applies cmd on behalf of connectionID. Errors describe requests
// that were dropped or rejected; none of them affect other connections.
func (s *Service) Handle(connectionID string, cmd Command) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[SERVICE] Recovered from panic while handling command", "connection", connectionID, "command", fmt.Sprintf("%T", cmd), "panic", r)
			err = fmt.Errorf("command %T failed: %v", cmd, r)
		}
	}()

	switch c := cmd.(type) {
	case Identify:
		_, err = s.lifecycle.Identify(connectionID, c.DisplayName, c.AvatarColor)
	case UpdateIdentity:
		_, err = s.lifecycle.UpdateIdentity(connectionID, c.DisplayName, c.AvatarColor)
	case SendBroadcast:
		if strings.TrimSpace(c.Content) == "" {
			return ErrEmptyContent
		}
		_, err = s.router.SendBroadcast(connectionID, c.Content)
	case SendDirect:
		if strings.TrimSpace(c.Content) == "" {
			return ErrEmptyContent
		}
		_, err = s.router.SendDirect(connectionID, c.RecipientConnectionID, c.Content)
	case SetTyping:
		err = s.typing.SetTyping(connectionID, c.IsTyping)
	case Disconnect:
		s.lifecycle.Disconnect(connectionID)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return err
}

// Participants returns the current roster.
func (s *Service) Participants() []models.Participant {
	return s.registry.ListAll()
}

// IsTyping reports whether connectionID is marked as typing.
func (s *Service) IsTyping(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.IsTyping(connectionID)
}
