package chat

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/presence"
)

// Outbound pushes events to live connections. Delivering to an id that is
// no longer connected must be a no-op.
type Outbound interface {
	Deliver(event models.Event, connectionIDs ...string)
}

// Persister accepts messages for durable storage without blocking.
type Persister interface {
	Enqueue(msg models.Message) error
}

// Router resolves recipients for send requests, delivers the resulting
// message and hands it to the persister.
type Router struct {
	registry *presence.Registry
	out      Outbound
	persist  Persister
	now      func() time.Time
	logger   *slog.Logger

	idMu   sync.Mutex
	lastID int64
}

// NewRouter creates a Router.
func NewRouter(registry *presence.Registry, out Outbound, persist Persister, now func() time.Time, logger *slog.Logger) *Router {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		out:      out,
		persist:  persist,
		now:      now,
		logger:   logger,
	}
}

// SendBroadcast delivers content from senderID to every participant,
// the sender included.
func (r *Router) SendBroadcast(senderID, content string) (models.Message, error) {
	sender, ok := r.registry.Lookup(senderID)
	if !ok {
		return models.Message{}, ErrUnknownSender
	}

	msg := r.newMessage(sender, nil, content)
	r.out.Deliver(r.event(models.EventMessageBroadcast, msg), r.registry.ConnectionIDs("")...)
	r.enqueue(msg)

	r.logger.Debug("[ROUTER] Broadcast delivered", "id", msg.ID, "sender", sender.DisplayName)
	return msg, nil
}

// SendDirect delivers content to recipientID and echoes it to the sender.
// An offline recipient results in a send-rejected notice to the sender only.
func (r *Router) SendDirect(senderID, recipientID, content string) (models.Message, error) {
	sender, ok := r.registry.Lookup(senderID)
	if !ok {
		return models.Message{}, ErrUnknownSender
	}

	if _, ok := r.registry.Lookup(recipientID); !ok {
		r.out.Deliver(r.event(models.EventSendRejected, models.RejectionData{
			Kind:    models.RejectRecipientOffline,
			Message: "the recipient is no longer online",
		}), senderID)
		return models.Message{}, fmt.Errorf("%w: %s", ErrRecipientOffline, recipientID)
	}

	recipient := recipientID
	msg := r.newMessage(sender, &recipient, content)

	targets := []string{senderID}
	if recipientID != senderID {
		targets = append(targets, recipientID)
	}
	r.out.Deliver(r.event(models.EventMessageDirect, msg), targets...)
	r.enqueue(msg)

	r.logger.Debug("[ROUTER] Direct message delivered", "id", msg.ID, "sender", sender.DisplayName, "recipient", recipientID)
	return msg, nil
}

func (r *Router) newMessage(sender models.Participant, recipientID *string, content string) models.Message {
	ts := r.now().UTC()
	return models.Message{
		ID:                    r.nextID(ts),
		Sender:                sender.DisplayName,
		SenderConnectionID:    sender.ConnectionID,
		RecipientConnectionID: recipientID,
		Content:               content,
		Timestamp:             ts,
		AvatarColor:           sender.AvatarColor,
		IsPrivate:             recipientID != nil,
	}
}

// nextID derives ids from the millisecond clock, bumped past the previous id
// so that ids handed out by this process never repeat.
func (r *Router) nextID(ts time.Time) int64 {
	r.idMu.Lock()
	defer r.idMu.Unlock()

	id := ts.UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return id
}

func (r *Router) enqueue(msg models.Message) {
	if r.persist == nil {
		return
	}
	if err := r.persist.Enqueue(msg); err != nil {
		r.logger.Error("[ROUTER] Failed to queue message for persistence", "id", msg.ID, "error", err)
	}
}

func (r *Router) event(eventType string, data interface{}) models.Event {
	return newEvent(eventType, data, r.now())
}

func newEvent(eventType string, data interface{}, at time.Time) models.Event {
	return models.Event{
		Type:      eventType,
		Timestamp: at.UnixMilli(),
		Data:      data,
	}
}
