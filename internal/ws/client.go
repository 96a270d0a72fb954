package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nzuziariete/Chat-Aribeth/internal/chat"
	"github.com/nzuziariete/Chat-Aribeth/internal/models"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Dispatcher applies inbound commands on behalf of a connection.
type Dispatcher interface {
	Handle(connectionID string, cmd chat.Command) error
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	dispatcher Dispatcher
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// ID returns the connection id assigned at upgrade time.
func (c *Client) ID() string {
	return c.id
}

// ReadPump pumps frames from the WebSocket to the dispatcher. When the
// connection ends it issues the disconnect transition before leaving the hub.
func (c *Client) ReadPump(maxMessageSize int64) {
	defer func() {
		if err := c.dispatcher.Handle(c.id, chat.Disconnect{}); err != nil {
			c.logger.Error("[CLIENT] Disconnect failed", "connection", c.id, "error", err)
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if maxMessageSize > 0 {
		c.conn.SetReadLimit(maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("[CLIENT] Unexpected close", "connection", c.id, "error", err)
			}
			break
		}

		c.handleClientMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error("[CLIENT] Failed to get writer", "connection", c.id, "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.logger.Error("[CLIENT] Failed to close writer", "connection", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("[CLIENT] Failed to send ping", "connection", c.id, "error", err)
				return
			}
		}
	}
}

func (c *Client) handleClientMessage(message []byte) {
	cmd, err := chat.DecodeCommand(message)
	if err != nil {
		c.logger.Warn("[CLIENT] Ignoring inbound frame", "connection", c.id, "error", err)
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn("[CLIENT] Rate limit exceeded, frame dropped", "connection", c.id, "command", fmt.Sprintf("%T", cmd))
		c.rejectThrottled(cmd)
		return
	}

	err = c.dispatcher.Handle(c.id, cmd)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrUnknownSender):
		c.logger.Debug("[CLIENT] Request dropped", "connection", c.id, "error", err)
	case errors.Is(err, chat.ErrInvalidUsername), errors.Is(err, chat.ErrRecipientOffline):
		c.logger.Info("[CLIENT] Request rejected", "connection", c.id, "error", err)
	default:
		c.logger.Error("[CLIENT] Failed to handle request", "connection", c.id, "error", err)
	}
}

// rejectThrottled tells the sender that a dropped send never went out.
// Other throttled commands are dropped silently.
func (c *Client) rejectThrottled(cmd chat.Command) {
	switch cmd.(type) {
	case chat.SendBroadcast, chat.SendDirect:
	default:
		return
	}

	c.hub.Deliver(models.Event{
		Type:      models.EventSendRejected,
		Timestamp: time.Now().UnixMilli(),
		Data: models.RejectionData{
			Kind:    models.RejectRateLimited,
			Message: "too many messages, slow down",
		},
	}, c.id)
}
