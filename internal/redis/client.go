// Package redis is the Redis-backed message store. Messages live in sorted
// sets scored by their timestamp; every save is also announced on a pub/sub
// channel for external consumers.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/store"
)

const (
	defaultPrefix = "chat"

	// EventMessageCreated is published after a message is stored.
	EventMessageCreated = "message:created"
)

// Client stores messages in Redis.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects to redisURL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("[REDIS] Connected to Redis", "addr", opt.Addr, "db", opt.DB)
	return &Client{rdb: rdb, prefix: defaultPrefix}, nil
}

// WithPrefix returns a copy of c whose keys are namespaced under prefix.
func (c *Client) WithPrefix(prefix string) *Client {
	return &Client{rdb: c.rdb, prefix: prefix}
}

var _ store.Store = (*Client)(nil)

func (c *Client) idsKey() string { return c.prefix + ":message-ids" }

func (c *Client) generalKey() string { return c.prefix + ":messages:general" }

func (c *Client) directKey(conn string) string { return c.prefix + ":messages:direct:" + conn }

func (c *Client) eventsChannel() string { return c.prefix + ":events" }

// Save stores msg. The id is claimed first so a repeated id is rejected
// without touching the history sets.
func (c *Client) Save(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	id := strconv.FormatInt(msg.ID, 10)
	claimed, err := c.rdb.HSetNX(ctx, c.idsKey(), id, msg.Timestamp.UnixMilli()).Result()
	if err != nil {
		return fmt.Errorf("failed to claim message id: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: %d", store.ErrDuplicateMessage, msg.ID)
	}

	z := &redis.Z{Score: float64(msg.Timestamp.UnixMilli()), Member: payload}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if !msg.IsPrivate || msg.RecipientConnectionID == nil {
			pipe.ZAdd(ctx, c.generalKey(), z)
			return nil
		}
		pipe.ZAdd(ctx, c.directKey(msg.SenderConnectionID), z)
		if *msg.RecipientConnectionID != msg.SenderConnectionID {
			pipe.ZAdd(ctx, c.directKey(*msg.RecipientConnectionID), z)
		}
		return nil
	})
	if err != nil {
		c.rdb.HDel(ctx, c.idsKey(), id)
		return fmt.Errorf("failed to save message: %w", err)
	}

	if err := c.publishEvent(ctx, EventMessageCreated, msg); err != nil {
		slog.Warn("[REDIS] Message stored but not announced", "id", msg.ID, "error", err)
	}
	return nil
}

// GeneralHistory returns the most recent broadcast messages.
func (c *Client) GeneralHistory(ctx context.Context, limit int) ([]models.Message, error) {
	return c.history(ctx, c.generalKey(), limit)
}

// DirectHistory returns the most recent private messages sent or received
// by connectionID.
func (c *Client) DirectHistory(ctx context.Context, connectionID string, limit int) ([]models.Message, error) {
	return c.history(ctx, c.directKey(connectionID), limit)
}

func (c *Client) history(ctx context.Context, key string, limit int) ([]models.Message, error) {
	limit = store.NormalizeLimit(limit)
	raw, err := c.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history from %s: %w", key, err)
	}

	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			slog.Error("[REDIS] Skipping unreadable message", "key", key, "error", err)
			continue
		}
		msg.Timestamp = msg.Timestamp.UTC()
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) publishEvent(ctx context.Context, eventType string, data interface{}) error {
	event := models.Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("[REDIS] Failed to marshal event", "type", event.Type, "error", err)
		return err
	}

	channel := c.eventsChannel()
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		slog.Error("[REDIS] Failed to publish event", "type", event.Type, "channel", channel, "error", err)
		return err
	}
	return nil
}
