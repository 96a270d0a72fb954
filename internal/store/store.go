// Package store persists chat messages and answers history queries.
package store

import (
	"context"
	"errors"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
)

// DefaultHistoryLimit is the number of messages returned by history queries
// when no limit is given.
const DefaultHistoryLimit = 50

var (
	// ErrDuplicateMessage is returned when a message id was already stored.
	ErrDuplicateMessage = errors.New("duplicate message id")

	// ErrQueueFull is returned by Persister.Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("persistence queue full")

	// ErrPersisterStopped is returned by Persister.Enqueue after Stop.
	ErrPersisterStopped = errors.New("persister stopped")
)

// Store is an append-only message log. History results are newest first.
type Store interface {
	Save(ctx context.Context, msg models.Message) error
	GeneralHistory(ctx context.Context, limit int) ([]models.Message, error)
	DirectHistory(ctx context.Context, connectionID string, limit int) ([]models.Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeLimit maps non-positive limits to DefaultHistoryLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
