package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
)

// PersisterConfig holds persistence worker configuration.
type PersisterConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// DefaultPersisterConfig returns the default persister configuration.
func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		QueueSize:    256,
		Workers:      1,
		WriteTimeout: 5 * time.Second,
	}
}

// Stats counts persistence outcomes.
type Stats struct {
	Persisted uint64 `json:"persisted"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// Persister writes messages to a Store from a bounded queue in the
// background. Enqueue never blocks; failures are logged and counted.
type Persister struct {
	store  Store
	config PersisterConfig
	queue  chan models.Message
	logger *slog.Logger

	mu      sync.RWMutex
	running bool
	stopped bool
	wg      sync.WaitGroup

	persisted atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewPersister creates a Persister. Call Start to begin writing.
func NewPersister(store Store, cfg PersisterConfig, logger *slog.Logger) *Persister {
	def := DefaultPersisterConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		store:  store,
		config: cfg,
		queue:  make(chan models.Message, cfg.QueueSize),
		logger: logger,
	}
}

// Start launches the workers.
func (p *Persister) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPersisterStopped
	}
	if p.running {
		return errors.New("persister is already running")
	}
	p.running = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(id)
		}(i + 1)
	}

	p.logger.Info("[PERSIST] Persister started", "workers", p.config.Workers, "queue", p.config.QueueSize)
	return nil
}

// Enqueue hands msg to the workers without waiting for the write.
func (p *Persister) Enqueue(msg models.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.dropped.Add(1)
		return ErrPersisterStopped
	}

	select {
	case p.queue <- msg:
		return nil
	default:
		p.dropped.Add(1)
		p.logger.Warn("[PERSIST] Queue full, message dropped", "id", msg.ID)
		return ErrQueueFull
	}
}

// Stop stops accepting messages and waits for queued ones to be written,
// or for ctx to expire.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	if !p.running {
		// Never started: drain what was queued before returning.
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work(0)
		}()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("[PERSIST] Persister drained", "persisted", p.persisted.Load(), "failed", p.failed.Load())
		return nil
	case <-ctx.Done():
		p.logger.Warn("[PERSIST] Timeout waiting for queue to drain", "remaining", len(p.queue))
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (p *Persister) Stats() Stats {
	return Stats{
		Persisted: p.persisted.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Queued:    len(p.queue),
	}
}

func (p *Persister) work(id int) {
	for msg := range p.queue {
		p.write(id, msg)
	}
}

func (p *Persister) write(worker int, msg models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.WriteTimeout)
	defer cancel()

	err := p.store.Save(ctx, msg)
	switch {
	case err == nil:
		p.persisted.Add(1)
	case errors.Is(err, ErrDuplicateMessage):
		p.failed.Add(1)
		p.logger.Warn("[PERSIST] Duplicate message id, write skipped", "worker", worker, "id", msg.ID)
	default:
		p.failed.Add(1)
		p.logger.Error("[PERSIST] Failed to persist message", "worker", worker, "id", msg.ID, "error", err)
	}
}
