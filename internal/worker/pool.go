// Package worker drives the processor: a bounded pool for immediate
// dispatch after enqueue, a cron scheduler for periodic drains and an SQS
// consumer for out-of-process dispatch.
package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/metrics"
)

// Handler processes one notification id.
type Handler func(ctx context.Context, id uuid.UUID) error

// PoolConfig sizes a Pool. Zero fields take their defaults.
type PoolConfig struct {
	Workers int
	Buffer  int
}

// Pool runs Handler on submitted ids with a fixed number of workers. Submit
// never blocks: a full buffer or a stopped pool drops the id, and the next
// drain picks the record up instead.
type Pool struct {
	ids     chan uuid.UUID
	handler Handler
	workers int
	logger  *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(handler Handler, cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	return &Pool{
		ids:     make(chan uuid.UUID, cfg.Buffer),
		handler: handler,
		workers: cfg.Workers,
		logger:  logger,
	}
}

// Start launches the workers. They run until Stop; once ctx is done the
// remaining buffered ids are discarded.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for id := range p.ids {
				if ctx.Err() != nil {
					continue
				}
				p.handle(ctx, id)
			}
		}()
	}
	p.logger.Info("dispatch pool started", zap.Int("workers", p.workers), zap.Int("buffer", cap(p.ids)))
}

func (p *Pool) handle(ctx context.Context, id uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("dispatch handler panicked",
				zap.String("notification_id", id.String()),
				zap.Any("panic", r),
			)
		}
	}()

	if err := p.handler(ctx, id); err != nil {
		p.logger.Error("immediate dispatch failed",
			zap.String("notification_id", id.String()),
			zap.Error(err),
		)
	}
}

// Submit hands id to the workers without blocking and reports whether it
// was accepted.
func (p *Pool) Submit(id uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		metrics.RecordTriggerDropped()
		return false
	}

	select {
	case p.ids <- id:
		return true
	default:
		metrics.RecordTriggerDropped()
		return false
	}
}

// Stop refuses new ids and waits for the workers to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.ids)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("dispatch pool stopped")
}
