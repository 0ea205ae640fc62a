package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Drainer advances due records. *notify.Processor implements it.
type Drainer interface {
	DrainQueue(ctx context.Context, batchSize int) (int, error)
}

// SchedulerConfig controls the periodic drain.
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Scheduler runs DrainQueue on a fixed interval. A drain that is still
// running when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	drainer Drainer
	config  SchedulerConfig
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. Intervals below one second are rounded
// up by cron.
func NewScheduler(drainer Drainer, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	cl := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:    c,
		drainer: drainer,
		config:  cfg,
		logger:  logger,
	}
}

// Start registers the drain job and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.config.Interval)
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule drain %q: %w", spec, err)
	}
	s.cron.Start()

	s.logger.Info("drain scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize),
	)
	return nil
}

// RunOnce performs one drain and logs the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	n, err := s.drainer.DrainQueue(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("scheduled drain failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("scheduled drain finished",
			zap.Int("examined", n),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Stop stops scheduling and waits for a running drain to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("drain scheduler stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
