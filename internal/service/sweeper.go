package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/repository"
)

// DefaultSweepInterval is how often expired records are removed.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically removes expired records from the store.
type Sweeper struct {
	store    repository.Store
	clock    model.Clock
	interval time.Duration
	onStart  bool
	logger   *slog.Logger

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewSweeper creates a new Sweeper. When onStart is set the first sweep runs
// immediately.
func NewSweeper(store repository.Store, clock model.Clock, interval time.Duration, onStart bool, logger *slog.Logger) *Sweeper {
	if clock == nil {
		clock = model.SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		clock:    clock,
		interval: interval,
		onStart:  onStart,
		logger:   logger.With("component", "service.sweeper"),
	}
}

// SweepNow removes expired records and returns how many remain.
func (s *Sweeper) SweepNow(ctx context.Context) (int, error) {
	kept, err := s.store.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	return len(kept), nil
}

// Run starts the sweep loop. Blocks until ctx is cancelled or Shutdown is called.
func (s *Sweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("sweeper already started")
	}
	s.started = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.done)

	s.logger.Info("sweeper started", "interval", s.interval)

	if s.onStart {
		s.sweep(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.SweepNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("sweep failed", "error", err)
	}
}

// Shutdown stops the loop and waits for an in-flight sweep.
// It matches server.ShutdownFunc.
func (s *Sweeper) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		s.logger.Info("sweeper shutdown complete")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sweeper shutdown timed out")
		return ctx.Err()
	}
}
