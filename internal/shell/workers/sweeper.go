package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweeperConfig configures the periodic sweeper.
type SweeperConfig struct {
	// Interval is the time between sweeps.
	// Default: 30 seconds.
	Interval time.Duration

	// Timeout bounds a single sweep.
	// Default: Interval.
	Timeout time.Duration
}

// DefaultSweeperConfig returns the default configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 30 * time.Second,
	}
}

// SweepFunc performs one sweep and reports how many records it changed.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

// Sweeper periodically runs a reconciliation pass, for example settling
// servers whose in-memory settle timer was lost with a previous process.
type Sweeper struct {
	name   string
	sweep  SweepFunc
	config SweeperConfig
	logger *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper worker.
func NewSweeper(name string, sweep SweepFunc, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = config.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		name:   name,
		sweep:  sweep,
		config: config,
		logger: logger.With("component", name),
	}
}

// Start begins the sweeper background goroutine.
func (s *Sweeper) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.run()

	s.logger.Info("sweeper started", "interval", s.config.Interval)
}

// Stop gracefully stops the sweeper, waiting for an in-progress sweep.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runCycle()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

// RunOnce performs a single sweep outside the ticker loop.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	return s.sweep(ctx, time.Now())
}

func (s *Sweeper) runCycle() {
	changed, err := s.RunOnce(s.ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if changed > 0 {
		s.logger.Info("sweep completed", "changed", changed)
	}
}
