// Package workers contains background workers for the panel.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Settler runs delayed follow-up work keyed by entity id. Scheduling a key
// that already has pending work replaces it, so at most one task per key is
// ever outstanding.
type Settler struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*settleTask
	gen     uint64
	stopped bool

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type settleTask struct {
	timer *time.Timer
	gen   uint64
}

// NewSettler creates a settler. A nil logger falls back to slog.Default().
func NewSettler(logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Settler{
		logger:  logger.With("component", "settler"),
		pending: make(map[string]*settleTask),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule runs fn after delay unless the key is rescheduled, cancelled or
// the settler is stopped first. fn receives a context cancelled by Stop.
func (s *Settler) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	task := &settleTask{gen: gen}
	task.timer = time.AfterFunc(delay, func() { s.fire(key, gen, fn) })
	s.pending[key] = task
}

func (s *Settler) fire(key string, gen uint64, fn func(ctx context.Context)) {
	s.mu.Lock()
	task, ok := s.pending[key]
	if !ok || task.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("settle task panicked", "key", key, "panic", r)
		}
	}()
	fn(s.ctx)
}

// Cancel drops pending work for key. It reports whether anything was pending.
func (s *Settler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.pending[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(s.pending, key)
	return true
}

// Pending returns the number of outstanding tasks.
func (s *Settler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels all pending work and waits for running tasks to return.
func (s *Settler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, task := range s.pending {
		task.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("settler stopped")
}
