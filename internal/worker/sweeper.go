package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pender is the part of MirrorWorker the sweeper drives.
type Pender interface {
	ProcessPending(ctx context.Context) (int, error)
}

// Sweeper calls ProcessPending on a fixed interval until stopped.
type Sweeper struct {
	worker   Pender
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweeper(worker Pender, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{worker: worker, interval: interval}
}

// Start begins the loop. It returns an error if the sweeper is already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)

	slog.InfoContext(ctx, "Mirror sweeper started", "interval", s.interval)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror sweeper stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	slog.InfoContext(ctx, "Mirror sweeper stopped")
	return nil
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.worker.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Mirror sweep failed", "error", err)
			}
		}
	}
}
