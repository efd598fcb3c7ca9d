package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	"github.com/Schera-ole/eidolon/internal/repository"
)

// Assembler publishes a fresh snapshot per call.
type Assembler interface {
	Assemble(ctx context.Context) (*repository.Published, error)
}

// Scheduler runs the sample-and-broadcast loop on a fixed interval.
type Scheduler struct {
	logger    *zap.SugaredLogger
	assembler Assembler
	registry  *Registry
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ticks atomic.Int64
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(assembler Assembler, registry *Registry, interval time.Duration, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		logger:    logger,
		assembler: assembler,
		registry:  registry,
		interval:  interval,
	}
}

// Start launches the loop. The first tick runs immediately, later ones every interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return internalerrors.ErrAgentRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop, waits for it to exit and disconnects every subscriber.
// ctx bounds the wait.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return internalerrors.ErrAgentStopped
	}
	cancel()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.registry.CloseAll()
	return err
}

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick never propagates a failure: the next tick runs regardless.
func (s *Scheduler) tick(ctx context.Context) {
	defer s.ticks.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("tick panicked", "panic", r)
		}
	}()

	published, err := s.assembler.Assemble(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, internalerrors.ErrSamplingTimeout):
		s.logger.Warnw("sampling pass abandoned", "error", err)
		return
	default:
		s.logger.Errorw("snapshot assembly failed", "error", err)
		return
	}

	if ctx.Err() != nil || s.registry.Size() == 0 {
		return
	}
	s.registry.Broadcast(published.Payload)
}
