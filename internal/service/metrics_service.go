// Package service assembles samples and recorded GC events into published snapshots.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Schera-ole/eidolon/internal/config"
	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	"github.com/Schera-ole/eidolon/internal/history"
	models "github.com/Schera-ole/eidolon/internal/model"
	"github.com/Schera-ole/eidolon/internal/repository"
	"github.com/Schera-ole/eidolon/internal/sampler"
)

// Sampler produces one reading per call.
type Sampler interface {
	Sample() sampler.Reading
}

// MetricsService is the sole writer of the latest snapshot.
type MetricsService struct {
	logger     *zap.SugaredLogger
	repository repository.Repository
	sampler    Sampler
	events     *history.Ring[models.GcEvent]

	sampleTimeout time.Duration
	now           func() time.Time

	// mu serializes Assemble
	mu            sync.Mutex
	lastTimestamp int64

	// pending is closed when the abandoned pass it belongs to returns; guarded by mu
	pending chan struct{}

	runtimeInfo models.RuntimeInfo
}

// NewMetricsService creates a service publishing into repo. GC events are retained in a
// ring sized by cfg.GcEventBufferSize.
func NewMetricsService(
	repo repository.Repository,
	s Sampler,
	cfg *config.AgentConfig,
	logger *zap.SugaredLogger,
) *MetricsService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MetricsService{
		logger:        logger,
		repository:    repo,
		sampler:       s,
		events:        history.NewRing[models.GcEvent](cfg.GcEventBufferSize),
		sampleTimeout: cfg.EffectiveSampleTimeout(),
		now:           time.Now,
		runtimeInfo:   NewRuntimeInfo(cfg, logger),
	}
}

// RecordGcEvent appends e to the event history. It never blocks for long and never fails.
func (ms *MetricsService) RecordGcEvent(e models.GcEvent) {

	ms.events.Append(e)
}

// RecentGcEvents returns the retained events, oldest first.
func (ms *MetricsService) RecentGcEvents() []models.GcEvent {

	return ms.events.Snapshot()
}

// Assemble samples the runtime, builds a snapshot, serializes it once and publishes it.
//
// A sampling pass that exceeds the soft timeout is abandoned with ErrSamplingTimeout;
// the previous snapshot stays published.
func (ms *MetricsService) Assemble(ctx context.Context) (*repository.Published, error) {

	ms.mu.Lock()
	defer ms.mu.Unlock()

	reading, err := ms.sample(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := ms.now().UnixMilli()
	if timestamp <= ms.lastTimestamp {
		timestamp = ms.lastTimestamp + 1
	}

	stringTable := reading.StringTable
	snapshot := &models.MetricsSnapshot{
		TimestampMillis: timestamp,
		Heap:            reading.Heap,
		Threads:         reading.Threads,
		Classes:         reading.Classes,
		StringTable:     &stringTable,
		RecentGcEvents:  ms.events.Snapshot(),
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("error marshalling snapshot: %w", err)
	}
	if err := ms.repository.Store(ctx, snapshot, payload); err != nil {
		return nil, fmt.Errorf("error publishing snapshot: %w", err)
	}
	ms.lastTimestamp = timestamp

	return &repository.Published{Snapshot: snapshot, Payload: payload}, nil
}

// sample runs one pass in its own goroutine so a hung reader cannot stall the caller.
// At most one pass runs at a time: while an abandoned pass is still running, no new
// one is started.
func (ms *MetricsService) sample(ctx context.Context) (sampler.Reading, error) {

	if ms.pending != nil {
		select {
		case <-ms.pending:
			ms.pending = nil
		default:
			return sampler.Reading{}, fmt.Errorf("%w: previous pass still running", internalerrors.ErrSamplingTimeout)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, ms.sampleTimeout)
	defer cancel()

	done := make(chan sampler.Reading, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		done <- ms.sampler.Sample()
	}()

	select {
	case reading := <-done:
		return reading, nil
	case <-ctx.Done():
		ms.pending = finished
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return sampler.Reading{}, fmt.Errorf("%w after %s", internalerrors.ErrSamplingTimeout, ms.sampleTimeout)
		}
		return sampler.Reading{}, ctx.Err()
	}
}

// Latest returns the latest published snapshot without sampling.
func (ms *MetricsService) Latest(ctx context.Context) (*models.MetricsSnapshot, error) {

	published, err := ms.repository.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return published.Snapshot, nil
}

// LatestPayload returns the serialized form of the latest snapshot. Consecutive calls
// with no publish in between return the same bytes.
func (ms *MetricsService) LatestPayload(ctx context.Context) ([]byte, error) {

	published, err := ms.repository.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return published.Payload, nil
}

// RuntimeInfo returns the metadata captured at construction.
func (ms *MetricsService) RuntimeInfo() models.RuntimeInfo {

	return ms.runtimeInfo
}

// Ping checks the repository, delegating to the repository implementation.
func (ms *MetricsService) Ping(ctx context.Context) error {

	return ms.repository.Ping(ctx)
}

// Close stops publishing and drops the retained events.
func (ms *MetricsService) Close() error {

	ms.events.Reset()
	return ms.repository.Close()
}
