package repository

import (
	"context"
	"sync/atomic"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
)

// MemStorage implements the Repository interface with a single atomically swapped pointer.
type MemStorage struct {
	// latest is nil until the first Store
	latest atomic.Pointer[Published]

	closed atomic.Bool
}

// NewMemStorage creates an empty in-memory storage.
func NewMemStorage() *MemStorage {

	return &MemStorage{}
}

// Store publishes snapshot and payload as the new latest pair.
// The caller must not modify either afterwards.
func (ms *MemStorage) Store(ctx context.Context, snapshot *models.MetricsSnapshot, payload []byte) error {

	if ms.closed.Load() {
		return internalerrors.ErrAgentStopped
	}
	ms.latest.Store(&Published{Snapshot: snapshot, Payload: payload})
	return nil
}

// Latest returns the last published pair, or ErrSnapshotUnavailable before the first Store.
func (ms *MemStorage) Latest(ctx context.Context) (*Published, error) {

	published := ms.latest.Load()
	if published == nil {
		return nil, internalerrors.ErrSnapshotUnavailable
	}
	return published, nil
}

// Ping reports whether the storage still accepts snapshots.
func (ms *MemStorage) Ping(ctx context.Context) error {

	if ms.closed.Load() {
		return internalerrors.ErrAgentStopped
	}
	return nil
}

// Close stops accepting snapshots. The last published pair stays readable.
func (ms *MemStorage) Close() error {

	ms.closed.Store(true)
	return nil
}
