// Package repository holds the most recently published snapshot.
package repository

import (
	"context"

	models "github.com/Schera-ole/eidolon/internal/model"
)

// Published pairs a snapshot with its serialized form. Both are immutable.
type Published struct {
	Snapshot *models.MetricsSnapshot
	Payload  []byte
}

// Repository stores the latest snapshot.
//
// Store replaces the previous value wholesale; readers observe either the old or the
// new pair, never a mixture.
type Repository interface {
	Store(ctx context.Context, snapshot *models.MetricsSnapshot, payload []byte) error
	Latest(ctx context.Context) (*Published, error)
	Ping(ctx context.Context) error
	Close() error
}
