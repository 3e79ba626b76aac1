// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"concursobot/internal/model"
)

// ErrNotFound is returned when no snapshot exists for a source.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	// LoadSnapshot returns the snapshot of a source or ErrNotFound.
	LoadSnapshot(ctx context.Context, sourceID string) (*model.Snapshot, error)
	// SaveSnapshot replaces the snapshot of a source atomically.
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error
	// EnsureSnapshot seeds an empty snapshot unless one exists and reports
	// whether it did.
	EnsureSnapshot(ctx context.Context, sourceID string, shape model.Shape) (bool, error)

	AddSubscriber(ctx context.Context, chatID int64) (bool, error)
	RemoveSubscriber(ctx context.Context, chatID int64) (bool, error)
	ListSubscribers(ctx context.Context) ([]int64, error)

	Close() error
}
