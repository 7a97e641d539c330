package catalog

import (
	"context"
	"time"
)

// SnapshotStore persists the catalog cache snapshot.
type SnapshotStore interface {
	// Load returns the current snapshot. ok is false when no valid,
	// unexpired snapshot exists.
	Load(ctx context.Context) (snap Snapshot, ok bool, err error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
	Info(ctx context.Context) (CacheInfo, error)
}

// ArchiveStore keeps a versioned copy of every snapshot.
type ArchiveStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes refresh-complete events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Source produces a fresh set of catalog records.
type Source interface {
	FetchAll(ctx context.Context) ([]Distribution, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
