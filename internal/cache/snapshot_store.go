// Package cache persists catalog snapshots as a JSON file with a TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/distrowiki/catalogd/internal/catalog"
)

// SnapshotStore implements catalog.SnapshotStore on a single JSON file.
// Staleness is judged by the file's modification time, so a refresh that
// rewrites the file always yields a newer snapshot and an untouched file
// keeps returning the same one until the TTL expires.
type SnapshotStore struct {
	path   string
	ttl    time.Duration
	clock  catalog.Clock
	logger *zap.Logger

	// Guards the write path only; reads go straight to the file so that an
	// external refresh job writing the same path is picked up.
	mu sync.Mutex
}

// New constructs a SnapshotStore rooted at path.
func New(path string, ttl time.Duration, clock catalog.Clock, logger *zap.Logger) (*SnapshotStore, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	if ttl <= 0 {
		return nil, errors.New("cache ttl must be > 0")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{path: path, ttl: ttl, clock: clock, logger: logger}, nil
}

// Load returns the snapshot on disk. ok is false when the file is missing,
// unreadable, or older than the TTL.
func (s *SnapshotStore) Load(_ context.Context) (catalog.Snapshot, bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return catalog.Snapshot{}, false, nil
		}
		return catalog.Snapshot{}, false, fmt.Errorf("stat cache file: %w", err)
	}

	age := s.clock.Now().Sub(info.ModTime())
	if age > s.ttl {
		s.logger.Info("cache expired",
			zap.Duration("age", age),
			zap.Duration("ttl", s.ttl),
		)
		return catalog.Snapshot{}, false, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return catalog.Snapshot{}, false, fmt.Errorf("read cache file: %w", err)
	}
	var snap catalog.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt file is treated as a miss; the next refresh replaces it.
		s.logger.Warn("cache file corrupt, treating as miss", zap.Error(err))
		return catalog.Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Save atomically replaces the snapshot file via temp-file rename, so a
// concurrent reader never observes a torn write.
func (s *SnapshotStore) Save(_ context.Context, snap catalog.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck // write error takes precedence
		os.Remove(tmpName)    //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("replace cache file: %w", err)
	}

	s.logger.Info("snapshot saved",
		zap.String("path", s.path),
		zap.Int("records", len(snap.Distributions)),
		zap.String("source", string(snap.Source)),
	)
	return nil
}

// Clear removes the snapshot file. Missing file is not an error.
func (s *SnapshotStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Info reports snapshot metadata without TTL gating, so operators can see a
// stale file too.
func (s *SnapshotStore) Info(_ context.Context) (catalog.CacheInfo, error) {
	out := catalog.CacheInfo{TTLSeconds: int64(s.ttl.Seconds())}

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("stat cache file: %w", err)
	}

	age := s.clock.Now().Sub(info.ModTime())
	out.Exists = true
	out.AgeSeconds = int64(age.Seconds())
	out.Stale = age > s.ttl

	data, err := os.ReadFile(s.path)
	if err != nil {
		return out, fmt.Errorf("read cache file: %w", err)
	}
	var snap catalog.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return out, nil
	}
	out.ScrapedAt = snap.ScrapedAt
	out.Source = snap.Source
	out.ScraperVersion = snap.ScraperVersion
	out.Records = len(snap.Distributions)
	return out, nil
}
