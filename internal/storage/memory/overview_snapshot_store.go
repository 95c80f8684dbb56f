package memory

import (
	"context"
	"sort"
	"sync"

	"alloydash/internal/domain"
	"alloydash/internal/storage"
)

// OverviewSnapshotStore is an in-memory implementation of
// storage.OverviewSnapshotStore.
type OverviewSnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OverviewSnapshot // keyed by snapshot_id
}

// NewOverviewSnapshotStore creates a new in-memory snapshot store.
func NewOverviewSnapshotStore() *OverviewSnapshotStore {
	return &OverviewSnapshotStore{
		data: make(map[string]*domain.OverviewSnapshot),
	}
}

// Insert adds a new snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *OverviewSnapshotStore) Insert(_ context.Context, snap *domain.OverviewSnapshot) error {
	if snap == nil || snap.SnapshotID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.SnapshotID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	snapCopy := *snap
	snapCopy.Payload = append([]byte(nil), snap.Payload...)
	s.data[snap.SnapshotID] = &snapCopy
	return nil
}

// GetByID retrieves a snapshot by its ID. Returns ErrNotFound if not exists.
func (s *OverviewSnapshotStore) GetByID(_ context.Context, snapshotID string) (*domain.OverviewSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[snapshotID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(snap), nil
}

// GetLatest retrieves the most recently taken snapshot.
func (s *OverviewSnapshotStore) GetLatest(_ context.Context) (*domain.OverviewSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.OverviewSnapshot
	for _, snap := range s.data {
		if latest == nil || snap.TakenAtMs > latest.TakenAtMs {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(latest), nil
}

// GetByTimeRange retrieves snapshots taken within [start, end] (inclusive).
func (s *OverviewSnapshotStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.OverviewSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OverviewSnapshot
	for _, snap := range s.data {
		if snap.TakenAtMs >= start && snap.TakenAtMs <= end {
			result = append(result, copySnapshot(snap))
		}
	}

	// Sort by taken_at ASC
	sort.Slice(result, func(i, j int) bool {
		return result[i].TakenAtMs < result[j].TakenAtMs
	})

	return result, nil
}

func copySnapshot(snap *domain.OverviewSnapshot) *domain.OverviewSnapshot {
	snapCopy := *snap
	snapCopy.Payload = append([]byte(nil), snap.Payload...)
	return &snapCopy
}

// Verify interface compliance at compile time.
var _ storage.OverviewSnapshotStore = (*OverviewSnapshotStore)(nil)
