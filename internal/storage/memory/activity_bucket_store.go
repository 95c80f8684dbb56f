package memory

import (
	"context"
	"sort"
	"sync"

	"alloydash/internal/domain"
	"alloydash/internal/storage"
)

type bucketKey struct {
	poolID        string
	bucketStartMs int64
}

// ActivityBucketStore is an in-memory implementation of
// storage.ActivityBucketStore.
type ActivityBucketStore struct {
	mu   sync.RWMutex
	data map[bucketKey]*domain.ActivityRecord
}

// NewActivityBucketStore creates a new in-memory activity bucket store.
func NewActivityBucketStore() *ActivityBucketStore {
	return &ActivityBucketStore{
		data: make(map[bucketKey]*domain.ActivityRecord),
	}
}

// InsertBulk adds multiple records. Fails entire batch on any duplicate,
// leaving the store unchanged.
func (s *ActivityBucketStore) InsertBulk(_ context.Context, records []*domain.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.PoolID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates (intra-batch and against stored records) before
	// mutating anything.
	seen := make(map[bucketKey]struct{}, len(records))
	for _, r := range records {
		k := bucketKey{r.PoolID, r.BucketStartMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, r := range records {
		s.data[bucketKey{r.PoolID, r.BucketStartMs}] = copyRecord(r)
	}
	return nil
}

// GetByPoolID retrieves all records for a pool, ordered by bucket start ASC.
func (s *ActivityBucketStore) GetByPoolID(_ context.Context, poolID string) ([]*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActivityRecord
	for _, r := range s.data {
		if r.PoolID == poolID {
			result = append(result, copyRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStartMs < result[j].BucketStartMs
	})

	return result, nil
}

// GetByTimeRange retrieves records for a pool within [start, end] (inclusive).
func (s *ActivityBucketStore) GetByTimeRange(_ context.Context, poolID string, start, end int64) ([]*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActivityRecord
	for _, r := range s.data {
		if r.PoolID == poolID && r.BucketStartMs >= start && r.BucketStartMs <= end {
			result = append(result, copyRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStartMs < result[j].BucketStartMs
	})

	return result, nil
}

func copyRecord(r *domain.ActivityRecord) *domain.ActivityRecord {
	recCopy := *r
	recCopy.In = make(map[string]string, len(r.In))
	for k, v := range r.In {
		recCopy.In[k] = v
	}
	recCopy.Out = make(map[string]string, len(r.Out))
	for k, v := range r.Out {
		recCopy.Out[k] = v
	}
	return &recCopy
}

// Verify interface compliance at compile time.
var _ storage.ActivityBucketStore = (*ActivityBucketStore)(nil)
