package storage

import (
	"context"

	"alloydash/internal/domain"
)

// OverviewSnapshotStore provides access to overview_snapshots storage.
type OverviewSnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if snapshot_id exists.
	Insert(ctx context.Context, s *domain.OverviewSnapshot) error

	// GetByID retrieves a snapshot by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, snapshotID string) (*domain.OverviewSnapshot, error)

	// GetLatest retrieves the most recently taken snapshot. Returns ErrNotFound
	// when no snapshot has been persisted yet.
	GetLatest(ctx context.Context) (*domain.OverviewSnapshot, error)

	// GetByTimeRange retrieves snapshots taken within [start, end] (inclusive,
	// epoch milliseconds), ordered by taken_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.OverviewSnapshot, error)
}

// ActivityBucketStore provides access to activity_buckets storage.
type ActivityBucketStore interface {
	// InsertBulk adds multiple records. Fails entire batch on duplicate
	// (pool_id, bucket_start_ms).
	InsertBulk(ctx context.Context, records []*domain.ActivityRecord) error

	// GetByPoolID retrieves all records for a pool, ordered by bucket start ASC.
	GetByPoolID(ctx context.Context, poolID string) ([]*domain.ActivityRecord, error)

	// GetByTimeRange retrieves records for a pool within [start, end]
	// (inclusive, epoch milliseconds).
	GetByTimeRange(ctx context.Context, poolID string, start, end int64) ([]*domain.ActivityRecord, error)
}
