package clickhouse

import (
	"context"
	"fmt"
	"time"

	"alloydash/internal/domain"
	"alloydash/internal/observability"
	"alloydash/internal/storage"
)

// ActivityBucketStore implements storage.ActivityBucketStore using ClickHouse.
type ActivityBucketStore struct {
	conn *Conn
}

// NewActivityBucketStore creates a new ActivityBucketStore.
func NewActivityBucketStore(conn *Conn) *ActivityBucketStore {
	return &ActivityBucketStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ActivityBucketStore = (*ActivityBucketStore)(nil)

// InsertBulk adds multiple records. Fails entire batch on duplicate
// (pool_id, bucket_start_ms). MergeTree does not enforce uniqueness, so
// duplicates are checked explicitly before the batch is sent.
func (s *ActivityBucketStore) InsertBulk(ctx context.Context, records []*domain.ActivityRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	defer observe("insert_activity_buckets", time.Now(), &err)

	// Check for intra-batch duplicates
	type key struct {
		poolID        string
		bucketStartMs int64
	}
	seen := make(map[key]struct{})
	for _, r := range records {
		k := key{r.PoolID, r.BucketStartMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, r := range records {
		exists, err := s.exists(ctx, r.PoolID, r.BucketStartMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO activity_buckets (
			pool_id, bucket_start_ms, event_count, amounts_in, amounts_out
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.PoolID, uint64(r.BucketStartMs), uint32(r.Count),
			r.In, r.Out,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPoolID retrieves all records for a pool, ordered by bucket start ASC.
func (s *ActivityBucketStore) GetByPoolID(ctx context.Context, poolID string) (_ []*domain.ActivityRecord, err error) {
	defer observe("get_activity_by_pool_id", time.Now(), &err)

	query := `
		SELECT pool_id, bucket_start_ms, event_count, amounts_in, amounts_out
		FROM activity_buckets
		WHERE pool_id = ?
		ORDER BY bucket_start_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("query by pool id: %w", err)
	}
	defer rows.Close()

	return scanActivityRecords(rows)
}

// GetByTimeRange retrieves records for a pool within [start, end] (inclusive).
func (s *ActivityBucketStore) GetByTimeRange(ctx context.Context, poolID string, start, end int64) (_ []*domain.ActivityRecord, err error) {
	defer observe("get_activity_by_time_range", time.Now(), &err)

	query := `
		SELECT pool_id, bucket_start_ms, event_count, amounts_in, amounts_out
		FROM activity_buckets
		WHERE pool_id = ? AND bucket_start_ms >= ? AND bucket_start_ms <= ?
		ORDER BY bucket_start_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, poolID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanActivityRecords(rows)
}

// observe records query duration and outcome under the clickhouse label.
func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), *err)
}

// exists checks if a record with the given key exists.
func (s *ActivityBucketStore) exists(ctx context.Context, poolID string, bucketStartMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM activity_buckets
		WHERE pool_id = ? AND bucket_start_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, poolID, uint64(bucketStartMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows the scanners need.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanActivityRecords scans multiple rows.
func scanActivityRecords(rows chRows) ([]*domain.ActivityRecord, error) {
	var records []*domain.ActivityRecord

	for rows.Next() {
		var r domain.ActivityRecord
		var bucketStartMs uint64
		var count uint32

		err := rows.Scan(&r.PoolID, &bucketStartMs, &count, &r.In, &r.Out)
		if err != nil {
			return nil, fmt.Errorf("scan activity bucket row: %w", err)
		}

		r.BucketStartMs = int64(bucketStartMs)
		r.Count = int(count)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity bucket rows: %w", err)
	}

	return records, nil
}
