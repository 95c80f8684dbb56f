package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"alloydash/internal/domain"
	"alloydash/internal/observability"
	"alloydash/internal/storage"
)

// OverviewSnapshotStore implements storage.OverviewSnapshotStore using PostgreSQL.
type OverviewSnapshotStore struct {
	pool *Pool
}

// NewOverviewSnapshotStore creates a new OverviewSnapshotStore.
func NewOverviewSnapshotStore(pool *Pool) *OverviewSnapshotStore {
	return &OverviewSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OverviewSnapshotStore = (*OverviewSnapshotStore)(nil)

// Insert adds a new snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *OverviewSnapshotStore) Insert(ctx context.Context, snap *domain.OverviewSnapshot) (err error) {
	defer observe("insert_snapshot", time.Now(), &err)

	query := `
		INSERT INTO overview_snapshots (
			snapshot_id, taken_at_ms, supported_count, unsupported_count, payload
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.pool.Exec(ctx, query,
		snap.SnapshotID,
		snap.TakenAtMs,
		snap.SupportedCount,
		snap.UnsupportedCount,
		snap.Payload,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves a snapshot by its ID. Returns ErrNotFound if not exists.
func (s *OverviewSnapshotStore) GetByID(ctx context.Context, snapshotID string) (_ *domain.OverviewSnapshot, err error) {
	defer observe("get_snapshot_by_id", time.Now(), &err)

	query := `
		SELECT snapshot_id, taken_at_ms, supported_count, unsupported_count, payload, created_at
		FROM overview_snapshots
		WHERE snapshot_id = $1
	`

	row := s.pool.QueryRow(ctx, query, snapshotID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by id: %w", err)
	}
	return snap, nil
}

// GetLatest retrieves the most recently taken snapshot.
func (s *OverviewSnapshotStore) GetLatest(ctx context.Context) (_ *domain.OverviewSnapshot, err error) {
	defer observe("get_latest_snapshot", time.Now(), &err)

	query := `
		SELECT snapshot_id, taken_at_ms, supported_count, unsupported_count, payload, created_at
		FROM overview_snapshots
		ORDER BY taken_at_ms DESC, snapshot_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// GetByTimeRange retrieves snapshots taken within [start, end] (inclusive).
func (s *OverviewSnapshotStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.OverviewSnapshot, err error) {
	defer observe("get_snapshots_by_time_range", time.Now(), &err)

	query := `
		SELECT snapshot_id, taken_at_ms, supported_count, unsupported_count, payload, created_at
		FROM overview_snapshots
		WHERE taken_at_ms >= $1 AND taken_at_ms <= $2
		ORDER BY taken_at_ms ASC, snapshot_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// observe records query duration and outcome under the postgres label.
func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), *err)
}

// scanSnapshot scans a single row into an OverviewSnapshot.
func scanSnapshot(row pgx.Row) (*domain.OverviewSnapshot, error) {
	var snap domain.OverviewSnapshot
	err := row.Scan(
		&snap.SnapshotID,
		&snap.TakenAtMs,
		&snap.SupportedCount,
		&snap.UnsupportedCount,
		&snap.Payload,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// scanSnapshots scans multiple rows into a slice of OverviewSnapshot.
func scanSnapshots(rows pgx.Rows) ([]*domain.OverviewSnapshot, error) {
	var snaps []*domain.OverviewSnapshot

	for rows.Next() {
		var snap domain.OverviewSnapshot
		err := rows.Scan(
			&snap.SnapshotID,
			&snap.TakenAtMs,
			&snap.SupportedCount,
			&snap.UnsupportedCount,
			&snap.Payload,
			&snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}
