package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloydash/internal/domain"
	"alloydash/internal/storage"
)

func TestOverviewSnapshotStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOverviewSnapshotStore(pool)
	ctx := context.Background()

	snap := &domain.OverviewSnapshot{
		SnapshotID:       "snap-1",
		TakenAtMs:        1709280000000,
		SupportedCount:   4,
		UnsupportedCount: 2,
		Payload:          []byte(`{"pools":[],"unsupportedPools":[]}`),
	}

	err := store.Insert(ctx, snap)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", got.SnapshotID)
	assert.Equal(t, int64(1709280000000), got.TakenAtMs)
	assert.Equal(t, 4, got.SupportedCount)
	assert.Equal(t, 2, got.UnsupportedCount)
	assert.JSONEq(t, `{"pools":[],"unsupportedPools":[]}`, string(got.Payload))
	assert.NotZero(t, got.CreatedAt)
}

func TestOverviewSnapshotStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOverviewSnapshotStore(pool)
	ctx := context.Background()

	snap := &domain.OverviewSnapshot{
		SnapshotID: "snap-1",
		TakenAtMs:  1000,
		Payload:    []byte(`{}`),
	}

	require.NoError(t, store.Insert(ctx, snap))
	err := store.Insert(ctx, snap)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestOverviewSnapshotStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOverviewSnapshotStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetLatest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOverviewSnapshotStore_GetLatestAndTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOverviewSnapshotStore(pool)
	ctx := context.Background()

	for _, snap := range []*domain.OverviewSnapshot{
		{SnapshotID: "snap-1", TakenAtMs: 1000, Payload: []byte(`{}`)},
		{SnapshotID: "snap-2", TakenAtMs: 2000, Payload: []byte(`{}`)},
		{SnapshotID: "snap-3", TakenAtMs: 3000, Payload: []byte(`{}`)},
	} {
		require.NoError(t, store.Insert(ctx, snap))
	}

	latest, err := store.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-3", latest.SnapshotID)

	ranged, err := store.GetByTimeRange(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "snap-1", ranged[0].SnapshotID)
	assert.Equal(t, "snap-2", ranged[1].SnapshotID)
}
