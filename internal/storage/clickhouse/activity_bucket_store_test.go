package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloydash/internal/domain"
	"alloydash/internal/storage"
)

func record(poolID string, startMs int64) *domain.ActivityRecord {
	return &domain.ActivityRecord{
		PoolID:        poolID,
		BucketStartMs: startMs,
		Count:         2,
		In:            map[string]string{"uosmo": "1000000000000000003"},
		Out:           map[string]string{"uusdc": "42"},
	}
}

func TestActivityBucketStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityBucketStore(conn)
	ctx := context.Background()

	// Empty insert is a no-op.
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	err = store.InsertBulk(ctx, []*domain.ActivityRecord{record("7", 1709280000000)})
	require.NoError(t, err)

	got, err := store.GetByPoolID(ctx, "7")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].PoolID)
	assert.Equal(t, int64(1709280000000), got[0].BucketStartMs)
	assert.Equal(t, 2, got[0].Count)
	// Decimal-string sums round-trip untouched.
	assert.Equal(t, "1000000000000000003", got[0].In["uosmo"])
	assert.Equal(t, "42", got[0].Out["uusdc"])
}

func TestActivityBucketStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityBucketStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.ActivityRecord{record("7", 1000)}))

	err := store.InsertBulk(ctx, []*domain.ActivityRecord{record("7", 1000)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestActivityBucketStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityBucketStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.ActivityRecord{
		record("7", 1000),
		record("7", 1000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestActivityBucketStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityBucketStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.ActivityRecord{
		record("7", 1000),
		record("7", 2000),
		record("7", 3000),
		record("8", 2000),
	}))

	got, err := store.GetByTimeRange(ctx, "7", 2000, 3000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2000), got[0].BucketStartMs)
	assert.Equal(t, int64(3000), got[1].BucketStartMs)
}
