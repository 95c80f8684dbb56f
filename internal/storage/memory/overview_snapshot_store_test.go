package memory

import (
	"context"
	"errors"
	"testing"

	"alloydash/internal/domain"
	"alloydash/internal/storage"
)

func TestOverviewSnapshotStore_InsertAndGet(t *testing.T) {
	store := NewOverviewSnapshotStore()
	ctx := context.Background()

	snap := &domain.OverviewSnapshot{
		SnapshotID:       "snap-1",
		TakenAtMs:        1709280000000,
		SupportedCount:   4,
		UnsupportedCount: 2,
		Payload:          []byte(`{"pools":[]}`),
	}

	err := store.Insert(ctx, snap)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "snap-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.SupportedCount != 4 {
		t.Errorf("SupportedCount mismatch: got %d, want 4", got.SupportedCount)
	}
	if string(got.Payload) != `{"pools":[]}` {
		t.Errorf("Payload mismatch: got %s", got.Payload)
	}
}

func TestOverviewSnapshotStore_DuplicateKey(t *testing.T) {
	store := NewOverviewSnapshotStore()
	ctx := context.Background()

	snap := &domain.OverviewSnapshot{SnapshotID: "snap-1", TakenAtMs: 1}
	if err := store.Insert(ctx, snap); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, snap); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestOverviewSnapshotStore_InvalidInput(t *testing.T) {
	store := NewOverviewSnapshotStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.OverviewSnapshot{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty id, got %v", err)
	}
}

func TestOverviewSnapshotStore_NotFound(t *testing.T) {
	store := NewOverviewSnapshotStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLatest(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from empty GetLatest, got %v", err)
	}
}

func TestOverviewSnapshotStore_GetLatest(t *testing.T) {
	store := NewOverviewSnapshotStore()
	ctx := context.Background()

	snaps := []*domain.OverviewSnapshot{
		{SnapshotID: "snap-1", TakenAtMs: 1000},
		{SnapshotID: "snap-3", TakenAtMs: 3000},
		{SnapshotID: "snap-2", TakenAtMs: 2000},
	}
	for _, s := range snaps {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if got.SnapshotID != "snap-3" {
		t.Errorf("Expected snap-3, got %s", got.SnapshotID)
	}
}

func TestOverviewSnapshotStore_GetByTimeRange(t *testing.T) {
	store := NewOverviewSnapshotStore()
	ctx := context.Background()

	for _, s := range []*domain.OverviewSnapshot{
		{SnapshotID: "snap-1", TakenAtMs: 1000},
		{SnapshotID: "snap-2", TakenAtMs: 2000},
		{SnapshotID: "snap-3", TakenAtMs: 3000},
	} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByTimeRange(ctx, 1000, 2000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(got))
	}
	// Ordered ASC
	if got[0].SnapshotID != "snap-1" || got[1].SnapshotID != "snap-2" {
		t.Errorf("Unexpected order: %s, %s", got[0].SnapshotID, got[1].SnapshotID)
	}
}

func TestOverviewSnapshotStore_CopyOnReadWrite(t *testing.T) {
	store := NewOverviewSnapshotStore()
	ctx := context.Background()

	snap := &domain.OverviewSnapshot{SnapshotID: "snap-1", TakenAtMs: 1, Payload: []byte("abc")}
	if err := store.Insert(ctx, snap); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's copy must not affect the stored record.
	snap.Payload[0] = 'z'

	got, err := store.GetByID(ctx, "snap-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if string(got.Payload) != "abc" {
		t.Errorf("Stored payload mutated: got %s", got.Payload)
	}
}
