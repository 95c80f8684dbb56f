package idhash

import "testing"

func TestComputeSnapshotID(t *testing.T) {
	id := ComputeSnapshotID(1709294400000, 4, 2)

	if len(id) != 64 {
		t.Errorf("expected 64-char hex id, got %d chars", len(id))
	}

	// Same inputs must produce the same id.
	if again := ComputeSnapshotID(1709294400000, 4, 2); again != id {
		t.Errorf("expected deterministic id, got %s and %s", id, again)
	}

	// Any input change must produce a different id.
	if other := ComputeSnapshotID(1709294400001, 4, 2); other == id {
		t.Error("expected different id for different timestamp")
	}
	if other := ComputeSnapshotID(1709294400000, 5, 2); other == id {
		t.Error("expected different id for different supported count")
	}
}
