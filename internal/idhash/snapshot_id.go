package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSnapshotID computes a deterministic snapshot_id using SHA256.
// Formula: SHA256(taken_at_ms|supported|unsupported)
// Returns hex-encoded hash (64 characters).
func ComputeSnapshotID(takenAtMs int64, supported, unsupported int) string {
	data := fmt.Sprintf("%d|%d|%d", takenAtMs, supported, unsupported)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
