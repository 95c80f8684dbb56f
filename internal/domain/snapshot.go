package domain

// OverviewSnapshot is one persisted result of an overview refresh run.
// Payload holds the JSON-encoded OverviewResult for later replay.
type OverviewSnapshot struct {
	SnapshotID       string `json:"snapshot_id"`
	TakenAtMs        int64  `json:"taken_at_ms"`
	SupportedCount   int    `json:"supported_count"`
	UnsupportedCount int    `json:"unsupported_count"`
	Payload          []byte `json:"payload"`
	CreatedAt        int64  `json:"created_at"`
}

// ActivityRecord is one persisted activity bucket for a pool. In and Out
// carry the bucket's exact per-denom decimal-string sums.
type ActivityRecord struct {
	PoolID        string            `json:"pool_id"`
	BucketStartMs int64             `json:"bucket_start_ms"`
	Count         int               `json:"count"`
	In            map[string]string `json:"in"`
	Out           map[string]string `json:"out"`
}
