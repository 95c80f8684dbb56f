package domain

import "time"

// TokenAmount is one side of a swap: a minimal-unit decimal-string amount
// and its denom. Amounts can exceed the safe float64 integer range and must
// never pass through binary floating point.
type TokenAmount struct {
	Amount string `json:"amount"`
	Denom  string `json:"denom"`
}

// SwapEvent is one token_swapped event extracted from a transaction log.
type SwapEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	In        TokenAmount `json:"in"`
	Out       TokenAmount `json:"out"`
}

// ActivityBucket aggregates swap events over one fixed time window.
// Timestamp is the bucket start; In and Out map denom to the exact decimal
// sum over all events in the bucket. Denoms with no activity are absent
// from the maps, not zero-valued.
type ActivityBucket struct {
	Timestamp time.Time         `json:"timestamp"`
	Count     int               `json:"count"`
	In        map[string]string `json:"in"`
	Out       map[string]string `json:"out"`
}
