package domain

import "encoding/json"

// EventAttribute is one key/value attribute of a transaction event.
type EventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TxEvent is one event of a transaction's event log.
type TxEvent struct {
	Type       string           `json:"type"`
	Attributes []EventAttribute `json:"attributes"`
}

// Attribute returns the value of the named attribute and whether it exists.
func (e *TxEvent) Attribute(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// RawTx is a transaction search result entry with its event log.
type RawTx struct {
	TxHash    string    `json:"txhash"`
	Height    string    `json:"height"`
	Timestamp string    `json:"timestamp"` // RFC3339
	Code      int       `json:"code"`
	Events    []TxEvent `json:"events"`
}

// TxPage is the result of a windowed transaction search: the full match
// count and up to the page cap of fetched transactions, newest first.
type TxPage struct {
	Total int64    `json:"total"`
	Txs   []*RawTx `json:"txs"`
}

// PoolTransactionBlock locates a listed pool transaction on chain.
type PoolTransactionBlock struct {
	Height    int64  `json:"height"`
	Timestamp string `json:"timestamp"`
}

// PoolTransactionDetail is the indexer's view of one transaction.
type PoolTransactionDetail struct {
	Address  string `json:"address"`
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	Messages json.RawMessage `json:"messages"` // message list, kept as inline JSON
	IsIBC    bool   `json:"is_ibc"`
}

// PoolTransaction is one entry of the paginated per-pool transaction listing.
type PoolTransaction struct {
	Block       PoolTransactionBlock  `json:"block"`
	Transaction PoolTransactionDetail `json:"transaction"`
}
