package domain

// Known pool type discriminators from the pool listing endpoint.
const (
	PoolTypeCosmwasm           = "cosmwasm"
	PoolTypeCosmwasmTransmuter = "cosmwasm-transmuter"
)

// RawPoolContract is the on-chain half of a raw pool listing item.
type RawPoolContract struct {
	ContractAddress string `json:"contract_address"`
	CodeID          string `json:"code_id"`
	PoolID          string `json:"pool_id"`
	InstantiateMsg  string `json:"instantiate_msg"` // base64-encoded JSON
}

// RawPoolMarket carries serialized fiat aggregates; each field is a JSON
// blob that parses into a FiatAmount, and any of them may be absent.
type RawPoolMarket struct {
	Volume24hUsd    string `json:"volume24hUsd,omitempty"`
	Volume7dUsd     string `json:"volume7dUsd,omitempty"`
	FeesSpent24hUsd string `json:"feesSpent24hUsd,omitempty"`
	FeesSpent7dUsd  string `json:"feesSpent7dUsd,omitempty"`
}

// RawPool is one item of the pool listing endpoint, before any joining.
// ReserveCoins entries are serialized currency-amount blobs requiring parse.
type RawPool struct {
	ID                   string          `json:"id"`
	Type                 string          `json:"type"`
	Raw                  RawPoolContract `json:"raw"`
	ReserveCoins         []string        `json:"reserveCoins"`
	SpreadFactor         string          `json:"spreadFactor"`
	TotalFiatValueLocked string          `json:"totalFiatValueLocked"`
	PoolNameByDenom      string          `json:"poolNameByDenom,omitempty"`
	Market               *RawPoolMarket  `json:"market,omitempty"`
}

// CoinCurrency is the currency metadata embedded in a reserve coin blob.
type CoinCurrency struct {
	CoinDenom        string `json:"coinDenom"`
	CoinMinimalDenom string `json:"coinMinimalDenom"`
	CoinDecimals     int    `json:"coinDecimals"`
	CoinGeckoID      string `json:"coinGeckoId,omitempty"`
	CoinImageURL     string `json:"coinImageUrl,omitempty"`
}

// CoinAmount is a parsed reserve coin blob: currency metadata plus a
// minimal-unit decimal-string amount.
type CoinAmount struct {
	Currency CoinCurrency `json:"currency"`
	Amount   string       `json:"amount"`
}

// ReserveCoin joins a parsed reserve coin against the asset registry.
// Asset is nil when the coin's minimal denom does not resolve.
type ReserveCoin struct {
	Currency CoinAmount `json:"currency"`
	Asset    *Asset     `json:"asset"`
}

// LiquidityPoint is one sample of a pool's fiat-valued liquidity history.
type LiquidityPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Alloy is the resolved synthetic asset of a pool. Asset is nil for
// unsupported pools; Price is nil when no plausible price could be derived
// and consumers must render a placeholder, never zero.
type Alloy struct {
	Denom string      `json:"denom"`
	Asset *Asset      `json:"asset"`
	Price *FiatAmount `json:"price"`
}

// PoolOverview is a raw pool fully joined for display. Limiters is nil for
// unsupported pools and possibly empty (no caps) for supported ones.
type PoolOverview struct {
	ID                   string             `json:"id"`
	Type                 string             `json:"type"`
	CodeID               string             `json:"codeId"`
	ContractAddress      string             `json:"contractAddress"`
	ReserveCoins         []ReserveCoin      `json:"reserveCoins"`
	SpreadFactor         string             `json:"spreadFactor"`
	TotalFiatValueLocked string             `json:"totalFiatValueLocked"`
	PoolNameByDenom      string             `json:"poolNameByDenom,omitempty"`
	Volume24hUsd         FiatAmount         `json:"volume24hUsd"`
	Volume7dUsd          FiatAmount         `json:"volume7dUsd"`
	FeesSpent24hUsd      FiatAmount         `json:"feesSpent24hUsd"`
	FeesSpent7dUsd       FiatAmount         `json:"feesSpent7dUsd"`
	Prices               map[string]float64 `json:"prices"`
	LiquidityChart       []LiquidityPoint   `json:"liquidityChart"`
	Alloy                Alloy              `json:"alloy"`
	Limiters             map[string]Limiter `json:"limiters"`
}

// Supported reports whether the pool has a resolvable alloyed asset and
// more than one reserve coin.
func (p *PoolOverview) Supported() bool {
	return p.Alloy.Asset != nil && len(p.ReserveCoins) > 1
}

// OverviewResult partitions the full raw pool set. Every raw pool appears in
// exactly one of the two lists.
type OverviewResult struct {
	Pools            []*PoolOverview `json:"pools"`
	UnsupportedPools []*PoolOverview `json:"unsupportedPools"`
}

// Find returns the supported pool with the given id, or nil.
func (r *OverviewResult) Find(id string) *PoolOverview {
	for _, p := range r.Pools {
		if p.ID == id {
			return p
		}
	}
	return nil
}
