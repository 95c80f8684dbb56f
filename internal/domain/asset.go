package domain

// DefaultAssetDecimals is used when an asset's denom units carry no exponent.
const DefaultAssetDecimals = 6

// DenomUnit is one entry of a registry asset's denomination ladder.
type DenomUnit struct {
	Denom    string   `json:"denom"`
	Exponent int      `json:"exponent"`
	Aliases  []string `json:"aliases,omitempty"`
}

// TraceCounterparty identifies the origin chain of a bridged asset.
type TraceCounterparty struct {
	ChainName string `json:"chain_name"`
	BaseDenom string `json:"base_denom"`
}

// Trace is one hop of an asset's provenance chain.
type Trace struct {
	Type         string            `json:"type"`
	Counterparty TraceCounterparty `json:"counterparty"`
	Provider     string            `json:"provider,omitempty"`
}

// AssetImage holds display image URLs for an asset.
type AssetImage struct {
	PNG string `json:"png,omitempty"`
	SVG string `json:"svg,omitempty"`
}

// Asset is a registry asset joined with its derived denom and decimals.
// Instances are immutable once loaded and shared read-only by all consumers.
type Asset struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Base        string       `json:"base"`
	Display     string       `json:"display,omitempty"`
	Symbol      string       `json:"symbol"`
	DenomUnits  []DenomUnit  `json:"denom_units"`
	Traces      []Trace      `json:"traces,omitempty"`
	Images      []AssetImage `json:"images,omitempty"`
	CoingeckoID string       `json:"coingecko_id,omitempty"`

	// Derived on load: Denom is the first denom unit's denom (minimal
	// on-chain unit), Decimal the last unit's exponent (default 6).
	Denom   string `json:"denom"`
	Decimal int    `json:"decimal"`
}

// CounterpartyChain returns the chain name of the last provenance hop,
// or empty when the asset is native.
func (a *Asset) CounterpartyChain() string {
	if len(a.Traces) == 0 {
		return ""
	}
	return a.Traces[len(a.Traces)-1].Counterparty.ChainName
}

// Coin is a denom/amount pair. Amount is a decimal string in minimal units.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// FiatAmount is a fiat-denominated value. Amount is a decimal string.
type FiatAmount struct {
	Currency string `json:"currency"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

// ZeroFiat is the placeholder value for missing fiat aggregates.
func ZeroFiat() FiatAmount {
	return FiatAmount{Currency: "usd", Symbol: "$", Amount: "0"}
}
