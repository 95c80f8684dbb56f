package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"alloydash/internal/domain"
)

// trpcEnvelope is the wrapper the app-edge endpoints put around payloads.
type trpcEnvelope struct {
	Result struct {
		Data struct {
			JSON json.RawMessage `json:"json"`
		} `json:"data"`
	} `json:"result"`
}

type poolItems struct {
	Items []domain.RawPool `json:"items"`
}

// FetchPools retrieves the raw pool listing. No filtering is applied here;
// the overview aggregator owns the code-id allow-list.
func (c *Client) FetchPools(ctx context.Context) ([]domain.RawPool, error) {
	var envelope trpcEnvelope
	if err := c.getJSON(ctx, c.cfg.PoolsURL, &envelope); err != nil {
		return nil, fmt.Errorf("fetch pools: %w", err)
	}

	var items poolItems
	if err := json.Unmarshal(envelope.Result.Data.JSON, &items); err != nil {
		return nil, fmt.Errorf("decode pool items: %w", err)
	}
	return items.Items, nil
}

type assetListResponse struct {
	Assets []domain.Asset `json:"assets"`
}

// FetchAssetList retrieves the chain-registry asset list. Derived fields
// (Denom, Decimal) are left for the registry loader to fill in.
func (c *Client) FetchAssetList(ctx context.Context) ([]domain.Asset, error) {
	var resp assetListResponse
	if err := c.getJSON(ctx, c.cfg.AssetListURL, &resp); err != nil {
		return nil, fmt.Errorf("fetch asset list: %w", err)
	}
	return resp.Assets, nil
}

// FetchPrices retrieves spot prices for the given denoms. The response maps
// each denom to a source→price map; callers flatten to the first source.
func (c *Client) FetchPrices(ctx context.Context, denoms []string) (map[string]map[string]float64, error) {
	url := strings.ReplaceAll(c.cfg.PriceURL, "{denoms}", strings.Join(denoms, ","))

	var resp map[string]map[string]float64
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	return resp, nil
}

// rawFiatAmount is the serialized fiat blob shape used across the app-edge
// endpoints and the pool listing's market fields.
type rawFiatAmount struct {
	Fiat struct {
		Currency string `json:"currency"`
		Symbol   string `json:"symbol"`
	} `json:"fiat"`
	Amount string `json:"amount"`
}

func (r rawFiatAmount) toDomain() domain.FiatAmount {
	return domain.FiatAmount{
		Currency: r.Fiat.Currency,
		Symbol:   r.Fiat.Symbol,
		Amount:   r.Amount,
	}
}

// ParseFiatAmount decodes a serialized fiat blob into a domain.FiatAmount.
func ParseFiatAmount(blob string) (domain.FiatAmount, error) {
	var raw rawFiatAmount
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return domain.FiatAmount{}, fmt.Errorf("decode fiat amount: %w", err)
	}
	return raw.toDomain(), nil
}

// FetchAssetPrice retrieves the oracle market price of a single asset.
// The payload is double-encoded: the envelope's json field is a JSON string
// that itself parses into a fiat blob.
func (c *Client) FetchAssetPrice(ctx context.Context, denom string) (*domain.FiatAmount, error) {
	url := strings.ReplaceAll(c.cfg.AssetPriceURL, "{denom}", denom)

	var envelope trpcEnvelope
	if err := c.getJSON(ctx, url, &envelope); err != nil {
		return nil, fmt.Errorf("fetch asset price %s: %w", denom, err)
	}

	var blob string
	if err := json.Unmarshal(envelope.Result.Data.JSON, &blob); err != nil {
		return nil, fmt.Errorf("decode asset price %s: %w", denom, err)
	}

	amount, err := ParseFiatAmount(blob)
	if err != nil {
		return nil, fmt.Errorf("decode asset price %s: %w", denom, err)
	}
	return &amount, nil
}

type liquiditySample struct {
	Timestamp    string  `json:"timestamp"`
	LiquidityUSD float64 `json:"liquidity_usd"`
}

// FetchLiquidityChart retrieves the full liquidity history of a pool in
// ascending time order. The first sample is a partial bucket; the overview
// aggregator drops it.
func (c *Client) FetchLiquidityChart(ctx context.Context, poolID string) ([]domain.LiquidityPoint, error) {
	url := strings.ReplaceAll(c.cfg.LiquidityURL, "{poolId}", poolID)

	var samples []liquiditySample
	if err := c.getJSON(ctx, url, &samples); err != nil {
		return nil, fmt.Errorf("fetch liquidity chart pool=%s: %w", poolID, err)
	}

	points := make([]domain.LiquidityPoint, 0, len(samples))
	for _, s := range samples {
		points = append(points, domain.LiquidityPoint{Time: s.Timestamp, Value: s.LiquidityUSD})
	}
	return points, nil
}
