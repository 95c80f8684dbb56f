// Package overview builds the display-ready pool overview: it joins raw
// pool listings against the asset registry, derives the alloyed asset,
// enriches supported pools with liquidity history, prices and limiters,
// and partitions the result into supported and unsupported pools.
package overview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"alloydash/internal/cache"
	"alloydash/internal/domain"
	"alloydash/internal/upstream"
)

// DefaultTTL is the overview revalidation interval.
const DefaultTTL = 30 * time.Minute

const overviewCacheKey = "pools-overview"

// PoolFetcher fetches raw pool data.
type PoolFetcher interface {
	FetchPools(ctx context.Context) ([]domain.RawPool, error)
	FetchLiquidityChart(ctx context.Context, poolID string) ([]domain.LiquidityPoint, error)
}

// AssetSource provides the denom-keyed asset lookup map.
type AssetSource interface {
	AssetMap(ctx context.Context) (map[string]domain.Asset, error)
}

// PriceSource resolves spot and alloy prices. Both calls are best-effort.
type PriceSource interface {
	GetPrices(ctx context.Context, denoms []string) map[string]float64
	ResolveAlloyPrice(ctx context.Context, alloyDenom string, reservePrices map[string]float64) *domain.FiatAmount
}

// LimiterSource fetches limiter configuration. Best-effort.
type LimiterSource interface {
	GetLimiters(ctx context.Context, contractAddress string) map[string]domain.Limiter
}

// Config holds the aggregator's tunables.
type Config struct {
	// CodeIDs is the allow-list of accepted pool contract code ids.
	CodeIDs []string
	// BaseAppURL is prepended to relative asset image URLs.
	BaseAppURL string
	// TTL is the overview cache revalidation interval.
	TTL time.Duration
}

// Aggregator computes pool overviews.
type Aggregator struct {
	pools    PoolFetcher
	assets   AssetSource
	prices   PriceSource
	limiters LimiterSource
	codeIDs  map[string]struct{}
	baseURL  string
	cache    *cache.Cache[*domain.OverviewResult]
	logger   *log.Logger
}

// New creates an overview aggregator.
func New(cfg Config, pools PoolFetcher, assets AssetSource, prices PriceSource, limiters LimiterSource, logger *log.Logger) *Aggregator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BaseAppURL == "" {
		cfg.BaseAppURL = upstream.DefaultBaseAppURL
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[overview] ", log.LstdFlags)
	}

	codeIDs := make(map[string]struct{}, len(cfg.CodeIDs))
	for _, id := range cfg.CodeIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			codeIDs[id] = struct{}{}
		}
	}

	return &Aggregator{
		pools:    pools,
		assets:   assets,
		prices:   prices,
		limiters: limiters,
		codeIDs:  codeIDs,
		baseURL:  strings.TrimSuffix(cfg.BaseAppURL, "/"),
		cache:    cache.New[*domain.OverviewResult](cfg.TTL, cache.WithName[*domain.OverviewResult]("pools-overview")),
		logger:   logger,
	}
}

// DeriveAlloyDenom derives the synthetic alloyed-asset denom from a pool's
// contract address and its base64-encoded instantiate message.
func DeriveAlloyDenom(contractAddress, instantiateMsgB64 string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(instantiateMsgB64)
	if err != nil {
		return "", fmt.Errorf("decode instantiate msg: %w", err)
	}

	var msg struct {
		AlloyedAssetSubdenom string `json:"alloyed_asset_subdenom"`
	}
	if err := json.Unmarshal(decoded, &msg); err != nil {
		return "", fmt.Errorf("parse instantiate msg: %w", err)
	}
	if msg.AlloyedAssetSubdenom == "" {
		return "", fmt.Errorf("instantiate msg has no alloyed_asset_subdenom")
	}
	return fmt.Sprintf("factory/%s/alloyed/%s", contractAddress, msg.AlloyedAssetSubdenom), nil
}

// GetRawPools fetches the raw pool listing filtered to the code-id
// allow-list. Failures degrade to an empty list so one bad upstream does
// not blank the whole dashboard.
func (a *Aggregator) GetRawPools(ctx context.Context) []domain.RawPool {
	raw, err := a.pools.FetchPools(ctx)
	if err != nil {
		a.logger.Printf("warn: fetch raw pools failed: %v", err)
		return []domain.RawPool{}
	}

	pools := make([]domain.RawPool, 0, len(raw))
	for _, p := range raw {
		if _, ok := a.codeIDs[p.Raw.CodeID]; !ok {
			continue
		}
		// Advisory only: a listing entry with an address the LCD will not
		// accept still renders, it just cannot be enriched.
		if _, _, err := bech32.DecodeNoLimit(p.Raw.ContractAddress); err != nil {
			a.logger.Printf("warn: pool %s contract address %q is not valid bech32: %v", p.ID, p.Raw.ContractAddress, err)
		}
		pools = append(pools, p)
	}
	return pools
}

// parseReserveCoins parses each serialized reserve coin blob and joins it
// against the asset map. A malformed blob is logged and skipped; an
// unresolvable denom yields a nil Asset. Relative image URLs are rewritten
// to absolute ones.
func (a *Aggregator) parseReserveCoins(poolID string, blobs []string, assetMap map[string]domain.Asset) []domain.ReserveCoin {
	coins := make([]domain.ReserveCoin, 0, len(blobs))
	for _, blob := range blobs {
		var c domain.CoinAmount
		if err := json.Unmarshal([]byte(blob), &c); err != nil {
			a.logger.Printf("warn: pool %s has malformed reserve coin blob: %v", poolID, err)
			continue
		}

		if url := c.Currency.CoinImageURL; url != "" && strings.HasPrefix(url, "/") {
			c.Currency.CoinImageURL = a.baseURL + url
		}

		coin := domain.ReserveCoin{Currency: c}
		if asset, ok := assetMap[c.Currency.CoinMinimalDenom]; ok {
			coin.Asset = &asset
		}
		coins = append(coins, coin)
	}
	return coins
}

// fiatOrZero parses a serialized fiat blob, substituting the zero value for
// absent or malformed input.
func (a *Aggregator) fiatOrZero(poolID, blob string) domain.FiatAmount {
	if blob == "" {
		return domain.ZeroFiat()
	}
	amount, err := upstream.ParseFiatAmount(blob)
	if err != nil {
		a.logger.Printf("warn: pool %s has malformed fiat blob: %v", poolID, err)
		return domain.ZeroFiat()
	}
	return amount
}

// FillPoolOverview joins one raw pool into a display-ready overview. It
// never fails: an unresolvable alloyed asset or a single-coin pool yields
// an unsupported record, and every enrichment fetch degrades independently.
func (a *Aggregator) FillPoolOverview(ctx context.Context, pool domain.RawPool, assetMap map[string]domain.Asset) *domain.PoolOverview {
	out := &domain.PoolOverview{
		ID:                   pool.ID,
		Type:                 pool.Type,
		CodeID:               pool.Raw.CodeID,
		ContractAddress:      pool.Raw.ContractAddress,
		ReserveCoins:         a.parseReserveCoins(pool.ID, pool.ReserveCoins, assetMap),
		SpreadFactor:         pool.SpreadFactor,
		TotalFiatValueLocked: pool.TotalFiatValueLocked,
		PoolNameByDenom:      pool.PoolNameByDenom,
		Volume24hUsd:         domain.ZeroFiat(),
		Volume7dUsd:          domain.ZeroFiat(),
		FeesSpent24hUsd:      domain.ZeroFiat(),
		FeesSpent7dUsd:       domain.ZeroFiat(),
		Prices:               map[string]float64{},
		LiquidityChart:       []domain.LiquidityPoint{},
	}
	if m := pool.Market; m != nil {
		out.Volume24hUsd = a.fiatOrZero(pool.ID, m.Volume24hUsd)
		out.Volume7dUsd = a.fiatOrZero(pool.ID, m.Volume7dUsd)
		out.FeesSpent24hUsd = a.fiatOrZero(pool.ID, m.FeesSpent24hUsd)
		out.FeesSpent7dUsd = a.fiatOrZero(pool.ID, m.FeesSpent7dUsd)
	}

	alloyDenom, err := DeriveAlloyDenom(pool.Raw.ContractAddress, pool.Raw.InstantiateMsg)
	if err != nil {
		a.logger.Printf("warn: pool %s: %v", pool.ID, err)
		return out
	}
	out.Alloy.Denom = alloyDenom

	alloyAsset, ok := assetMap[alloyDenom]
	if !ok || len(pool.ReserveCoins) <= 1 {
		// Unsupported: reserve coins stay joined, alloy and limiters stay nil.
		return out
	}

	reserveDenoms := make([]string, 0, len(out.ReserveCoins))
	for _, c := range out.ReserveCoins {
		reserveDenoms = append(reserveDenoms, c.Currency.Currency.CoinMinimalDenom)
	}

	// The three enrichment fetches are independent and each degrades to an
	// empty result on its own.
	var (
		wg       sync.WaitGroup
		chart    []domain.LiquidityPoint
		prices   map[string]float64
		limiters map[string]domain.Limiter
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		points, err := a.pools.FetchLiquidityChart(ctx, pool.ID)
		if err != nil {
			a.logger.Printf("warn: pool %s liquidity chart failed: %v", pool.ID, err)
			return
		}
		// First sample is a partial bucket.
		if len(points) > 0 {
			chart = points[1:]
		}
	}()
	go func() {
		defer wg.Done()
		prices = a.prices.GetPrices(ctx, reserveDenoms)
	}()
	go func() {
		defer wg.Done()
		limiters = a.limiters.GetLimiters(ctx, pool.Raw.ContractAddress)
	}()
	wg.Wait()

	if chart != nil {
		out.LiquidityChart = chart
	}
	if prices != nil {
		out.Prices = prices
	}
	if limiters == nil {
		limiters = map[string]domain.Limiter{}
	}

	out.Alloy.Asset = &alloyAsset
	out.Alloy.Price = a.prices.ResolveAlloyPrice(ctx, alloyDenom, out.Prices)
	out.Limiters = limiters
	return out
}

// GetPoolsOverview returns the full partitioned overview. The computation
// fetches the raw pool listing and asset map once, fills every pool
// concurrently, and is cached for the configured TTL; concurrent callers
// during the valid window share one computation.
func (a *Aggregator) GetPoolsOverview(ctx context.Context) (*domain.OverviewResult, error) {
	return a.cache.GetOrFill(ctx, overviewCacheKey, func(ctx context.Context) (*domain.OverviewResult, error) {
		raw := a.GetRawPools(ctx)

		assetMap, err := a.assets.AssetMap(ctx)
		if err != nil {
			return nil, fmt.Errorf("load asset map: %w", err)
		}

		filled := make([]*domain.PoolOverview, len(raw))
		var wg sync.WaitGroup
		for i, pool := range raw {
			wg.Add(1)
			go func(i int, pool domain.RawPool) {
				defer wg.Done()
				filled[i] = a.FillPoolOverview(ctx, pool, assetMap)
			}(i, pool)
		}
		wg.Wait()

		result := &domain.OverviewResult{
			Pools:            []*domain.PoolOverview{},
			UnsupportedPools: []*domain.PoolOverview{},
		}
		for _, p := range filled {
			if p.Supported() {
				result.Pools = append(result.Pools, p)
			} else {
				result.UnsupportedPools = append(result.UnsupportedPools, p)
			}
		}
		a.logger.Printf("pools overview: %d supported, %d unsupported", len(result.Pools), len(result.UnsupportedPools))
		return result, nil
	})
}

// GetPoolOverview returns the supported pool with the given id from the
// cached aggregate, or nil when it is absent or unsupported. A nil result
// is a valid "not found" state, not an error.
func (a *Aggregator) GetPoolOverview(ctx context.Context, poolID string) (*domain.PoolOverview, error) {
	result, err := a.GetPoolsOverview(ctx)
	if err != nil {
		return nil, err
	}
	return result.Find(poolID), nil
}

// Invalidate drops the cached overview, forcing the next access to
// recompute. Used by the refresh scheduler.
func (a *Aggregator) Invalidate() {
	a.cache.Invalidate(overviewCacheKey)
}
