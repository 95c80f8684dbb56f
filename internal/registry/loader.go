// Package registry loads the canonical asset list and exposes a
// denom-keyed lookup map. Registry failures are hard: callers must not
// mistake "no assets" for "no pools supported".
package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"alloydash/internal/cache"
	"alloydash/internal/domain"
)

// DefaultTTL is the registry revalidation interval.
const DefaultTTL = 30 * time.Minute

const assetsCacheKey = "asset-list"

// AssetFetcher fetches the raw chain-registry asset list.
type AssetFetcher interface {
	FetchAssetList(ctx context.Context) ([]domain.Asset, error)
}

// Loader fetches and memoizes the canonical asset list.
type Loader struct {
	fetcher AssetFetcher
	cache   *cache.Cache[[]domain.Asset]
	logger  *log.Logger
}

// NewLoader creates a registry loader with the given revalidation interval.
func NewLoader(fetcher AssetFetcher, ttl time.Duration, logger *log.Logger) *Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[registry] ", log.LstdFlags)
	}
	return &Loader{
		fetcher: fetcher,
		cache:   cache.New[[]domain.Asset](ttl, cache.WithName[[]domain.Asset]("asset-list")),
		logger:  logger,
	}
}

// LoadAssets returns the asset list with derived Denom and Decimal filled
// in. The result is cached for the loader's TTL; any fetch or parse failure
// propagates to the caller.
func (l *Loader) LoadAssets(ctx context.Context) ([]domain.Asset, error) {
	return l.cache.GetOrFill(ctx, assetsCacheKey, func(ctx context.Context) ([]domain.Asset, error) {
		raw, err := l.fetcher.FetchAssetList(ctx)
		if err != nil {
			return nil, fmt.Errorf("load assets: %w", err)
		}

		assets := make([]domain.Asset, 0, len(raw))
		for _, a := range raw {
			if a.Base == "" {
				l.logger.Printf("skipping asset with empty base (name=%q)", a.Name)
				continue
			}
			assets = append(assets, derive(a))
		}
		l.logger.Printf("loaded %d assets", len(assets))
		return assets, nil
	})
}

// derive fills Denom and Decimal from the denom unit ladder: the first
// unit names the minimal on-chain denom, the last unit's exponent is the
// display decimal count (default 6 when absent or zero).
func derive(a domain.Asset) domain.Asset {
	a.Denom = a.Base
	a.Decimal = domain.DefaultAssetDecimals
	if len(a.DenomUnits) > 0 {
		a.Denom = a.DenomUnits[0].Denom
		if exp := a.DenomUnits[len(a.DenomUnits)-1].Exponent; exp != 0 {
			a.Decimal = exp
		}
	}
	return a
}

// AssetMap returns the asset list indexed by base denom. On duplicate base
// entries the last one wins; upstream is expected to keep bases unique.
func (l *Loader) AssetMap(ctx context.Context) (map[string]domain.Asset, error) {
	assets, err := l.LoadAssets(ctx)
	if err != nil {
		return nil, err
	}

	m := make(map[string]domain.Asset, len(assets))
	for _, a := range assets {
		m[a.Base] = a
	}
	return m, nil
}
