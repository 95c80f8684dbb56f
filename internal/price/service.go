// Package price resolves fiat spot prices for assets. Price data is
// best-effort everywhere: failures degrade to empty results or nil, never
// abort an aggregation run.
package price

import (
	"context"
	"log"
	"os"
	"strconv"

	"alloydash/internal/domain"
)

// DefaultSanityThreshold rejects oracle prices above this many fiat units
// as erroneous. The constant is a preserved upstream heuristic; override it
// through NewService when a deployment needs a different bound.
const DefaultSanityThreshold = 1_000_000

// Fetcher fetches raw price data from the price APIs.
type Fetcher interface {
	FetchPrices(ctx context.Context, denoms []string) (map[string]map[string]float64, error)
	FetchAssetPrice(ctx context.Context, denom string) (*domain.FiatAmount, error)
}

// Service resolves spot and market prices.
type Service struct {
	fetcher         Fetcher
	sanityThreshold float64
	logger          *log.Logger
}

// NewService creates a price service. A non-positive sanityThreshold falls
// back to the default.
func NewService(fetcher Fetcher, sanityThreshold float64, logger *log.Logger) *Service {
	if sanityThreshold <= 0 {
		sanityThreshold = DefaultSanityThreshold
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[price] ", log.LstdFlags)
	}
	return &Service{fetcher: fetcher, sanityThreshold: sanityThreshold, logger: logger}
}

// GetPrices returns spot prices for the given denoms, flattened to the
// first source value per denom. Any failure returns an empty map and a
// warning log; callers continue without prices.
func (s *Service) GetPrices(ctx context.Context, denoms []string) map[string]float64 {
	if len(denoms) == 0 {
		return map[string]float64{}
	}

	raw, err := s.fetcher.FetchPrices(ctx, denoms)
	if err != nil {
		s.logger.Printf("warn: fetch prices for %d denoms failed: %v", len(denoms), err)
		return map[string]float64{}
	}

	prices := make(map[string]float64, len(raw))
	for denom, sources := range raw {
		for _, v := range sources {
			prices[denom] = v
			break
		}
	}
	return prices
}

// GetAssetMarketPrice returns the oracle market price of a single asset,
// or nil when the fetch fails or the reported price is implausible.
func (s *Service) GetAssetMarketPrice(ctx context.Context, denom string) *domain.FiatAmount {
	amount, err := s.fetcher.FetchAssetPrice(ctx, denom)
	if err != nil {
		s.logger.Printf("warn: fetch market price denom=%s failed: %v", denom, err)
		return nil
	}
	if amount == nil {
		return nil
	}

	value, err := strconv.ParseFloat(amount.Amount, 64)
	if err != nil {
		s.logger.Printf("warn: market price denom=%s has malformed amount %q", denom, amount.Amount)
		return nil
	}
	if value > s.sanityThreshold {
		s.logger.Printf("warn: market price denom=%s value %v exceeds sanity threshold, discarding", denom, value)
		return nil
	}
	return amount
}

// ResolveAlloyPrice resolves the alloyed asset's price: the oracle price
// when plausible, otherwise the arithmetic mean of the pool's non-zero
// reserve-coin spot prices, otherwise nil. A nil result means the display
// layer shows a placeholder, never zero.
func (s *Service) ResolveAlloyPrice(ctx context.Context, alloyDenom string, reservePrices map[string]float64) *domain.FiatAmount {
	if oracle := s.GetAssetMarketPrice(ctx, alloyDenom); oracle != nil {
		return oracle
	}

	var sum float64
	var n int
	for _, v := range reservePrices {
		if v == 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return nil
	}

	mean := sum / float64(n)
	return &domain.FiatAmount{
		Currency: "usd",
		Symbol:   "$",
		Amount:   strconv.FormatFloat(mean, 'f', -1, 64),
	}
}
