package price

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"alloydash/internal/domain"
)

type fakeFetcher struct {
	prices     map[string]map[string]float64
	pricesErr  error
	assetPrice *domain.FiatAmount
	assetErr   error
}

func (f *fakeFetcher) FetchPrices(context.Context, []string) (map[string]map[string]float64, error) {
	return f.prices, f.pricesErr
}

func (f *fakeFetcher) FetchAssetPrice(context.Context, string) (*domain.FiatAmount, error) {
	return f.assetPrice, f.assetErr
}

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func usd(amount string) *domain.FiatAmount {
	return &domain.FiatAmount{Currency: "usd", Symbol: "$", Amount: amount}
}

func TestGetPrices_FlattensFirstSource(t *testing.T) {
	svc := NewService(&fakeFetcher{prices: map[string]map[string]float64{
		"uosmo":   {"sqs": 0.48},
		"ibc/ABC": {"sqs": 61234.5},
	}}, 0, discard())

	prices := svc.GetPrices(context.Background(), []string{"uosmo", "ibc/ABC"})
	if len(prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(prices))
	}
	if prices["uosmo"] != 0.48 {
		t.Errorf("expected uosmo price 0.48, got %v", prices["uosmo"])
	}
}

func TestGetPrices_EmptyMapOnFailure(t *testing.T) {
	svc := NewService(&fakeFetcher{pricesErr: errors.New("http 502")}, 0, discard())

	prices := svc.GetPrices(context.Background(), []string{"uosmo"})
	if prices == nil {
		t.Fatal("expected empty map, got nil")
	}
	if len(prices) != 0 {
		t.Errorf("expected empty map, got %v", prices)
	}
}

func TestGetAssetMarketPrice_SanityFilter(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		want   bool
	}{
		{"plausible", "1.52", true},
		{"at threshold", "1000000", true},
		{"implausible", "1500000", false},
		{"malformed", "not-a-number", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(&fakeFetcher{assetPrice: usd(tc.amount)}, 0, discard())
			got := svc.GetAssetMarketPrice(context.Background(), "uosmo")
			if (got != nil) != tc.want {
				t.Errorf("amount %q: expected kept=%v, got %v", tc.amount, tc.want, got)
			}
		})
	}
}

func TestGetAssetMarketPrice_NilOnError(t *testing.T) {
	svc := NewService(&fakeFetcher{assetErr: errors.New("oracle down")}, 0, discard())
	if got := svc.GetAssetMarketPrice(context.Background(), "uosmo"); got != nil {
		t.Errorf("expected nil on fetch error, got %v", got)
	}
}

func TestResolveAlloyPrice_OraclePreferred(t *testing.T) {
	svc := NewService(&fakeFetcher{assetPrice: usd("2.5")}, 0, discard())

	got := svc.ResolveAlloyPrice(context.Background(), "factory/osmo1abc/alloyed/uusdc", map[string]float64{"a": 1, "b": 3})
	if got == nil || got.Amount != "2.5" {
		t.Fatalf("expected oracle price 2.5, got %v", got)
	}
}

func TestResolveAlloyPrice_MeanFallback(t *testing.T) {
	// Oracle price above the sanity threshold is discarded; the mean of the
	// non-zero reserve prices takes its place.
	svc := NewService(&fakeFetcher{assetPrice: usd("1500000")}, 0, discard())

	got := svc.ResolveAlloyPrice(context.Background(), "alloy", map[string]float64{
		"a": 1.0,
		"b": 3.0,
		"c": 0, // ignored
	})
	if got == nil {
		t.Fatal("expected fallback price, got nil")
	}
	if got.Amount != "2" {
		t.Errorf("expected mean 2, got %q", got.Amount)
	}
}

func TestResolveAlloyPrice_NilWhenNothingPlausible(t *testing.T) {
	svc := NewService(&fakeFetcher{assetErr: errors.New("oracle down")}, 0, discard())

	if got := svc.ResolveAlloyPrice(context.Background(), "alloy", map[string]float64{"a": 0}); got != nil {
		t.Errorf("expected nil when no prices available, got %v", got)
	}
	if got := svc.ResolveAlloyPrice(context.Background(), "alloy", nil); got != nil {
		t.Errorf("expected nil for empty reserve prices, got %v", got)
	}
}
