// Package activity builds the per-pool swap activity view: it resolves a
// reference block height for the trailing 24h window, fetches the matching
// swap transactions from the LCD, and buckets the swapped amounts into
// fixed two-hour windows with exact decimal sums.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"alloydash/internal/cache"
	"alloydash/internal/domain"
)

// DefaultTTL is the activity revalidation interval.
const DefaultTTL = 30 * time.Minute

const (
	// The tx window is capped at 10 pages of 100.
	txPageLimit = 100
	maxTxPages  = 10

	// Approximate block count for 24h at ~1.2s per block. Used when the
	// indexer cannot resolve the window start height.
	blocksPerDay = 72000

	lookbackWindow = 24 * time.Hour
	bucketWidth    = 2 * time.Hour
)

const (
	eventTokenSwapped = "token_swapped"
	attrPoolID        = "pool_id"
	attrTokensIn      = "tokens_in"
	attrTokensOut     = "tokens_out"
)

var (
	// ErrNoReferenceHeight means both the indexer and the LCD fallback
	// failed to produce a window start height. Not degradable: without a
	// height the tx query is meaningless.
	ErrNoReferenceHeight = errors.New("unable to determine reference block height")

	// ErrMalformedAmount means a token_swapped event carried an amount
	// attribute that does not parse as digits followed by a denom.
	ErrMalformedAmount = errors.New("malformed token amount")
)

// Amounts are ASCII digits immediately followed by the denom, no separator.
var tokenAmountPattern = regexp.MustCompile(`^([0-9]+)(.+)$`)

// TxSearcher runs event-filtered transaction searches against the LCD.
type TxSearcher interface {
	LatestHeight(ctx context.Context) (int64, error)
	TxSearchTotal(ctx context.Context, filters []string) (int64, error)
	TxSearchPage(ctx context.Context, filters []string, page, limit int) ([]*domain.RawTx, error)
}

// HeightSource resolves the latest block at or before a point in time.
type HeightSource interface {
	HeightBefore(ctx context.Context, t time.Time) (int64, error)
}

// TxLister serves the paginated per-pool transaction listing.
type TxLister interface {
	PoolTransactions(ctx context.Context, poolID string, page, limit int) ([]domain.PoolTransaction, error)
	PoolTransactionsCount(ctx context.Context, poolID string) (int64, error)
}

// Service computes per-pool swap activity.
type Service struct {
	searcher TxSearcher
	heights  HeightSource
	lister   TxLister

	txCache     *cache.Cache[*domain.TxPage]
	bucketCache *cache.Cache[[]domain.ActivityBucket]

	now    func() time.Time
	logger *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTTL overrides the revalidation interval of both activity caches.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.txCache = newTxCache(ttl)
		s.bucketCache = newBucketCache(ttl)
	}
}

func newTxCache(ttl time.Duration) *cache.Cache[*domain.TxPage] {
	return cache.New[*domain.TxPage](ttl, cache.WithName[*domain.TxPage]("activity-txs"))
}

func newBucketCache(ttl time.Duration) *cache.Cache[[]domain.ActivityBucket] {
	return cache.New[[]domain.ActivityBucket](ttl, cache.WithName[[]domain.ActivityBucket]("activity-buckets"))
}

// NewService creates an activity service.
func NewService(searcher TxSearcher, heights HeightSource, lister TxLister, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[activity] ", log.LstdFlags)
	}
	s := &Service{
		searcher:    searcher,
		heights:     heights,
		lister:      lister,
		txCache:     newTxCache(DefaultTTL),
		bucketCache: newBucketCache(DefaultTTL),
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// referenceHeight resolves the block height that starts the trailing 24h
// window. The indexer is asked first; when it fails the LCD's current
// height minus the approximate day's worth of blocks takes its place.
func (s *Service) referenceHeight(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-lookbackWindow)

	height, indexerErr := s.heights.HeightBefore(ctx, cutoff)
	if indexerErr == nil {
		return height, nil
	}
	s.logger.Printf("warn: indexer height lookup failed, using block-count fallback: %v", indexerErr)

	latest, lcdErr := s.searcher.LatestHeight(ctx)
	if lcdErr != nil {
		return 0, fmt.Errorf("%w: indexer: %v; lcd: %v", ErrNoReferenceHeight, indexerErr, lcdErr)
	}
	return latest - blocksPerDay, nil
}

// GetPoolInOutTxs fetches the pool's swap transactions over the trailing
// window, newest first. The count request degrades to an empty result on
// failure, as does any single result page; a missing reference height is
// the only hard failure.
func (s *Service) GetPoolInOutTxs(ctx context.Context, poolID string) (*domain.TxPage, error) {
	return s.txCache.GetOrFill(ctx, poolID, func(ctx context.Context) (*domain.TxPage, error) {
		height, err := s.referenceHeight(ctx)
		if err != nil {
			return nil, err
		}

		filters := []string{
			fmt.Sprintf("token_swapped.pool_id=%s", poolID),
			fmt.Sprintf("tx.height>=%d", height),
		}

		total, err := s.searcher.TxSearchTotal(ctx, filters)
		if err != nil {
			s.logger.Printf("warn: tx count for pool %s failed: %v", poolID, err)
			return &domain.TxPage{Total: 0, Txs: []*domain.RawTx{}}, nil
		}

		pages := int((total + txPageLimit - 1) / txPageLimit)
		if pages > maxTxPages {
			pages = maxTxPages
		}

		results := make([][]*domain.RawTx, pages)
		var wg sync.WaitGroup
		for i := 0; i < pages; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				txs, err := s.searcher.TxSearchPage(ctx, filters, i+1, txPageLimit)
				if err != nil {
					s.logger.Printf("warn: tx page %d for pool %s failed: %v", i+1, poolID, err)
					return
				}
				results[i] = txs
			}(i)
		}
		wg.Wait()

		page := &domain.TxPage{Total: total, Txs: []*domain.RawTx{}}
		for _, txs := range results {
			page.Txs = append(page.Txs, txs...)
		}
		return page, nil
	})
}

// parseTokenAmount splits an event amount string into its leading integer
// amount and trailing denom.
func parseTokenAmount(value string) (domain.TokenAmount, error) {
	m := tokenAmountPattern.FindStringSubmatch(value)
	if m == nil {
		return domain.TokenAmount{}, fmt.Errorf("%w: %q", ErrMalformedAmount, value)
	}
	return domain.TokenAmount{Amount: m[1], Denom: m[2]}, nil
}

// truncateToBucket floors a timestamp to its even-hour two-hour bucket.
func truncateToBucket(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour()-t.Hour()%2, 0, 0, 0, time.UTC)
}

// extractSwapEvents pulls the pool's token_swapped events out of a
// transaction batch, preserving fetch order. A malformed or missing amount
// attribute fails the extraction.
func extractSwapEvents(poolID string, txs []*domain.RawTx) ([]domain.SwapEvent, error) {
	var events []domain.SwapEvent
	for _, tx := range txs {
		ts, err := time.Parse(time.RFC3339, tx.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("tx %s: parse timestamp %q: %w", tx.TxHash, tx.Timestamp, err)
		}
		for i := range tx.Events {
			e := &tx.Events[i]
			if e.Type != eventTokenSwapped {
				continue
			}
			if id, ok := e.Attribute(attrPoolID); !ok || id != poolID {
				continue
			}

			rawIn, ok := e.Attribute(attrTokensIn)
			if !ok {
				return nil, fmt.Errorf("tx %s: %w: missing %s attribute", tx.TxHash, ErrMalformedAmount, attrTokensIn)
			}
			in, err := parseTokenAmount(rawIn)
			if err != nil {
				return nil, fmt.Errorf("tx %s: %s: %w", tx.TxHash, attrTokensIn, err)
			}

			rawOut, ok := e.Attribute(attrTokensOut)
			if !ok {
				return nil, fmt.Errorf("tx %s: %w: missing %s attribute", tx.TxHash, ErrMalformedAmount, attrTokensOut)
			}
			out, err := parseTokenAmount(rawOut)
			if err != nil {
				return nil, fmt.Errorf("tx %s: %s: %w", tx.TxHash, attrTokensOut, err)
			}

			events = append(events, domain.SwapEvent{Timestamp: ts, In: in, Out: out})
		}
	}
	return events, nil
}

type bucketAccum struct {
	count int
	in    map[string]decimal.Decimal
	out   map[string]decimal.Decimal
}

// bucketEvents groups swap events into two-hour buckets in first-seen
// order. Events arrive newest first, so the buckets come out newest first.
func bucketEvents(events []domain.SwapEvent) ([]domain.ActivityBucket, error) {
	order := make([]time.Time, 0)
	accums := make(map[time.Time]*bucketAccum)

	for _, ev := range events {
		key := truncateToBucket(ev.Timestamp)
		acc, ok := accums[key]
		if !ok {
			acc = &bucketAccum{
				in:  make(map[string]decimal.Decimal),
				out: make(map[string]decimal.Decimal),
			}
			accums[key] = acc
			order = append(order, key)
		}
		acc.count++

		amountIn, err := decimal.NewFromString(ev.In.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedAmount, ev.In.Amount, err)
		}
		acc.in[ev.In.Denom] = acc.in[ev.In.Denom].Add(amountIn)

		amountOut, err := decimal.NewFromString(ev.Out.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedAmount, ev.Out.Amount, err)
		}
		acc.out[ev.Out.Denom] = acc.out[ev.Out.Denom].Add(amountOut)
	}

	buckets := make([]domain.ActivityBucket, 0, len(order))
	for _, key := range order {
		acc := accums[key]
		b := domain.ActivityBucket{
			Timestamp: key,
			Count:     acc.count,
			In:        make(map[string]string, len(acc.in)),
			Out:       make(map[string]string, len(acc.out)),
		}
		for denom, sum := range acc.in {
			b.In[denom] = sum.String()
		}
		for denom, sum := range acc.out {
			b.Out[denom] = sum.String()
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// GetPoolInOutAssets returns the pool's swap activity bucketed into
// two-hour windows, newest bucket first. Amount sums are exact decimal
// arithmetic; a malformed event fails the whole computation rather than
// contributing a silent zero.
func (s *Service) GetPoolInOutAssets(ctx context.Context, poolID string) ([]domain.ActivityBucket, error) {
	return s.bucketCache.GetOrFill(ctx, poolID, func(ctx context.Context) ([]domain.ActivityBucket, error) {
		page, err := s.GetPoolInOutTxs(ctx, poolID)
		if err != nil {
			return nil, err
		}

		events, err := extractSwapEvents(poolID, page.Txs)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", poolID, err)
		}
		return bucketEvents(events)
	})
}

// GetTxsByPoolID returns one page of the pool's transaction listing from
// the indexer, newest first. Pages are 1-based.
func (s *Service) GetTxsByPoolID(ctx context.Context, poolID string, page, limit int) ([]domain.PoolTransaction, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	return s.lister.PoolTransactions(ctx, poolID, page, limit)
}

// GetTxsCountByPoolID returns the total transaction count for a pool.
func (s *Service) GetTxsCountByPoolID(ctx context.Context, poolID string) (int64, error) {
	return s.lister.PoolTransactionsCount(ctx, poolID)
}

// Invalidate drops the pool's cached activity, forcing the next access to
// refetch. The tx and bucket caches are dropped together.
func (s *Service) Invalidate(poolID string) {
	s.txCache.Invalidate(poolID)
	s.bucketCache.Invalidate(poolID)
}
