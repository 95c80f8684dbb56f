// Package limiter fetches per-asset pool limiter configuration from the
// pool contract. Limiters are an enhancement: every failure degrades to an
// empty configuration and is logged, never propagated.
package limiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"os"

	"alloydash/internal/domain"
)

// listLimitersQuery is the contract smart-query payload, pre-encoded the
// way the LCD expects it in the request path.
var listLimitersQuery = base64.StdEncoding.EncodeToString([]byte(`{"list_limiters":{}}`))

// SmartQuerier performs contract smart queries.
type SmartQuerier interface {
	SmartQueryRaw(ctx context.Context, contractAddress, payloadB64 string, out any) error
}

// Service fetches limiter configuration.
type Service struct {
	querier SmartQuerier
	logger  *log.Logger
}

// NewService creates a limiter service.
func NewService(querier SmartQuerier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[limiter] ", log.LstdFlags)
	}
	return &Service{querier: querier, logger: logger}
}

// Raw response: data.limiters is a list of [[denom, label], variant] pairs.
type listLimitersResponse struct {
	Data struct {
		Limiters [][2]json.RawMessage `json:"limiters"`
	} `json:"data"`
}

type rawStaticLimiter struct {
	UpperLimit string `json:"upper_limit"`
}

type rawChangeLimiter struct {
	LatestValue    string                     `json:"latest_value"`
	BoundaryOffset string                     `json:"boundary_offset"`
	Divisions      []domain.LimiterDivision   `json:"divisions"`
	WindowConfig   domain.LimiterWindowConfig `json:"window_config"`
}

type rawLimiterVariant struct {
	Static *rawStaticLimiter `json:"static_limiter"`
	Change *rawChangeLimiter `json:"change_limiter"`
}

// GetLimiters returns the pool's limiter configuration keyed by denom.
// Entries matching neither known variant are dropped. On any fetch or
// parse error the result is an empty map.
func (s *Service) GetLimiters(ctx context.Context, contractAddress string) map[string]domain.Limiter {
	var resp listLimitersResponse
	if err := s.querier.SmartQueryRaw(ctx, contractAddress, listLimitersQuery, &resp); err != nil {
		s.logger.Printf("warn: fetch limiters contract=%s failed: %v", contractAddress, err)
		return map[string]domain.Limiter{}
	}

	limiters := make(map[string]domain.Limiter, len(resp.Data.Limiters))
	for _, entry := range resp.Data.Limiters {
		var key []string
		if err := json.Unmarshal(entry[0], &key); err != nil || len(key) == 0 {
			s.logger.Printf("warn: malformed limiter key contract=%s: %s", contractAddress, entry[0])
			continue
		}
		denom := key[0]

		var variant rawLimiterVariant
		if err := json.Unmarshal(entry[1], &variant); err != nil {
			s.logger.Printf("warn: malformed limiter variant contract=%s denom=%s: %v", contractAddress, denom, err)
			continue
		}

		switch {
		case variant.Static != nil:
			limiters[denom] = domain.Limiter{
				Type:       domain.LimiterTypeStatic,
				UpperLimit: variant.Static.UpperLimit,
			}
		case variant.Change != nil:
			cfg := variant.Change.WindowConfig
			limiters[denom] = domain.Limiter{
				Type:           domain.LimiterTypeChange,
				LatestValue:    variant.Change.LatestValue,
				BoundaryOffset: variant.Change.BoundaryOffset,
				Divisions:      variant.Change.Divisions,
				WindowConfig:   &cfg,
			}
		default:
			// Unknown variant, dropped.
		}
	}
	return limiters
}
