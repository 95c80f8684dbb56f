package domain

// Limiter types.
const (
	LimiterTypeStatic = "static"
	LimiterTypeChange = "change"
)

// LimiterDivision is one moving-average division of a change limiter.
type LimiterDivision struct {
	StartedAt   string `json:"started_at"`
	UpdatedAt   string `json:"updated_at"`
	LatestValue string `json:"latest_value"`
	Integral    string `json:"integral"`
}

// LimiterWindowConfig configures the moving-average window of a change limiter.
type LimiterWindowConfig struct {
	WindowSize    string `json:"window_size"`
	DivisionCount string `json:"division_count"`
}

// Limiter caps the allowed proportion of one reserve coin in a pool.
// Type is either "static" (fixed UpperLimit) or "change" (moving-average
// bound described by the remaining fields). Absence of a limiter is valid.
type Limiter struct {
	Type string `json:"type"`

	// static
	UpperLimit string `json:"upper_limit,omitempty"`

	// change
	LatestValue    string               `json:"latest_value,omitempty"`
	BoundaryOffset string               `json:"boundary_offset,omitempty"`
	Divisions      []LimiterDivision    `json:"divisions,omitempty"`
	WindowConfig   *LimiterWindowConfig `json:"window_config,omitempty"`
}
