package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metric is one dashboard analytics figure, keyed by name.
// The analytics domain is snapshot-only: the backend recomputes the whole
// dashboard server-side and pushes it as a full replacement.
type Metric struct {
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Unit       string          `json:"unit,omitempty"`
	Period     string          `json:"period,omitempty"`
	ComputedAt time.Time       `json:"computed_at"`
}

// EntityID returns the cache key for this metric
func (m Metric) EntityID() string {
	return m.Name
}
