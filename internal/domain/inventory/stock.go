package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLevel is the read model for one product's stock position.
// stock:updated events carry only {entityId, quantity}; the rest of the
// fields are filled in when a snapshot arrives.
type StockLevel struct {
	ProductID   string          `json:"entityId"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	MinStock    decimal.Decimal `json:"min_stock"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EntityID returns the cache key for this stock level
func (s StockLevel) EntityID() string {
	return s.ProductID
}

// LowStock reports whether the quantity is at or below the minimum level.
// A zero minimum means no threshold is configured.
func (s StockLevel) LowStock() bool {
	return s.MinStock.IsPositive() && s.Quantity.LessThanOrEqual(s.MinStock)
}

// MergeDelta applies a pushed quantity delta onto the last-known level,
// keeping fields the delta does not carry.
func (s StockLevel) MergeDelta(incoming StockLevel) StockLevel {
	merged := s
	merged.Quantity = incoming.Quantity
	if !incoming.UpdatedAt.IsZero() {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	if incoming.ProductName != "" {
		merged.ProductName = incoming.ProductName
	}
	if incoming.MinStock.IsPositive() {
		merged.MinStock = incoming.MinStock
	}
	return merged
}
