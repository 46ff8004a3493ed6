package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// Product is the read model for a product/SKU pushed by the backend.
// It mirrors the catalog aggregate's public shape; the sync layer never
// mutates it beyond whole-value replacement in the domain cache.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	CategoryID    *uuid.UUID      `json:"category_id,omitempty"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	MinStock      decimal.Decimal `json:"min_stock"`
	Status        ProductStatus   `json:"status"`
	SortOrder     int             `json:"sort_order"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EntityID returns the cache key for this product
func (p Product) EntityID() string {
	return p.ID.String()
}
