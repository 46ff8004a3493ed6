package sync

import (
	"encoding/json"

	"github.com/erp/syncd/internal/domain/catalog"
	"github.com/erp/syncd/internal/domain/inventory"
	"github.com/erp/syncd/internal/domain/report"
	"github.com/erp/syncd/internal/domain/review"
	"github.com/erp/syncd/internal/domain/shared"
	"github.com/erp/syncd/internal/domain/trade"
)

func decodeOne[T shared.Entity](payload json.RawMessage) (T, error) {
	var ent T
	err := json.Unmarshal(payload, &ent)
	return ent, err
}

func decodeList[T shared.Entity](payload json.RawMessage) ([]T, error) {
	var list []T
	err := json.Unmarshal(payload, &list)
	return list, err
}

// NewCategoryCache creates the category sync adapter, ordered the way the
// category tree renders
func NewCategoryCache(opts ...CacheOption[catalog.Category]) *Cache[catalog.Category] {
	opts = append([]CacheOption[catalog.Category]{
		WithOrder(func(a, b catalog.Category) bool {
			if a.SortOrder != b.SortOrder {
				return a.SortOrder < b.SortOrder
			}
			return a.Name < b.Name
		}),
	}, opts...)
	return NewCache(shared.DomainCategory,
		decodeOne[catalog.Category], decodeList[catalog.Category], opts...)
}

// NewProductCache creates the product sync adapter
func NewProductCache(opts ...CacheOption[catalog.Product]) *Cache[catalog.Product] {
	opts = append([]CacheOption[catalog.Product]{
		WithOrder(func(a, b catalog.Product) bool {
			if a.SortOrder != b.SortOrder {
				return a.SortOrder < b.SortOrder
			}
			return a.Code < b.Code
		}),
	}, opts...)
	return NewCache(shared.DomainProduct,
		decodeOne[catalog.Product], decodeList[catalog.Product], opts...)
}

// NewOrderCache creates the order sync adapter, newest first
func NewOrderCache(opts ...CacheOption[trade.Order]) *Cache[trade.Order] {
	opts = append([]CacheOption[trade.Order]{
		WithOrder(func(a, b trade.Order) bool {
			return a.UpdatedAt.After(b.UpdatedAt)
		}),
	}, opts...)
	return NewCache(shared.DomainOrder,
		decodeOne[trade.Order], decodeList[trade.Order], opts...)
}

// NewAnalyticsCache creates the analytics sync adapter. The decoder only
// admits snapshots for this domain, so the single-entity decoder is never
// reached in practice.
func NewAnalyticsCache(opts ...CacheOption[report.Metric]) *Cache[report.Metric] {
	return NewCache(shared.DomainAnalytics,
		decodeOne[report.Metric], decodeList[report.Metric], opts...)
}

// NewReviewCache creates the review sync adapter, newest first
func NewReviewCache(opts ...CacheOption[review.Review]) *Cache[review.Review] {
	opts = append([]CacheOption[review.Review]{
		WithOrder(func(a, b review.Review) bool {
			return a.UpdatedAt.After(b.UpdatedAt)
		}),
	}, opts...)
	return NewCache(shared.DomainReview,
		decodeOne[review.Review], decodeList[review.Review], opts...)
}

// NewStockCache creates the stock sync adapter. Stock updates carry deltas,
// so incoming levels merge onto the last-known level instead of replacing it.
func NewStockCache(opts ...CacheOption[inventory.StockLevel]) *Cache[inventory.StockLevel] {
	opts = append([]CacheOption[inventory.StockLevel]{
		WithMerge(inventory.StockLevel.MergeDelta),
	}, opts...)
	return NewCache(shared.DomainStock,
		decodeOne[inventory.StockLevel], decodeList[inventory.StockLevel], opts...)
}
