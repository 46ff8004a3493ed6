package trade

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle status of a sales order
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the read model for a sales order pushed by the backend.
// The push channel delivers created/updated/status-changed events for it.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	OrderNo      string          `json:"order_no"`
	CustomerName string          `json:"customer_name"`
	Status       OrderStatus     `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ItemCount    int             `json:"item_count"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EntityID returns the cache key for this order
func (o Order) EntityID() string {
	return o.ID.String()
}
