package review

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus represents the moderation status of a review
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Review is the read model for a product review pushed by the backend.
// The push channel delivers created/status-changed/deleted events for it.
type Review struct {
	ID        uuid.UUID    `json:"id"`
	ProductID uuid.UUID    `json:"product_id"`
	Author    string       `json:"author"`
	Rating    int          `json:"rating"`
	Content   string       `json:"content,omitempty"`
	Status    ReviewStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// EntityID returns the cache key for this review
func (r Review) EntityID() string {
	return r.ID.String()
}
