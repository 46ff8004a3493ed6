package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Category is the read model for a product category pushed by the backend
type Category struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	SortOrder int        `json:"sort_order"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EntityID returns the cache key for this category
func (c Category) EntityID() string {
	return c.ID.String()
}
