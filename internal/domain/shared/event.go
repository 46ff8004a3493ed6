package shared

import (
	"fmt"
	"strings"
	"time"
)

// Domain identifies one independently-synchronized category of business entity
type Domain string

const (
	DomainCategory     Domain = "category"
	DomainProduct      Domain = "product"
	DomainOrder        Domain = "order"
	DomainAnalytics    Domain = "analytics"
	DomainReview       Domain = "review"
	DomainStock        Domain = "stock"
	DomainNotification Domain = "notification"
)

// Domains returns all cache-backed domains, in routing order.
// DomainNotification is excluded: it carries free-text operator alerts
// and never touches a cache.
func Domains() []Domain {
	return []Domain{
		DomainCategory,
		DomainProduct,
		DomainOrder,
		DomainAnalytics,
		DomainReview,
		DomainStock,
	}
}

// domainAliases maps plural wire spellings to their canonical domain.
// The backend emits "categories:snapshot" but "category:created".
var domainAliases = map[string]Domain{
	"categories": DomainCategory,
	"products":   DomainProduct,
	"orders":     DomainOrder,
	"reviews":    DomainReview,
}

// ParseDomain normalizes a wire domain name into a Domain
func ParseDomain(s string) (Domain, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if d, ok := domainAliases[name]; ok {
		return d, nil
	}
	switch d := Domain(name); d {
	case DomainCategory, DomainProduct, DomainOrder, DomainAnalytics, DomainReview, DomainStock, DomainNotification:
		return d, nil
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// Action identifies what an envelope does to its domain cache
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionSnapshot Action = "snapshot"
)

// ParseAction normalizes a wire action name into an Action.
// "status-changed" is an update in cache terms; the original event name is
// preserved on the envelope for notification wording.
func ParseAction(s string) (Action, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "status-changed" {
		return ActionUpdated, nil
	}
	switch a := Action(name); a {
	case ActionCreated, ActionUpdated, ActionDeleted, ActionSnapshot:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// ChangeDescriptor describes one successfully applied cache change.
// It flows to the notification dispatcher and to UI subscribers.
type ChangeDescriptor struct {
	Domain   Domain    `json:"domain"`
	Action   Action    `json:"action"`
	EntityID string    `json:"entity_id,omitempty"`
	Event    string    `json:"event"`
	At       time.Time `json:"at"`
}
