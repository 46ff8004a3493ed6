package sync

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/erp/syncd/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// wireEvent is the raw shape of every inbound domain event's data field
type wireEvent struct {
	Sequence  *uint64         `json:"sequence"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp *time.Time      `json:"timestamp"`
}

// idProbe checks that an incremental payload carries an identifier.
// The backend keys most payloads by "id"; stock events use "entityId".
type idProbe struct {
	ID       string `json:"id" validate:"required_without=EntityID"`
	EntityID string `json:"entityId" validate:"required_without=ID"`
}

// Key returns whichever identifier the payload carried
func (p idProbe) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.EntityID
}

// Decoder validates and normalizes raw push messages into envelopes.
// Malformed messages yield a *shared.DecodeError; they are logged and
// dropped by the caller and never reach a domain cache.
type Decoder struct {
	validate *validator.Validate
	logger   *zap.Logger

	// Arrival-order sequence fallback for servers that omit explicit
	// sequence numbers. Ordering degrades to arrival order for such
	// domains; the first occurrence is logged per domain.
	mu       sync.Mutex
	fallback map[shared.Domain]uint64
	warned   map[shared.Domain]bool
}

// NewDecoder creates a decoder
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		validate: validator.New(),
		logger:   logger,
		fallback: make(map[shared.Domain]uint64),
		warned:   make(map[shared.Domain]bool),
	}
}

// Decode turns one (event name, data) pair into a validated envelope
func (d *Decoder) Decode(event string, data []byte) (Envelope, error) {
	domain, action, err := parseEventName(event)
	if err != nil {
		return Envelope{}, shared.NewDecodeError(event, "bad event name", err)
	}

	if domain == shared.DomainAnalytics && action != shared.ActionSnapshot {
		return Envelope{}, shared.NewDecodeError(event, "analytics is a snapshot-only domain", nil)
	}

	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, shared.NewDecodeError(event, "malformed message body", err)
	}
	if len(wire.Payload) == 0 || string(wire.Payload) == "null" {
		return Envelope{}, shared.NewDecodeError(event, "missing payload", nil)
	}

	if err := d.checkPayloadShape(event, action, wire.Payload); err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		Domain:     domain,
		Action:     action,
		Payload:    wire.Payload,
		Event:      event,
		ReceivedAt: time.Now(),
	}
	if wire.Timestamp != nil {
		env.ReceivedAt = *wire.Timestamp
	}

	if wire.Sequence != nil {
		env.Sequence = *wire.Sequence
	} else {
		env.Sequence = d.nextFallbackSequence(domain)
	}
	return env, nil
}

// checkPayloadShape rejects payloads structurally inconsistent with the
// action before anything touches a cache
func (d *Decoder) checkPayloadShape(event string, action shared.Action, payload json.RawMessage) error {
	switch action {
	case shared.ActionSnapshot:
		var list []json.RawMessage
		if err := json.Unmarshal(payload, &list); err != nil {
			return shared.NewDecodeError(event, "snapshot payload must be an entity list", err)
		}
	case shared.ActionCreated, shared.ActionUpdated, shared.ActionDeleted:
		var probe idProbe
		if err := json.Unmarshal(payload, &probe); err != nil {
			return shared.NewDecodeError(event, "payload must be an object", err)
		}
		if err := d.validate.Struct(probe); err != nil {
			return shared.NewDecodeError(event, "payload is missing an identifier", err)
		}
	}
	return nil
}

// nextFallbackSequence synthesizes a per-domain monotonic sequence from
// arrival order
func (d *Decoder) nextFallbackSequence(domain shared.Domain) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback[domain]++
	if !d.warned[domain] {
		d.warned[domain] = true
		d.logger.Warn("wire events carry no sequence numbers, falling back to arrival order",
			zap.String("domain", string(domain)))
	}
	return d.fallback[domain]
}

// parseEventName splits "<domain>:<action>" wire names into their enums
func parseEventName(event string) (shared.Domain, shared.Action, error) {
	name, actionName, found := strings.Cut(event, ":")
	if !found {
		return "", "", fmt.Errorf("event name %q is not <domain>:<action>", event)
	}
	domain, err := shared.ParseDomain(name)
	if err != nil {
		return "", "", err
	}
	action, err := shared.ParseAction(actionName)
	if err != nil {
		return "", "", err
	}
	return domain, action, nil
}
