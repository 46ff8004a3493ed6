package sync

import (
	"encoding/json"
	"time"

	"github.com/erp/syncd/internal/domain/shared"
)

// Envelope is the normalized, decoded representation of one inbound push
// message. It is ephemeral: consumed once by the router, never persisted.
type Envelope struct {
	Domain     shared.Domain
	Action     shared.Action
	Sequence   uint64
	Payload    json.RawMessage
	Event      string
	ReceivedAt time.Time
}
