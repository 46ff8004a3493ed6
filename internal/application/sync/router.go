package sync

import (
	"sync"

	"github.com/erp/syncd/internal/domain/shared"
	"go.uber.org/zap"
)

// Adapter is the per-domain cache contract the router dispatches to
type Adapter interface {
	Domain() shared.Domain
	LastAppliedSequence() uint64
	Apply(env Envelope) (shared.ChangeDescriptor, error)
}

// Router dispatches decoded envelopes to the adapter registered for their
// domain. Per-domain ordering is enforced by sequence comparison rather
// than arrival order, since the channel may reorder across reconnects.
// Cross-domain ordering is not guaranteed and not required.
type Router struct {
	mu       sync.RWMutex
	adapters map[shared.Domain]Adapter
	logger   *zap.Logger
}

// NewRouter creates a router
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		adapters: make(map[shared.Domain]Adapter),
		logger:   logger,
	}
}

// Register binds an adapter to its domain. A later registration for the
// same domain replaces the earlier one.
func (r *Router) Register(adapter Adapter) {
	r.mu.Lock()
	r.adapters[adapter.Domain()] = adapter
	r.mu.Unlock()
	r.logger.Debug("adapter registered", zap.String("domain", string(adapter.Domain())))
}

// Dispatch routes one envelope. The boolean reports whether the envelope
// was applied; stale or duplicate envelopes are discarded silently with
// applied=false and a nil error.
func (r *Router) Dispatch(env Envelope) (shared.ChangeDescriptor, bool, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[env.Domain]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("no adapter for domain",
			zap.String("domain", string(env.Domain)),
			zap.String("event", env.Event))
		return shared.ChangeDescriptor{}, false, shared.ErrUnknownDomain
	}

	// Incremental sequences are 1-based, so a fresh adapter at 0 accepts
	// the first event. Snapshots are exempt from the stale check: a full
	// snapshot is authoritative regardless of its sequence, which lets the
	// domain recover after a server-side sequence reset.
	if env.Action != shared.ActionSnapshot && env.Sequence <= adapter.LastAppliedSequence() {
		r.logger.Debug("discarding stale envelope",
			zap.String("domain", string(env.Domain)),
			zap.Uint64("sequence", env.Sequence),
			zap.Uint64("last_applied", adapter.LastAppliedSequence()))
		return shared.ChangeDescriptor{}, false, nil
	}

	desc, err := adapter.Apply(env)
	if err != nil {
		return shared.ChangeDescriptor{}, false, err
	}
	return desc, true, nil
}
