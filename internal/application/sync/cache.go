package sync

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/erp/syncd/internal/application/optimistic"
	"github.com/erp/syncd/internal/domain/shared"
	"go.uber.org/zap"
)

// WriteResolver is the slice of the optimistic write tracker the caches
// consult while merging pushed entities
type WriteResolver interface {
	Resolve(domain shared.Domain, entityID string, pushed []byte) optimistic.Outcome
	Discard(domain shared.Domain, entityID string)
	IsPending(domain shared.Domain, entityID string) bool
	Unconfirmed(domain shared.Domain, entityID string) bool
}

// Listener receives a change descriptor after every successful apply
type Listener func(shared.ChangeDescriptor)

// EntryView is one cache entry annotated for the UI layer
type EntryView struct {
	Entity      any  `json:"entity"`
	Pending     bool `json:"pending"`
	Unconfirmed bool `json:"unconfirmed"`
}

// View is the read-only, type-erased face of a domain cache exposed to the
// HTTP layer. External code never mutates a cache directly.
type View interface {
	Domain() shared.Domain
	LastAppliedSequence() uint64
	Len() int
	Entries() []EntryView
}

// Cache is the domain sync adapter: it owns the local cache for one domain,
// applies inbound deltas and snapshots, and exposes a read model to the UI.
// All mutation happens through Apply on the transport read-loop goroutine;
// the mutex only lets UI snapshot reads run concurrently with applies.
type Cache[T shared.Entity] struct {
	domain     shared.Domain
	decodeOne  func(json.RawMessage) (T, error)
	decodeList func(json.RawMessage) ([]T, error)
	merge      func(existing T, incoming T) T
	less       func(a, b T) bool
	tracker    WriteResolver
	onConflict func(shared.ChangeDescriptor)
	logger     *zap.Logger

	mu          sync.RWMutex
	entities    map[string]T
	lastApplied uint64

	listenerMu   sync.Mutex
	listeners    map[uint64]Listener
	nextListener uint64
}

// CacheOption is a functional option for configuring a cache
type CacheOption[T shared.Entity] func(*Cache[T])

// WithCacheLogger sets the logger for the cache
func WithCacheLogger[T shared.Entity](logger *zap.Logger) CacheOption[T] {
	return func(c *Cache[T]) { c.logger = logger }
}

// WithTracker wires the optimistic write tracker into merge decisions
func WithTracker[T shared.Entity](tracker WriteResolver) CacheOption[T] {
	return func(c *Cache[T]) { c.tracker = tracker }
}

// WithMerge sets a merge function for domains whose update events carry
// deltas rather than full entities (stock quantities)
func WithMerge[T shared.Entity](merge func(existing, incoming T) T) CacheOption[T] {
	return func(c *Cache[T]) { c.merge = merge }
}

// WithOrder sets the snapshot ordering
func WithOrder[T shared.Entity](less func(a, b T) bool) CacheOption[T] {
	return func(c *Cache[T]) { c.less = less }
}

// WithConflictHandler registers a callback fired when a pushed entity
// overrides a pending optimistic write
func WithConflictHandler[T shared.Entity](fn func(shared.ChangeDescriptor)) CacheOption[T] {
	return func(c *Cache[T]) { c.onConflict = fn }
}

// NewCache creates the sync adapter for one domain
func NewCache[T shared.Entity](
	domain shared.Domain,
	decodeOne func(json.RawMessage) (T, error),
	decodeList func(json.RawMessage) ([]T, error),
	opts ...CacheOption[T],
) *Cache[T] {
	c := &Cache[T]{
		domain:     domain,
		decodeOne:  decodeOne,
		decodeList: decodeList,
		less:       func(a, b T) bool { return a.EntityID() < b.EntityID() },
		logger:     zap.NewNop(),
		entities:   make(map[string]T),
		listeners:  make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Domain returns the domain this cache synchronizes
func (c *Cache[T]) Domain() shared.Domain {
	return c.domain
}

// LastAppliedSequence returns the highest sequence merged into the cache.
// It never decreases except through a snapshot replacement.
func (c *Cache[T]) LastAppliedSequence() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastApplied
}

// Len returns the number of cached entities
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// Apply merges one envelope into the cache and returns its change
// descriptor. Decoding happens before any mutation, so a malformed payload
// can never leave the cache partially updated.
func (c *Cache[T]) Apply(env Envelope) (shared.ChangeDescriptor, error) {
	desc := shared.ChangeDescriptor{
		Domain: c.domain,
		Action: env.Action,
		Event:  env.Event,
		At:     env.ReceivedAt,
	}

	var conflicted bool
	switch env.Action {
	case shared.ActionSnapshot:
		list, err := c.decodeList(env.Payload)
		if err != nil {
			return desc, shared.NewDecodeError(env.Event, "bad snapshot payload", err)
		}
		c.mu.Lock()
		c.entities = make(map[string]T, len(list))
		for _, ent := range list {
			c.entities[ent.EntityID()] = ent
		}
		c.lastApplied = env.Sequence
		c.mu.Unlock()
		c.logger.Debug("snapshot applied",
			zap.String("domain", string(c.domain)),
			zap.Int("entities", len(list)),
			zap.Uint64("sequence", env.Sequence))

	case shared.ActionCreated, shared.ActionUpdated:
		ent, err := c.decodeOne(env.Payload)
		if err != nil {
			return desc, shared.NewDecodeError(env.Event, "bad entity payload", err)
		}
		id := ent.EntityID()
		desc.EntityID = id

		c.mu.Lock()
		if existing, ok := c.entities[id]; ok && c.merge != nil {
			ent = c.merge(existing, ent)
		}
		c.entities[id] = ent
		c.lastApplied = env.Sequence
		c.mu.Unlock()

		if c.tracker != nil {
			if c.tracker.Resolve(c.domain, id, env.Payload) == optimistic.OutcomeConflict {
				conflicted = true
			}
		}

	case shared.ActionDeleted:
		var probe idProbe
		if err := json.Unmarshal(env.Payload, &probe); err != nil {
			return desc, shared.NewDecodeError(env.Event, "bad delete payload", err)
		}
		id := probe.Key()
		desc.EntityID = id

		c.mu.Lock()
		delete(c.entities, id)
		c.lastApplied = env.Sequence
		c.mu.Unlock()

		if c.tracker != nil {
			c.tracker.Discard(c.domain, id)
		}

	default:
		return desc, shared.ErrUnknownAction
	}

	c.notify(desc)
	if conflicted && c.onConflict != nil {
		c.onConflict(desc)
	}
	return desc, nil
}

// Snapshot returns the current entities in the cache's configured order
func (c *Cache[T]) Snapshot() []T {
	c.mu.RLock()
	out := make([]T, 0, len(c.entities))
	for _, ent := range c.entities {
		out = append(out, ent)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return c.less(out[i], out[j]) })
	return out
}

// Entries returns the ordered entity list annotated with pending and
// unconfirmed write status for the UI
func (c *Cache[T]) Entries() []EntryView {
	snapshot := c.Snapshot()
	out := make([]EntryView, 0, len(snapshot))
	for _, ent := range snapshot {
		view := EntryView{Entity: ent}
		if c.tracker != nil {
			view.Pending = c.tracker.IsPending(c.domain, ent.EntityID())
			view.Unconfirmed = c.tracker.Unconfirmed(c.domain, ent.EntityID())
		}
		out = append(out, view)
	}
	return out
}

// Subscribe registers a change listener and returns its removal function
func (c *Cache[T]) Subscribe(fn Listener) func() {
	c.listenerMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

func (c *Cache[T]) notify(desc shared.ChangeDescriptor) {
	c.listenerMu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(desc)
	}
}
