package optimistic

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/erp/syncd/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome reports how a pushed entity related to a pending write
type Outcome int

const (
	// OutcomeNone means no pending write existed for the entity
	OutcomeNone Outcome = iota
	// OutcomeConfirmed means the push matched the expected shape and the
	// pending write was resolved
	OutcomeConfirmed
	// OutcomeConflict means another actor changed the entity; the server
	// version won and the pending write was discarded
	OutcomeConflict
)

// PendingWrite represents one in-flight local mutation not yet confirmed
// by the push channel
type PendingWrite struct {
	ID        uuid.UUID      `json:"id"`
	Domain    shared.Domain  `json:"domain"`
	EntityID  string         `json:"entity_id"`
	Expected  map[string]any `json:"expected"`
	IssuedAt  time.Time      `json:"issued_at"`
	TimeoutAt time.Time      `json:"timeout_at"`
}

type writeKey struct {
	domain   shared.Domain
	entityID string
}

// Tracker records pending optimistic writes, matches them against pushed
// confirmations, and expires them on timeout. Client optimism is a latency
// hint, never an authority: the tracker annotates cache reads but never
// writes a cache, and expiry never rolls one back.
type Tracker struct {
	timeout       time.Duration
	sweepInterval time.Duration
	onTimeout     func(PendingWrite)
	logger        *zap.Logger

	mu          sync.RWMutex
	writes      map[writeKey]*PendingWrite
	byID        map[uuid.UUID]writeKey
	unconfirmed map[writeKey]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// TrackerOption is a functional option for configuring the tracker
type TrackerOption func(*Tracker)

// WithTimeout sets how long a write may stay unconfirmed before expiring
func WithTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.timeout = d }
}

// WithSweepInterval sets how often expired writes are collected
func WithSweepInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.sweepInterval = d }
}

// WithTimeoutHandler registers a callback fired for every expired write
func WithTimeoutHandler(fn func(PendingWrite)) TrackerOption {
	return func(t *Tracker) { t.onTimeout = fn }
}

// WithTrackerLogger sets the logger for the tracker
func WithTrackerLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates a tracker and starts its expiry sweep
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		timeout:       8 * time.Second,
		sweepInterval: time.Second,
		logger:        zap.NewNop(),
		writes:        make(map[writeKey]*PendingWrite),
		byID:          make(map[uuid.UUID]writeKey),
		unconfirmed:   make(map[writeKey]time.Time),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.sweepExpired()
	return t
}

// Close stops the expiry sweep
func (t *Tracker) Close() error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	return nil
}

// BeginWrite records one in-flight mutation the UI just issued over REST.
// At most one pending write is retained per (domain, entity); a newer
// write supersedes an older unresolved one.
func (t *Tracker) BeginWrite(domain shared.Domain, entityID string, expected map[string]any) uuid.UUID {
	now := time.Now()
	w := &PendingWrite{
		ID:        uuid.New(),
		Domain:    domain,
		EntityID:  entityID,
		Expected:  normalizeShape(expected),
		IssuedAt:  now,
		TimeoutAt: now.Add(t.timeout),
	}
	key := writeKey{domain: domain, entityID: entityID}

	t.mu.Lock()
	if old, ok := t.writes[key]; ok {
		delete(t.byID, old.ID)
		t.logger.Debug("pending write superseded",
			zap.String("domain", string(domain)),
			zap.String("entity_id", entityID))
	}
	t.writes[key] = w
	t.byID[w.ID] = key
	delete(t.unconfirmed, key)
	t.mu.Unlock()

	return w.ID
}

// Cancel removes a pending write, typically because the REST call itself
// failed before any push could confirm it
func (t *Tracker) Cancel(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	delete(t.writes, key)
	return true
}

// IsPending reports whether a write for the entity is still awaiting
// confirmation
func (t *Tracker) IsPending(domain shared.Domain, entityID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.writes[writeKey{domain: domain, entityID: entityID}]
	return ok
}

// Unconfirmed reports whether a write for the entity timed out without a
// confirming push. This is a UI visibility hint only.
func (t *Tracker) Unconfirmed(domain shared.Domain, entityID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.unconfirmed[writeKey{domain: domain, entityID: entityID}]
	return ok
}

// PendingCount returns the number of in-flight writes
func (t *Tracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.writes)
}

// Resolve matches a pushed entity against the pending write for the same
// (domain, entity), if any. A matching push confirms and removes the
// write; a mismatch means another actor changed the entity concurrently,
// so the server wins and the write is discarded as conflicted. Any push also
// clears a stale unconfirmed mark, since server truth has now been seen.
func (t *Tracker) Resolve(domain shared.Domain, entityID string, pushed []byte) Outcome {
	key := writeKey{domain: domain, entityID: entityID}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.unconfirmed, key)

	w, ok := t.writes[key]
	if !ok {
		return OutcomeNone
	}
	delete(t.writes, key)
	delete(t.byID, w.ID)

	var pushedShape map[string]any
	if err := json.Unmarshal(pushed, &pushedShape); err != nil {
		t.logger.Warn("cannot compare pushed entity to pending write",
			zap.String("entity_id", entityID), zap.Error(err))
		return OutcomeConflict
	}

	for field, want := range w.Expected {
		if !reflect.DeepEqual(pushedShape[field], want) {
			t.logger.Info("optimistic write overridden by server",
				zap.String("domain", string(domain)),
				zap.String("entity_id", entityID),
				zap.String("field", field))
			return OutcomeConflict
		}
	}
	return OutcomeConfirmed
}

// Discard drops any pending write for a deleted entity
func (t *Tracker) Discard(domain shared.Domain, entityID string) {
	key := writeKey{domain: domain, entityID: entityID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.writes[key]; ok {
		delete(t.writes, key)
		delete(t.byID, w.ID)
	}
	delete(t.unconfirmed, key)
}

// sweepExpired periodically expires writes whose confirmation window has
// passed. The domain cache keeps its last-known value; expiry only marks
// the entity unconfirmed for the UI.
func (t *Tracker) sweepExpired() {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case now := <-ticker.C:
			t.expireBefore(now)
		}
	}
}

func (t *Tracker) expireBefore(now time.Time) {
	var expired []PendingWrite

	t.mu.Lock()
	for key, w := range t.writes {
		if now.Before(w.TimeoutAt) {
			continue
		}
		delete(t.writes, key)
		delete(t.byID, w.ID)
		t.unconfirmed[key] = now
		expired = append(expired, *w)
	}
	t.mu.Unlock()

	for _, w := range expired {
		t.logger.Warn("optimistic write timed out",
			zap.String("domain", string(w.Domain)),
			zap.String("entity_id", w.EntityID))
		if t.onTimeout != nil {
			t.onTimeout(w)
		}
	}
}

// normalizeShape round-trips the expected fields through JSON so numeric
// types compare equal to the unmarshalled push payload
func normalizeShape(expected map[string]any) map[string]any {
	if expected == nil {
		return map[string]any{}
	}
	buf, err := json.Marshal(expected)
	if err != nil {
		return expected
	}
	var normalized map[string]any
	if err := json.Unmarshal(buf, &normalized); err != nil {
		return expected
	}
	return normalized
}
