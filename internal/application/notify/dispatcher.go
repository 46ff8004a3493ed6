package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/erp/syncd/internal/domain/shared"
	"go.uber.org/zap"
)

// Level classifies a notification for the UI
type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
)

// Notification is one operator-facing toast
type Notification struct {
	Level   Level         `json:"level"`
	Domain  shared.Domain `json:"domain,omitempty"`
	Action  shared.Action `json:"action,omitempty"`
	Message string        `json:"message"`
	Count   int           `json:"count"`
	At      time.Time     `json:"at"`
}

// Sink receives dispatched notifications
type Sink interface {
	Publish(n Notification)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(n Notification)

// Publish implements Sink
func (f SinkFunc) Publish(n Notification) { f(n) }

// Fanout returns a sink that publishes to every given sink in order
func Fanout(sinks ...Sink) Sink {
	return SinkFunc(func(n Notification) {
		for _, s := range sinks {
			s.Publish(n)
		}
	})
}

// LogSink logs every notification; it backs the persistent operator log
// behind the toast stream
func LogSink(logger *zap.Logger) Sink {
	return SinkFunc(func(n Notification) {
		fields := []zap.Field{
			zap.String("level", string(n.Level)),
			zap.Int("count", n.Count),
		}
		if n.Domain != "" {
			fields = append(fields, zap.String("domain", string(n.Domain)))
		}
		logger.Info(n.Message, fields...)
	})
}

type bucketKey struct {
	domain shared.Domain
	action shared.Action
}

type bucket struct {
	count int
	timer *time.Timer
}

// Dispatcher maps domain changes to operator-facing toasts. Bursts of the
// same (domain, action) pair inside the window collapse into a single
// aggregate notification, so a snapshot replay cannot flood the operator.
type Dispatcher struct {
	sink   Sink
	window time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// DispatcherOption is a functional option for configuring the dispatcher
type DispatcherOption func(*Dispatcher)

// WithWindow sets the burst-collapse window
func WithWindow(d time.Duration) DispatcherOption {
	return func(n *Dispatcher) { n.window = d }
}

// WithDispatcherLogger sets the logger for the dispatcher
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(n *Dispatcher) { n.logger = logger }
}

// NewDispatcher creates a dispatcher publishing to the given sink
func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	n := &Dispatcher{
		sink:    sink,
		window:  2 * time.Second,
		logger:  zap.NewNop(),
		buckets: make(map[bucketKey]*bucket),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify surfaces one applied change. The first change of a (domain,
// action) pair is published immediately and opens a window; further
// changes inside the window are counted and flushed as one aggregate.
// Leading-edge publishing is deliberate: a lone change (the common case)
// surfaces without a window of delay, and a burst of N costs two toasts
// ("1 stock update" now, "N-1 stock updates" at window close) instead of
// N. A pure trailing-edge collapse would merge those into one toast at
// the price of delaying every single-change notification by the window.
func (n *Dispatcher) Notify(desc shared.ChangeDescriptor) {
	key := bucketKey{domain: desc.Domain, action: desc.Action}

	n.mu.Lock()
	if b, ok := n.buckets[key]; ok {
		b.count++
		n.mu.Unlock()
		return
	}
	b := &bucket{}
	b.timer = time.AfterFunc(n.window, func() { n.flush(key) })
	n.buckets[key] = b
	n.mu.Unlock()

	n.sink.Publish(Notification{
		Level:   LevelInfo,
		Domain:  desc.Domain,
		Action:  desc.Action,
		Message: changeMessage(desc.Domain, desc.Action, 1),
		Count:   1,
		At:      time.Now(),
	})
}

// Message surfaces a free-text server alert (notification:new) directly,
// bypassing burst collapsing
func (n *Dispatcher) Message(text string) {
	n.sink.Publish(Notification{
		Level:   LevelInfo,
		Domain:  shared.DomainNotification,
		Message: text,
		Count:   1,
		At:      time.Now(),
	})
}

// Conflict surfaces a soft warning that a local edit lost to server truth
func (n *Dispatcher) Conflict(desc shared.ChangeDescriptor) {
	n.sink.Publish(Notification{
		Level:   LevelWarn,
		Domain:  desc.Domain,
		Action:  desc.Action,
		Message: fmt.Sprintf("your %s edit was overridden by a newer change from the server", desc.Domain),
		Count:   1,
		At:      time.Now(),
	})
}

// WriteTimedOut surfaces an unconfirmed-write hint for the UI
func (n *Dispatcher) WriteTimedOut(domain shared.Domain, entityID string) {
	n.sink.Publish(Notification{
		Level:   LevelWarn,
		Domain:  domain,
		Message: fmt.Sprintf("a %s change was not confirmed by the server yet", domain),
		Count:   1,
		At:      time.Now(),
	})
}

// ConnectionDown surfaces transport trouble without blocking anything
func (n *Dispatcher) ConnectionDown(message string) {
	n.sink.Publish(Notification{
		Level:   LevelWarn,
		Message: message,
		Count:   1,
		At:      time.Now(),
	})
}

// Flush publishes every open aggregate immediately. Used on shutdown.
func (n *Dispatcher) Flush() {
	n.mu.Lock()
	keys := make([]bucketKey, 0, len(n.buckets))
	for key, b := range n.buckets {
		b.timer.Stop()
		keys = append(keys, key)
	}
	n.mu.Unlock()

	for _, key := range keys {
		n.flush(key)
	}
}

func (n *Dispatcher) flush(key bucketKey) {
	n.mu.Lock()
	b, ok := n.buckets[key]
	if !ok {
		n.mu.Unlock()
		return
	}
	delete(n.buckets, key)
	count := b.count
	n.mu.Unlock()

	if count == 0 {
		return
	}
	n.sink.Publish(Notification{
		Level:   LevelInfo,
		Domain:  key.domain,
		Action:  key.action,
		Message: changeMessage(key.domain, key.action, count),
		Count:   count,
		At:      time.Now(),
	})
}

func changeMessage(domain shared.Domain, action shared.Action, count int) string {
	noun := string(domain)
	var what string
	switch action {
	case shared.ActionSnapshot:
		return fmt.Sprintf("%s data refreshed", noun)
	case shared.ActionCreated:
		what = "creation"
	case shared.ActionDeleted:
		what = "deletion"
	default:
		what = "update"
	}
	if count == 1 {
		return fmt.Sprintf("1 %s %s", noun, what)
	}
	return fmt.Sprintf("%d %s %ss", count, noun, what)
}
