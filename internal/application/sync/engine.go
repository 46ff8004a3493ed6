package sync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erp/syncd/internal/application/notify"
	"github.com/erp/syncd/internal/domain/shared"
	"github.com/erp/syncd/internal/infrastructure/telemetry"
	"github.com/erp/syncd/internal/infrastructure/transport"
	"go.uber.org/zap"
)

// wireEvents is every domain event name the backend pushes. Snapshot events
// use the plural spelling where the backend does.
var wireEvents = []string{
	"category:created", "category:updated", "category:deleted", "categories:snapshot",
	"product:created", "product:updated", "product:deleted", "products:snapshot",
	"order:created", "order:updated", "order:status-changed", "orders:snapshot",
	"analytics:snapshot",
	"review:created", "review:status-changed", "review:deleted", "reviews:snapshot",
	"stock:updated", "stock:snapshot",
}

// eventNotification is the free-text operator alert channel; it bypasses
// the domain caches entirely
const eventNotification = "notification:new"

type notificationMessage struct {
	Message string `json:"message"`
}

type connectionError struct {
	Message string `json:"message"`
}

// Subscriber is the slice of the transport the engine consumes
type Subscriber interface {
	Subscribe(event string, fn transport.Handler) func()
}

// Engine binds the push channel to the domain caches: it decodes inbound
// frames, routes them by sequence order, and forwards applied changes to
// the notification dispatcher. All of this runs on the transport read-loop
// goroutine, so cache applies are serialized by construction.
type Engine struct {
	decoder    *Decoder
	router     *Router
	dispatcher *notify.Dispatcher
	metrics    *telemetry.SyncMetrics
	logger     *zap.Logger

	unsubs []func()
}

// EngineOption is a functional option for configuring the engine
type EngineOption func(*Engine)

// WithEngineLogger sets the logger for the engine
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics wires sync metrics into the event path
func WithMetrics(m *telemetry.SyncMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over the given router and dispatcher
func NewEngine(decoder *Decoder, router *Router, dispatcher *notify.Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		decoder:    decoder,
		router:     router,
		dispatcher: dispatcher,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes the engine to every domain event on the transport
func (e *Engine) Start(conn Subscriber) {
	for _, event := range wireEvents {
		event := event
		e.unsubs = append(e.unsubs, conn.Subscribe(event, func(data []byte) {
			e.handleEvent(event, data)
		}))
	}
	e.unsubs = append(e.unsubs,
		conn.Subscribe(eventNotification, e.handleNotification),
		conn.Subscribe(transport.EventConnectionError, e.handleConnectionError),
	)
	e.logger.Info("sync engine started", zap.Int("events", len(wireEvents)))
}

// Stop removes every transport subscription and flushes pending
// notification aggregates
func (e *Engine) Stop() {
	for _, unsub := range e.unsubs {
		unsub()
	}
	e.unsubs = nil
	e.dispatcher.Flush()
	e.logger.Info("sync engine stopped")
}

func (e *Engine) handleEvent(event string, data []byte) {
	env, err := e.decoder.Decode(event, data)
	if err != nil {
		e.metrics.RecordDecodeError(event)
		e.logger.Warn("dropping malformed event",
			zap.String("event", event), zap.Error(err))
		return
	}
	e.metrics.RecordDecoded(env.Domain)

	desc, applied, err := e.router.Dispatch(env)
	if err != nil {
		var decodeErr *shared.DecodeError
		switch {
		case errors.As(err, &decodeErr):
			e.metrics.RecordDecodeError(event)
			e.logger.Warn("dropping undecodable payload",
				zap.String("event", event), zap.Error(err))
		default:
			e.logger.Error("dispatch failed",
				zap.String("event", event), zap.Error(err))
		}
		return
	}
	if !applied {
		e.metrics.RecordStale(env.Domain)
		return
	}

	e.metrics.RecordApplied(env.Domain, env.Action)
	e.dispatcher.Notify(desc)
}

func (e *Engine) handleNotification(data []byte) {
	var msg notificationMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Message == "" {
		e.logger.Warn("dropping malformed notification", zap.Error(err))
		return
	}
	e.dispatcher.Message(msg.Message)
}

func (e *Engine) handleConnectionError(data []byte) {
	var msg connectionError
	if err := json.Unmarshal(data, &msg); err != nil {
		msg.Message = "connection error"
	}
	e.dispatcher.ConnectionDown(fmt.Sprintf("realtime connection lost: %s", msg.Message))
}
