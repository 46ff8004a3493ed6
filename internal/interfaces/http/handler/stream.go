package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/erp/syncd/internal/application/notify"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SSEClient represents one connected SSE client
type SSEClient struct {
	ID   string
	Chan chan SSEMessage
	Done chan struct{}
}

// SSEMessage represents a message to be sent to SSE clients
type SSEMessage struct {
	Event string
	Data  string
}

// StreamHandler fans operator notifications out to browser tabs over
// Server-Sent Events. It implements notify.Sink, so the dispatcher can
// publish straight into it.
type StreamHandler struct {
	BaseHandler
	logger     *zap.Logger
	clients    sync.Map // map[string]*SSEClient
	ctx        context.Context
	cancel     context.CancelFunc
	heartbeat  time.Duration
	maxClients int
	stopOnce   sync.Once
}

// StreamOption is a functional option for configuring the handler
type StreamOption func(*StreamHandler)

// WithStreamLogger sets the logger for the handler
func WithStreamLogger(logger *zap.Logger) StreamOption {
	return func(h *StreamHandler) { h.logger = logger }
}

// WithStreamHeartbeat sets the heartbeat interval
func WithStreamHeartbeat(interval time.Duration) StreamOption {
	return func(h *StreamHandler) { h.heartbeat = interval }
}

// WithStreamMaxClients sets the maximum number of concurrent SSE clients
func WithStreamMaxClients(max int) StreamOption {
	return func(h *StreamHandler) { h.maxClients = max }
}

// NewStreamHandler creates an SSE handler for operator notifications
func NewStreamHandler(opts ...StreamOption) *StreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &StreamHandler{
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		heartbeat:  30 * time.Second,
		maxClients: 1000,
	}
	for _, opt := range opts {
		opt(h)
	}

	go h.sendHeartbeats()
	return h
}

// RegisterRoutes registers the stream route
func (h *StreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sync/stream", h.Stream)
}

// Stop disconnects every client and stops the heartbeat
func (h *StreamHandler) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		h.clients.Range(func(key, value any) bool {
			if client, ok := value.(*SSEClient); ok {
				close(client.Done)
			}
			return true
		})
		h.logger.Info("notification stream stopped")
	})
}

// Publish implements notify.Sink by broadcasting the notification to
// every connected client
func (h *StreamHandler) Publish(n notify.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("cannot marshal notification", zap.Error(err))
		return
	}
	h.broadcast(SSEMessage{Event: "notification", Data: string(data)})
}

// broadcast sends a message to all connected clients. Slow clients drop
// messages rather than block the publisher.
func (h *StreamHandler) broadcast(msg SSEMessage) {
	h.clients.Range(func(key, value any) bool {
		client, ok := value.(*SSEClient)
		if !ok {
			return true
		}
		select {
		case client.Chan <- msg:
		default:
			h.logger.Warn("client channel full, dropping message",
				zap.String("client_id", client.ID))
		}
		return true
	})
}

// sendHeartbeats periodically sends heartbeat messages to keep
// connections alive through proxies
func (h *StreamHandler) sendHeartbeats() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(SSEMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
		}
	}
}

// Stream establishes one SSE connection and streams notifications until
// the client goes away or the handler stops
func (h *StreamHandler) Stream(c *gin.Context) {
	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		h.Error(c, http.StatusServiceUnavailable, "ERR_MAX_CONNECTIONS",
			"Maximum number of SSE connections reached")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	const messageBufferSize = 100
	client := &SSEClient{
		ID:   uuid.New().String(),
		Chan: make(chan SSEMessage, messageBufferSize),
		Done: make(chan struct{}),
	}

	// The message channel is never closed: broadcast may still hold a
	// reference to this client after it is deleted from the map, and a
	// send on a closed channel would panic on the publisher's goroutine.
	// A departed client is simply removed and its buffer dropped with it.
	h.clients.Store(client.ID, client)
	defer h.clients.Delete(client.ID)

	h.logger.Info("SSE client connected", zap.String("client_id", client.ID))

	h.sendEvent(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"client_id":"%s","timestamp":%d}`, client.ID, time.Now().Unix()),
	})
	c.Writer.Flush()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			h.logger.Info("SSE client disconnected", zap.String("client_id", client.ID))
			return
		case <-client.Done:
			return
		case <-h.ctx.Done():
			return
		case msg := <-client.Chan:
			h.sendEvent(c.Writer, msg)
			c.Writer.Flush()
		}
	}
}

// sendEvent writes an SSE event to the response writer
func (h *StreamHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

// ClientCount returns the number of connected SSE clients
func (h *StreamHandler) ClientCount() int {
	count := 0
	h.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
