package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/syncd/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Status represents the connection lifecycle state
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

// EventConnectionError is the reserved event name on which connection-level
// errors are delivered to subscribers. The transport never returns them
// synchronously from its read loop.
const EventConnectionError = "connection-error"

const eventAnnounce = "announce"

// ConnectionState is a point-in-time snapshot of the connection lifecycle
type ConnectionState struct {
	Status    Status `json:"status"`
	Attempt   int    `json:"attempt"`
	LastError string `json:"last_error,omitempty"`
}

// Identity declares who this client is when the connection is announced,
// so the server scopes which event domains it pushes.
type Identity struct {
	Role     string
	Token    string
	ClientID uuid.UUID
}

type announceMessage struct {
	Role     string `json:"role"`
	Token    string `json:"token,omitempty"`
	ClientID string `json:"client_id"`
}

// Handler receives the JSON data of one inbound frame.
// Handlers run on the read-loop goroutine and must not block.
type Handler func(data []byte)

// Socket abstracts one message-oriented bidirectional connection
type Socket interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close() error
}

// Dialer establishes sockets to the push endpoint
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Socket, error)
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	return data, err
}

func (s *wsSocket) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	return s.conn.Write(ctx, typ, p)
}

func (s *wsSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, endpoint string) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &wsSocket{conn: conn}, nil
}

// Connection owns the single push-channel connection for the session.
// It reconnects with exponential backoff on unexpected closure and delivers
// inbound frames to subscribers by event name on its read-loop goroutine.
type Connection struct {
	endpoint     string
	identity     Identity
	codec        Codec
	dialer       Dialer
	logger       *zap.Logger
	maxAttempts  int
	backoffBase  time.Duration
	backoffMax   time.Duration
	writeTimeout time.Duration
	onRetry      func(attempt int)

	mu      sync.RWMutex
	status  Status
	attempt int
	lastErr error
	socket  Socket
	cancel  context.CancelFunc

	subMu   sync.RWMutex
	subs    map[string]map[uint64]Handler
	nextSub uint64
}

// ConnectionOption is a functional option for configuring the connection
type ConnectionOption func(*Connection)

// WithLogger sets the logger for the connection
func WithLogger(logger *zap.Logger) ConnectionOption {
	return func(c *Connection) { c.logger = logger }
}

// WithCodec sets the wire codec
func WithCodec(codec Codec) ConnectionOption {
	return func(c *Connection) { c.codec = codec }
}

// WithDialer sets the socket dialer
func WithDialer(d Dialer) ConnectionOption {
	return func(c *Connection) { c.dialer = d }
}

// WithMaxAttempts bounds consecutive failed dial attempts before the
// connection gives up and enters the Failed state
func WithMaxAttempts(n int) ConnectionOption {
	return func(c *Connection) { c.maxAttempts = n }
}

// WithBackoff sets the base and capped maximum reconnect delay
func WithBackoff(base, max time.Duration) ConnectionOption {
	return func(c *Connection) {
		c.backoffBase = base
		c.backoffMax = max
	}
}

// WithWriteTimeout bounds each outbound socket write
func WithWriteTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.writeTimeout = d }
}

// WithRetryHook registers a callback invoked on every dial attempt after
// the first, for metrics
func WithRetryHook(fn func(attempt int)) ConnectionOption {
	return func(c *Connection) { c.onRetry = fn }
}

// NewConnection creates a connection to the given push endpoint
func NewConnection(endpoint string, identity Identity, opts ...ConnectionOption) *Connection {
	c := &Connection{
		endpoint:     endpoint,
		identity:     identity,
		codec:        jsonCodec{},
		dialer:       wsDialer{},
		logger:       zap.NewNop(),
		maxAttempts:  5,
		backoffBase:  500 * time.Millisecond,
		backoffMax:   30 * time.Second,
		writeTimeout: 10 * time.Second,
		status:       StatusDisconnected,
		subs:         make(map[string]map[uint64]Handler),
	}
	if identity.ClientID == uuid.Nil {
		c.identity.ClientID = uuid.New()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts the connection cycle. It returns immediately; dial results
// are reflected in State and on the connection-error channel. Calling it
// while a cycle is running is an error, but a Failed connection may be
// restarted this way.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case StatusConnecting, StatusConnected, StatusReconnecting:
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("transport already running (status %s)", status)
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.status = StatusConnecting
	c.attempt = 0
	c.lastErr = nil
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Disconnect cancels the reconnection loop and closes the socket.
// Domain caches are not touched; cached data stays visible to the UI.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	sock := c.socket
	c.cancel = nil
	c.socket = nil
	c.status = StatusDisconnected
	c.attempt = 0
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		_ = sock.Close()
	}
	c.logger.Info("transport disconnected")
}

// Send emits one outbound frame. It fails fast with ErrNotConnected while
// the connection is not established; nothing is buffered.
func (c *Connection) Send(event string, data any) error {
	c.mu.RLock()
	status := c.status
	sock := c.socket
	c.mu.RUnlock()

	if status != StatusConnected || sock == nil {
		return shared.ErrNotConnected
	}

	buf, err := c.codec.EncodeFrame(event, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return sock.Write(ctx, c.codec.MessageType(), buf)
}

// Subscribe registers a handler for frames with the given event name and
// returns a function that removes the registration.
func (c *Connection) Subscribe(event string, fn Handler) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]Handler)
	}
	c.subs[event][id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		if handlers, ok := c.subs[event]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(c.subs, event)
			}
		}
		c.subMu.Unlock()
	}
}

// State returns a snapshot of the connection lifecycle
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state := ConnectionState{
		Status:  c.status,
		Attempt: c.attempt,
	}
	if c.lastErr != nil {
		state.LastError = c.lastErr.Error()
	}
	return state
}

// run drives the dial/read/reconnect cycle until the context is cancelled,
// the attempt budget is exhausted, or Disconnect is called.
func (c *Connection) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffBase
	bo.MaxInterval = c.backoffMax
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		c.mu.Unlock()

		if attempt > 1 && c.onRetry != nil {
			c.onRetry(attempt)
		}

		sock, err := c.dialer.Dial(ctx, c.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("dial failed",
				zap.String("endpoint", c.endpoint),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			c.mu.Lock()
			c.lastErr = err
			exhausted := attempt >= c.maxAttempts
			if exhausted {
				c.status = StatusFailed
			} else {
				c.status = StatusReconnecting
			}
			c.mu.Unlock()

			c.emitConnectionError(err)
			if exhausted {
				c.logger.Error("retry budget exhausted, giving up until explicit connect",
					zap.Int("attempts", attempt))
				return
			}
			if !c.waitBackoff(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.status = StatusConnected
		c.attempt = 0
		c.lastErr = nil
		c.socket = sock
		c.mu.Unlock()
		bo.Reset()

		if err := c.announce(ctx, sock); err != nil {
			c.logger.Warn("announce failed", zap.Error(err))
			c.handleClosure(sock, err)
			continue
		}

		c.logger.Info("transport connected",
			zap.String("endpoint", c.endpoint),
			zap.String("role", c.identity.Role),
		)

		if err := c.readLoop(ctx, sock); err != nil {
			c.handleClosure(sock, err)
			continue
		}
		// context cancelled inside the read loop
		return
	}
}

// announce tells the server which role this client has, so it scopes the
// domains it pushes
func (c *Connection) announce(ctx context.Context, sock Socket) error {
	buf, err := c.codec.EncodeFrame(eventAnnounce, announceMessage{
		Role:     c.identity.Role,
		Token:    c.identity.Token,
		ClientID: c.identity.ClientID.String(),
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return sock.Write(writeCtx, c.codec.MessageType(), buf)
}

// readLoop delivers inbound frames until the socket errors or the context
// is cancelled. A nil return means cancellation; an error means unexpected
// closure and triggers reconnection.
func (c *Connection) readLoop(ctx context.Context, sock Socket) error {
	for {
		raw, err := sock.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handleFrame(raw)
	}
}

// handleClosure records an unexpected closure and reports it on the
// connection-error channel before the dial loop takes over again
func (c *Connection) handleClosure(sock Socket, err error) {
	_ = sock.Close()
	c.mu.Lock()
	if c.status == StatusDisconnected {
		// Disconnect won the race; leave its state alone.
		c.mu.Unlock()
		return
	}
	c.status = StatusReconnecting
	c.lastErr = err
	c.socket = nil
	c.mu.Unlock()

	c.logger.Warn("connection lost", zap.Error(err))
	c.emitConnectionError(err)
}

func (c *Connection) handleFrame(raw []byte) {
	event, data, err := c.codec.DecodeFrame(raw)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", zap.Error(err))
		return
	}
	c.dispatch(event, data)
}

func (c *Connection) dispatch(event string, data []byte) {
	c.subMu.RLock()
	handlers := make([]Handler, 0, len(c.subs[event]))
	for _, fn := range c.subs[event] {
		handlers = append(handlers, fn)
	}
	c.subMu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("no subscribers for event", zap.String("event", event))
		return
	}
	for _, fn := range handlers {
		fn(data)
	}
}

func (c *Connection) emitConnectionError(err error) {
	data, marshalErr := json.Marshal(map[string]string{"message": err.Error()})
	if marshalErr != nil {
		return
	}
	c.dispatch(EventConnectionError, data)
}

// waitBackoff sleeps for the given delay, returning false if the context
// was cancelled first
func (c *Connection) waitBackoff(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
