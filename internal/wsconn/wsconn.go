// Package wsconn provides a production-grade WebSocket client with reconnection.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/perp-router/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // used in error context
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration
	ReadTimeout    time.Duration // 0 = no per-read deadline
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		ReadTimeout:    0,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// MessageHandler receives every data frame.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler is notified on every state transition. err is the cause of a
// disconnect, nil otherwise.
type StateHandler func(state State, err error)

// Client is a WebSocket client that reconnects with exponential backoff.
// Send and SendJSON are safe for concurrent use.
type Client struct {
	config Config

	conn   *websocket.Conn
	connMu sync.RWMutex

	writeMu sync.Mutex

	state   State
	stateMu sync.RWMutex

	onMessage MessageHandler
	onState   StateHandler
	onConnect func(ctx context.Context) error
	handlerMu sync.RWMutex

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
}

// New creates a new WebSocket client. It does not dial.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("websocket url is required"))
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:    config,
		state:     StateDisconnected,
		runCtx:    ctx,
		runCancel: cancel,
	}, nil
}

// OnMessage registers the handler for incoming messages.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlerMu.Lock()
	c.onMessage = h
	c.handlerMu.Unlock()
}

// OnStateChange registers the handler for state transitions.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlerMu.Lock()
	c.onState = h
	c.handlerMu.Unlock()
}

// OnConnect registers a hook run after every successful dial, including
// reconnects. A hook error drops the connection.
func (c *Client) OnConnect(h func(ctx context.Context) error) {
	c.handlerMu.Lock()
	c.onConnect = h
	c.handlerMu.Unlock()
}

// Connect dials once. On failure the client is left disconnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}
	return c.dial(ctx)
}

// ConnectWithRetry dials until it succeeds, ctx is done or MaxReconnects
// attempts have failed.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	backoff := c.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if c.closed.Load() {
			return err
		}
		if c.config.MaxReconnects > 0 && attempt >= c.config.MaxReconnects {
			return apperror.New(apperror.CodeWebSocketConnectionError,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("%s: gave up after %d attempts", c.config.Name, attempt)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.runCtx.Done():
			return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, c.config.MaxBackoff)
	}
}

func (c *Client) dial(ctx context.Context) error {
	c.setState(StateConnecting, nil)

	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		c.setState(StateDisconnected, err)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.connMu.Lock()
	if c.closed.Load() {
		c.connMu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}
	c.conn = conn
	c.connMu.Unlock()

	c.setState(StateConnected, nil)

	c.handlerMu.RLock()
	hook := c.onConnect
	c.handlerMu.RUnlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			c.dropConn(conn, websocket.StatusInternalError, "connect hook failed")
			c.setState(StateDisconnected, err)
			return err
		}
	}

	// wg.Add happens under connMu so it cannot race with Close's Wait.
	c.connMu.Lock()
	if c.closed.Load() {
		c.connMu.Unlock()
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}
	connCtx, cancel := context.WithCancel(c.runCtx)
	c.wg.Add(1)
	go c.readLoop(connCtx, cancel, conn)
	if c.config.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(connCtx, conn)
	}
	c.connMu.Unlock()

	return nil
}

func (c *Client) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer c.wg.Done()
	defer cancel()

	for {
		readCtx := ctx
		var readCancel context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, readCancel = context.WithTimeout(ctx, c.config.ReadTimeout)
		}
		_, data, err := conn.Read(readCtx)
		if readCancel != nil {
			readCancel()
		}
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.dropConn(conn, websocket.StatusGoingAway, "read failed")
			c.setState(StateDisconnected, err)
			go c.reconnect()
			return
		}

		c.handlerMu.RLock()
		h := c.onMessage
		c.handlerMu.RUnlock()
		if h != nil {
			h(ctx, data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			timeout := c.config.PongTimeout
			if timeout <= 0 {
				timeout = c.config.PingInterval
			}
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				// The read loop observes the closed conn and reconnects.
				conn.Close(websocket.StatusGoingAway, "pong timeout")
				return
			}
		}
	}
}

func (c *Client) reconnect() {
	backoff := c.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		if c.closed.Load() {
			return
		}
		if c.config.MaxReconnects > 0 && attempt > c.config.MaxReconnects {
			c.setState(StateDisconnected, apperror.New(apperror.CodeWebSocketConnectionError,
				apperror.WithContext(fmt.Sprintf("%s: reconnect limit reached", c.config.Name))))
			return
		}

		c.setState(StateReconnecting, nil)
		select {
		case <-c.runCtx.Done():
			return
		case <-time.After(backoff):
		}

		if err := c.dial(c.runCtx); err == nil {
			return
		}
		backoff = nextBackoff(backoff, c.config.MaxBackoff)
	}
}

// Send writes a text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil || c.State() != StateConnected {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(c.config.Name+": not connected"))
	}

	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	err := conn.Write(ctx, websocket.MessageText, msg)
	c.writeMu.Unlock()
	if err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}
	return nil
}

// SendJSON marshals v and writes it as a text frame.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeInvalidFormat, apperror.WithCause(err))
	}
	return c.Send(ctx, data)
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Close gracefully closes the connection and stops reconnecting. It is
// idempotent.
func (c *Client) Close() error {
	c.connMu.Lock()
	if c.closed.Swap(true) {
		c.connMu.Unlock()
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		// Close errors are expected when the peer is already gone.
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	c.runCancel()
	c.wg.Wait()

	c.setState(StateClosed, nil)
	return nil
}

func (c *Client) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.Close(code, reason)
}

func (c *Client) setState(state State, err error) {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return
	}
	c.state = state
	c.stateMu.Unlock()

	c.handlerMu.RLock()
	h := c.onState
	c.handlerMu.RUnlock()
	if h != nil {
		h(state, err)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
