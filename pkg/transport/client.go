package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"fleetsim/pkg/protocol"
)

// DefaultConnectTimeout bounds how long Connect blocks waiting for the
// connection to complete.
const DefaultConnectTimeout = 5 * time.Second

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("transport: not connected")

// ClientMessageHandler receives one decoded frame body. It runs on the
// client's read goroutine and must not block for long.
type ClientMessageHandler func(payload []byte)

// ClientConnectionHandler is fired with true on connect and false on
// disconnect transitions.
type ClientConnectionHandler func(connected bool)

// Client holds one persistent connection to a server. It never
// reconnects on its own; that policy belongs to the caller.
type Client struct {
	addr           string
	logger         *slog.Logger
	connectTimeout time.Duration

	connected atomic.Bool

	mu        sync.Mutex
	conn      net.Conn
	writeMu   sync.Mutex
	readDone  chan struct{}
	onMessage ClientMessageHandler
	onConn    ClientConnectionHandler
}

// NewClient creates a client for the server at addr (host:port). Call
// Connect to establish the connection.
func NewClient(addr string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		addr:           addr,
		logger:         logger,
		connectTimeout: DefaultConnectTimeout,
	}
}

// SetConnectTimeout overrides the Connect deadline.
func (c *Client) SetConnectTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectTimeout = d
}

// SetMessageHandler registers the frame callback. Set before Connect.
func (c *Client) SetMessageHandler(h ClientMessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = h
}

// SetConnectionHandler registers the connection-state callback. Set
// before Connect.
func (c *Client) SetConnectionHandler(h ClientConnectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConn = h
}

// Connect dials the server, blocking up to the configured timeout. On
// success it starts the read goroutine and fires the connection callback
// with true. On failure it returns the error and leaves no background
// activity running. Calling Connect while connected is a no-op.
func (c *Client) Connect() error {
	if c.connected.Load() {
		return nil
	}
	c.mu.Lock()
	timeout := c.connectTimeout
	c.mu.Unlock()

	conn, err := net.DialTimeout("tcp", c.addr, timeout)
	if err != nil {
		c.logger.Error("connect failed", "addr", c.addr, "error", err)
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.readDone = make(chan struct{})
	onConn := c.onConn
	done := c.readDone
	c.mu.Unlock()
	c.connected.Store(true)

	c.logger.Info("connected", "addr", c.addr)
	if onConn != nil {
		onConn(true)
	}
	go c.readLoop(conn, done)
	return nil
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Send writes one frame. It returns ErrNotConnected when no connection
// is open; a write error triggers a local disconnect before returning.
func (c *Client) Send(body []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	err := protocol.WriteFrame(conn, body)
	c.writeMu.Unlock()
	if err != nil {
		c.teardown()
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Disconnect closes the connection, waits for the read goroutine to
// exit, and fires the connection callback with false. It is a no-op when
// already disconnected.
func (c *Client) Disconnect() {
	done := c.teardown()
	if done != nil {
		<-done
	}
}

// teardown performs the local-disconnect transition once: close the
// socket and fire the callback. It returns the read goroutine's done
// channel when this call performed the transition, nil otherwise.
func (c *Client) teardown() chan struct{} {
	if !c.connected.Swap(false) {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	done := c.readDone
	onConn := c.onConn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Info("disconnected", "addr", c.addr)
	if onConn != nil {
		onConn(false)
	}
	return done
}

// readLoop reads frames until an I/O error or framing violation, then
// performs the local disconnect.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		body, err := protocol.ReadFrame(conn)
		if err != nil {
			c.teardown()
			return
		}
		if !c.connected.Load() {
			return
		}
		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(body)
		}
	}
}
