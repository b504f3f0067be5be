package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is a read-only WebSocket stream consumer with reconnection support
type Client struct {
	url           string
	conn          *websocket.Conn
	connMu        sync.Mutex
	initialWait   time.Duration
	maxWait       time.Duration
	maxRetries    int
	pingInterval  time.Duration
	pongWait      time.Duration
	writeWait     time.Duration
	logger        zerolog.Logger
	headers       http.Header
	dialer        *websocket.Dialer
	done          chan struct{}
	onMessage     func([]byte)
	onConnect     func()
	onDisconnect  func(error)
	connected     bool
	stateMu       sync.RWMutex
	closed        bool
	closeMu       sync.Mutex
	lastMessageAt time.Time
	lastMessageMu sync.RWMutex
}

// Config holds WebSocket client configuration
type Config struct {
	URL           string
	ReconnectWait time.Duration // Initial wait, doubled per failed attempt up to MaxWait
	MaxWait       time.Duration
	MaxRetries    int // <= 0 retries forever
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	Logger        zerolog.Logger
	Headers       http.Header
}

// NewClient creates a new WebSocket client
func NewClient(cfg Config) *Client {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 5 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 60 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	return &Client{
		url:          cfg.URL,
		initialWait:  cfg.ReconnectWait,
		maxWait:      cfg.MaxWait,
		maxRetries:   cfg.MaxRetries,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
		writeWait:    cfg.WriteWait,
		logger:       cfg.Logger,
		headers:      cfg.Headers,
		dialer:       &dialer,
		done:         make(chan struct{}),
	}
}

// SetHandlers sets the event handlers. Must be called before Connect.
func (c *Client) SetHandlers(onMessage func([]byte), onConnect func(), onDisconnect func(error)) {
	c.onMessage = onMessage
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
}

// Connect establishes the WebSocket connection once
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setConnected(true)

	if c.onConnect != nil {
		c.onConnect()
	}

	c.logger.Info().Str("url", c.url).Msg("WebSocket connected")

	go c.readPump(conn)
	go c.pingPump(conn)

	return nil
}

// ConnectWithRetry connects with exponential backoff until it succeeds,
// the context is done, the client is closed or MaxRetries is reached
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	wait := c.initialWait
	retries := 0
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if err == ErrClientClosed {
			return err
		}

		retries++
		if c.maxRetries > 0 && retries >= c.maxRetries {
			return ErrMaxRetriesExceeded
		}

		c.logger.Warn().
			Err(err).
			Int("retry", retries).
			Dur("wait", wait).
			Msg("WebSocket connection failed, retrying...")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClientClosed
		case <-time.After(wait):
			wait *= 2
			if wait > c.maxWait {
				wait = c.maxWait
			}
		}
	}
}

// Close closes the WebSocket connection and stops reconnecting
func (c *Client) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	c.setConnected(false)
	close(c.done)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

// LastMessageAt returns when the last message was received
func (c *Client) LastMessageAt() time.Time {
	c.lastMessageMu.RLock()
	defer c.lastMessageMu.RUnlock()
	return c.lastMessageAt
}

func (c *Client) setConnected(connected bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.connected = connected
}

func (c *Client) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// readPump reads messages until the connection fails, then reconnects
func (c *Client) readPump(conn *websocket.Conn) {
	var readErr error
	defer func() {
		c.reconnect(conn, readErr)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket read error")
			}
			readErr = err
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))

		c.lastMessageMu.Lock()
		c.lastMessageAt = time.Now()
		c.lastMessageMu.Unlock()

		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// pingPump sends periodic ping messages on conn until it is replaced or closed
func (c *Client) pingPump(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != conn {
				c.connMu.Unlock()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()

			if err != nil {
				c.logger.Warn().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

// reconnect attempts to reconnect after disconnection
func (c *Client) reconnect(conn *websocket.Conn, cause error) {
	select {
	case <-c.done:
		c.logger.Info().Msg("WebSocket client shutting down, skipping reconnection")
		return
	default:
	}

	c.connMu.Lock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.setConnected(false)

	if cause == nil {
		cause = ErrConnectionLost
	}
	if c.onDisconnect != nil {
		c.onDisconnect(cause)
	}

	c.logger.Warn().Msg("WebSocket disconnected, attempting to reconnect...")

	if err := c.ConnectWithRetry(context.Background()); err != nil && err != ErrClientClosed {
		c.logger.Error().Err(err).Msg("WebSocket reconnection failed")
	}
}
