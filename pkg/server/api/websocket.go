package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/price-aggregator/pkg/logging"
	"github.com/StrathCole/price-aggregator/pkg/server/aggregator"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

// Client message types
const (
	MessageGetPrices = "get_prices"
	MessageStats     = "stats"
	MessagePing      = "ping"
)

// Server message types
const (
	MessagePrices = "prices"
	MessagePong   = "pong"
	MessageError  = "error"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 16
)

// WebSocketRequest is a client message. ID is echoed in the reply.
type WebSocketRequest struct {
	Type         string   `json:"type"`
	ID           string   `json:"id,omitempty"`
	Symbols      []string `json:"symbols,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

// WebSocketResponse is sent in reply to exactly one request.
type WebSocketResponse struct {
	Type       string                       `json:"type"`
	ID         string                       `json:"id,omitempty"`
	Prices     map[string]sources.PriceView `json:"prices,omitempty"`
	Unresolved []string                     `json:"unresolved,omitempty"`
	Stats      *aggregator.Stats            `json:"stats,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

// WebSocketHandler answers price and stats queries over WebSocket. It never
// sends anything the client did not ask for, apart from keepalive pings.
type WebSocketHandler struct {
	service        PriceService
	logger         *logging.Logger
	upgrader       websocket.Upgrader
	requestTimeout time.Duration

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	handler *WebSocketHandler
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(service PriceService, logger *logging.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Allow all origins (configure CORS as needed)
				return true
			},
		},
		requestTimeout: defaultRequestTimeout,
		clients:        make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
	}

	if !h.register(client) {
		cancel()
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	h.logger.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String())
}

// Close disconnects every client and rejects new ones.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WebSocketHandler) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *WebSocketHandler) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// handle computes the reply to one request
func (h *WebSocketHandler) handle(ctx context.Context, req WebSocketRequest) WebSocketResponse {
	switch req.Type {
	case MessageGetPrices:
		symbols := sources.CanonicalSymbols(req.Symbols)
		if len(symbols) == 0 {
			return WebSocketResponse{Type: MessageError, ID: req.ID, Error: "symbols are required"}
		}
		if len(symbols) > MaxSymbolsPerRequest {
			return WebSocketResponse{Type: MessageError, ID: req.ID, Error: fmt.Sprintf("at most %d symbols per request", MaxSymbolsPerRequest)}
		}

		reqCtx, cancel := context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()

		prices, unresolved := h.service.GetPrices(reqCtx, symbols, req.ForceRefresh)
		return WebSocketResponse{Type: MessagePrices, ID: req.ID, Prices: prices, Unresolved: unresolved}

	case MessageStats:
		stats := h.service.CacheStats()
		return WebSocketResponse{Type: MessageStats, ID: req.ID, Stats: &stats}

	case MessagePing:
		return WebSocketResponse{Type: MessagePong, ID: req.ID}

	default:
		return WebSocketResponse{Type: MessageError, ID: req.ID, Error: fmt.Sprintf("unknown message type %q", req.Type)}
	}
}

// close tears the client down once
func (c *wsClient) close() {
	c.once.Do(func() {
		c.cancel()
		c.handler.unregister(c)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		_ = c.conn.Close()
	})
}

// writePump sends replies and keepalive pings to the WebSocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.handler.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads requests and answers them in order.
func (c *wsClient) readPump() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.handler.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var req WebSocketRequest
		var resp WebSocketResponse
		if err := json.Unmarshal(message, &req); err != nil {
			resp = WebSocketResponse{Type: MessageError, Error: "invalid JSON message"}
		} else {
			resp = c.handler.handle(c.ctx, req)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			c.handler.logger.Error("Failed to marshal response", "error", err)
			continue
		}

		select {
		case c.send <- data:
		case <-c.ctx.Done():
			return
		}
	}
}
