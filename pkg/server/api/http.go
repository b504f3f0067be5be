// Package api exposes the aggregator over HTTP and an optional
// request/response WebSocket endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/StrathCole/price-aggregator/pkg/logging"
	"github.com/StrathCole/price-aggregator/pkg/metrics"
	"github.com/StrathCole/price-aggregator/pkg/server/aggregator"
	"github.com/StrathCole/price-aggregator/pkg/server/sources"
)

const (
	// MaxSymbolsPerRequest bounds one price query
	MaxSymbolsPerRequest = 100

	defaultRequestTimeout = 30 * time.Second
)

// PriceService is the part of the aggregator the API serves
type PriceService interface {
	GetPrices(ctx context.Context, symbols []string, forceRefresh bool) (map[string]sources.PriceView, []string)
	CacheStats() aggregator.Stats
}

// PricesResponse is the body of GET /v1/prices
type PricesResponse struct {
	Prices     map[string]sources.PriceView `json:"prices"`
	Unresolved []string                     `json:"unresolved"`
}

// ErrorResponse is returned with every 4xx/5xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server represents the HTTP API server.
type Server struct {
	addr           string
	service        PriceService
	logger         *logging.Logger
	requestTimeout time.Duration
	server         *http.Server
	wsPath         string
	ws             *WebSocketHandler
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, service PriceService, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:           addr,
		service:        service,
		logger:         logger.With("component", "api"),
		requestTimeout: defaultRequestTimeout,
	}
}

// EnableWebSocket mounts the request/response WebSocket endpoint at path.
func (s *Server) EnableWebSocket(path string) {
	s.wsPath = path
	s.ws = NewWebSocketHandler(s.service, s.logger)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/prices", s.handlePrices)
	mux.HandleFunc("/latest", s.handlePrices) // Compatibility with older price clients
	mux.HandleFunc("/v1/stats", s.handleStats)
	if s.ws != nil {
		mux.Handle(s.wsPath, s.ws)
	}
	return mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	return s.serve(func(srv *http.Server) error { return srv.ListenAndServe() })
}

// StartTLS is Start with TLS.
func (s *Server) StartTLS(certFile, keyFile string) error {
	return s.serve(func(srv *http.Server) error { return srv.ListenAndServeTLS(certFile, keyFile) })
}

func (s *Server) serve(listen func(*http.Server) error) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.requestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr, "websocket", s.wsPath)
	if err := listen(s.server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server and closes WebSocket clients.
func (s *Server) Stop(ctx context.Context) error {
	if s.ws != nil {
		s.ws.Close()
	}
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePrices handles /v1/prices and /latest endpoints.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, strconv.Itoa(status), time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		s.sendError(w, status, "method not allowed")
		return
	}

	symbols := ParseSymbols(r.URL.Query()["symbols"])
	if len(symbols) == 0 {
		status = http.StatusBadRequest
		s.sendError(w, status, "symbols query parameter is required")
		return
	}
	if len(symbols) > MaxSymbolsPerRequest {
		status = http.StatusBadRequest
		s.sendError(w, status, fmt.Sprintf("at most %d symbols per request", MaxSymbolsPerRequest))
		return
	}

	force := false
	if raw := r.URL.Query().Get("force_refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			status = http.StatusBadRequest
			s.sendError(w, status, "force_refresh must be a boolean")
			return
		}
		force = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	prices, unresolved := s.service.GetPrices(ctx, symbols, force)
	s.sendJSON(w, PricesResponse{Prices: prices, Unresolved: unresolved})
}

// handleStats handles /v1/stats endpoint.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest("/v1/stats", strconv.Itoa(status), time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		s.sendError(w, status, "method not allowed")
		return
	}

	s.sendJSON(w, s.service.CacheStats())
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// ParseSymbols splits comma-separated query values into a canonical,
// de-duplicated symbol list.
func ParseSymbols(values []string) []string {
	var raw []string
	for _, v := range values {
		raw = append(raw, strings.Split(v, ",")...)
	}
	return sources.CanonicalSymbols(raw)
}
