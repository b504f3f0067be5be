package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/price-aggregator/pkg/server/sources"
	ws "github.com/StrathCole/price-aggregator/pkg/server/sources/websocket"
)

const (
	binanceBaseURL    = "https://api.binance.com"
	binanceWSURL      = "wss://stream.binance.com:9443"
	binanceStaleAfter = 30 * time.Second
)

// BinanceSource fetches prices from Binance. In REST mode every Fetch calls
// /api/v3/ticker/24hr for the requested pairs. In WebSocket mode a
// mini-ticker stream keeps the latest tick per pair and Fetch serves those.
type BinanceSource struct {
	*sources.BaseSource
	apiURL       string
	useWebSocket bool
	wsURL        string
	staleAfter   time.Duration
	wsClient     *ws.Client

	mu    sync.RWMutex
	ticks map[string]sources.Price // native symbol -> latest tick (Symbol unset)
	now   func() time.Time
}

// binanceTicker24h is one entry of the /api/v3/ticker/24hr response
type binanceTicker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	CloseTime          int64  `json:"closeTime"` // ms
}

// binanceMiniTickerMessage is a combined-stream mini-ticker event.
// Prices and volumes are decimal strings.
type binanceMiniTickerMessage struct {
	Stream string `json:"stream"` // e.g. "btcusdt@miniTicker"
	Data   struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"` // ms
		Symbol    string `json:"s"`
		Close     string `json:"c"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"` // base asset
		QuoteVol  string `json:"q"`
	} `json:"data"`
}

// NewBinanceSource creates a new Binance source (REST or WebSocket based on config)
func NewBinanceSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}
	for canonical, native := range pairs {
		pairs[canonical] = strings.ToUpper(native)
	}

	staleAfter := binanceStaleAfter
	if raw := sources.GetStringFromConfig(config, "stale_after", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: stale_after %q", sources.ErrInvalidConfig, raw)
		}
		staleAfter = d
	}

	source := &BinanceSource{
		BaseSource:   sources.NewBaseSource("binance", sources.SourceTypeCEX, pairs, sources.GetHTTPClientFromConfig(config), logger),
		apiURL:       strings.TrimRight(sources.GetStringFromConfig(config, "api_url", binanceBaseURL), "/"),
		useWebSocket: sources.GetBoolFromConfig(config, "use_websocket", false),
		wsURL:        strings.TrimRight(sources.GetStringFromConfig(config, "websocket_url", binanceWSURL), "/"),
		staleAfter:   staleAfter,
		ticks:        make(map[string]sources.Price),
		now:          time.Now,
	}

	if source.useWebSocket {
		source.wsClient = ws.NewClient(ws.Config{
			URL:    source.buildWebSocketURL(),
			Logger: source.Logger().ZerologLogger(),
		})
		source.wsClient.SetHandlers(
			source.handleWSMessage,
			source.handleWSConnect,
			source.handleWSDisconnect,
		)
	}

	return source, nil
}

// Initialize opens the stream in WebSocket mode. A failed first dial is
// not fatal: the client keeps retrying in the background and Fetch reports
// the source as not connected meanwhile.
func (s *BinanceSource) Initialize(ctx context.Context) error {
	if !s.useWebSocket {
		s.Logger().Info("Binance REST mode enabled", "pairs", len(s.Symbols()))
		return nil
	}

	s.Logger().Info("Binance WebSocket mode enabled", "pairs", len(s.Symbols()))
	if err := s.wsClient.Connect(ctx); err != nil {
		s.Logger().Warn("Initial WebSocket connect failed, retrying in background", "error", err)
		go func() {
			if err := s.wsClient.ConnectWithRetry(context.Background()); err != nil && err != ws.ErrClientClosed {
				s.Logger().Error("WebSocket connect gave up", "error", err)
			}
		}()
	}
	return nil
}

// Stop halts the source and cleans up resources
func (s *BinanceSource) Stop() error {
	if s.wsClient != nil {
		return s.wsClient.Close()
	}
	return nil
}

// Fetch returns prices for the requested symbols
func (s *BinanceSource) Fetch(ctx context.Context, symbols []string) (map[string]sources.Price, error) {
	natives, lookup := s.MapSymbols(symbols)
	if len(natives) == 0 {
		return map[string]sources.Price{}, nil
	}

	if s.useWebSocket {
		return s.fetchFromStream(natives, lookup)
	}
	return s.fetchREST(ctx, natives, lookup)
}

// REST mode implementation

func (s *BinanceSource) fetchREST(ctx context.Context, natives []string, lookup map[string][]string) (map[string]sources.Price, error) {
	encoded, err := json.Marshal(natives)
	if err != nil {
		return nil, fmt.Errorf("failed to encode symbols: %w", err)
	}

	endpoint := s.apiURL + "/api/v3/ticker/24hr?symbols=" + url.QueryEscape(string(encoded))

	var tickers []binanceTicker24h
	if err := s.GetJSON(ctx, endpoint, nil, &tickers); err != nil {
		return nil, err
	}

	prices := make(map[string]sources.Price, len(lookup))
	for _, ticker := range tickers {
		canonicals, ok := lookup[strings.ToUpper(ticker.Symbol)]
		if !ok {
			continue
		}

		price, err := decimal.NewFromString(ticker.LastPrice)
		if err != nil {
			s.Logger().Warn("Failed to parse price", "symbol", ticker.Symbol, "price", ticker.LastPrice, "error", err)
			continue
		}

		tick := sources.Price{
			Price:     price,
			Source:    s.Name(),
			Change24h: parseFloat(ticker.PriceChangePercent),
			Volume:    parseDecimal(ticker.Volume),
		}
		if ticker.CloseTime > 0 {
			tick.Timestamp = time.UnixMilli(ticker.CloseTime)
		}

		for _, canonical := range canonicals {
			tick.Symbol = canonical
			prices[canonical] = tick
		}
	}

	return prices, nil
}

// WebSocket mode implementation

func (s *BinanceSource) fetchFromStream(natives []string, lookup map[string][]string) (map[string]sources.Price, error) {
	if !s.wsClient.IsConnected() {
		return nil, fmt.Errorf("%w: %w", sources.ErrNetworkFailure, sources.ErrNotConnected)
	}

	now := s.now()
	prices := make(map[string]sources.Price, len(lookup))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, native := range natives {
		tick, ok := s.ticks[native]
		if !ok || now.Sub(tick.Timestamp) > s.staleAfter {
			continue
		}
		for _, canonical := range lookup[native] {
			tick.Symbol = canonical
			prices[canonical] = tick
		}
	}

	return prices, nil
}

// buildWebSocketURL creates the combined stream URL for all configured pairs
func (s *BinanceSource) buildWebSocketURL() string {
	seen := make(map[string]bool)
	streams := make([]string, 0, len(s.Symbols()))
	for _, canonical := range s.Symbols() {
		native := strings.ToLower(s.GetSourceSymbol(canonical))
		if seen[native] {
			continue
		}
		seen[native] = true
		streams = append(streams, native+"@miniTicker")
	}

	return s.wsURL + "/stream?streams=" + strings.Join(streams, "/")
}

// handleWSMessage processes incoming WebSocket messages
func (s *BinanceSource) handleWSMessage(message []byte) {
	var msg binanceMiniTickerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.Logger().Warn("Failed to unmarshal mini-ticker message", "error", err)
		return
	}

	if err := s.processMiniTicker(&msg); err != nil {
		s.Logger().Warn("Failed to process mini-ticker", "error", err)
	}
}

// handleWSConnect is called when WebSocket connection is established
func (s *BinanceSource) handleWSConnect() {
	s.Logger().Info("Binance WebSocket connected")
}

// handleWSDisconnect is called when WebSocket connection is lost
func (s *BinanceSource) handleWSDisconnect(err error) {
	s.Logger().Warn("Binance WebSocket disconnected", "error", err)
}

// processMiniTicker stores the latest tick for a tracked symbol
func (s *BinanceSource) processMiniTicker(msg *binanceMiniTickerMessage) error {
	native := strings.ToUpper(msg.Data.Symbol)
	if len(s.GetCanonicalSymbols(native)) == 0 {
		return nil
	}

	price, err := decimal.NewFromString(msg.Data.Close)
	if err != nil {
		return fmt.Errorf("failed to parse price %s: %w", msg.Data.Close, err)
	}

	change := 0.0
	if open, err := decimal.NewFromString(msg.Data.Open); err == nil && open.IsPositive() {
		change, _ = price.Sub(open).Div(open).Mul(decimal.NewFromInt(100)).Float64()
	}

	ts := s.now()
	if msg.Data.EventTime > 0 {
		ts = time.UnixMilli(msg.Data.EventTime)
	}

	s.mu.Lock()
	s.ticks[native] = sources.Price{
		Price:     price,
		Source:    s.Name(),
		Timestamp: ts,
		Change24h: change,
		Volume:    parseDecimal(msg.Data.Volume),
	}
	s.mu.Unlock()

	return nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
