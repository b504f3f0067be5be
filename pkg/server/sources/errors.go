// Package sources provides the price source contract, the shared upstream
// HTTP plumbing and the error taxonomy used by every adapter.
package sources

import (
	"errors"
)

// Fetch failure taxonomy. Adapters wrap one of these so callers can tell
// failures apart with errors.Is.
var (
	// ErrSourceUnavailable indicates that the source's circuit breaker is open.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRateLimited indicates a local rate limit or an upstream 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrNetworkFailure indicates a transport error, timeout or non-2xx status.
	ErrNetworkFailure = errors.New("network failure")
	// ErrMalformedResponse indicates an unexpected payload shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrSymbolUnsupported indicates that the source has no mapping for a symbol.
	ErrSymbolUnsupported = errors.New("symbol unsupported")
)

var (
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrAPIError indicates an error reported inside an otherwise valid response.
	ErrAPIError = errors.New("API error")
	// ErrNotConnected indicates that a streaming source has no live connection.
	ErrNotConnected = errors.New("stream not connected")
	// ErrUnknownSource indicates that no factory is registered for a source.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoPairsConfigured indicates that no pairs are configured.
	ErrNoPairsConfigured = errors.New("no pairs configured")
	// ErrAPIKeyRequired indicates that an API key is required.
	ErrAPIKeyRequired = errors.New("API key is required")
	// ErrInvalidSymbolFormat indicates that the symbol format is invalid.
	ErrInvalidSymbolFormat = errors.New("symbol must be in BASE/QUOTE format")
	// ErrEmptyBaseCurrency indicates that the symbol BASE currency cannot be empty.
	ErrEmptyBaseCurrency = errors.New("symbol BASE currency cannot be empty")
	// ErrEmptyQuoteCurrency indicates that the symbol QUOTE currency cannot be empty.
	ErrEmptyQuoteCurrency = errors.New("symbol QUOTE currency cannot be empty")
)

// Outcome labels used in logs and metrics.
const (
	OutcomeSuccess           = "success"
	OutcomeSourceUnavailable = "source_unavailable"
	OutcomeRateLimited       = "rate_limited"
	OutcomeNetworkFailure    = "network_failure"
	OutcomeMalformedResponse = "malformed_response"
	OutcomeSymbolUnsupported = "symbol_unsupported"
)

// Classify maps an adapter error onto its taxonomy label. Errors without a
// taxonomy sentinel (timeouts, transport errors) count as network failures.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrSourceUnavailable):
		return OutcomeSourceUnavailable
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrMalformedResponse):
		return OutcomeMalformedResponse
	case errors.Is(err, ErrSymbolUnsupported):
		return OutcomeSymbolUnsupported
	default:
		return OutcomeNetworkFailure
	}
}
