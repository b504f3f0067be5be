// Package client provides a Go client for the price aggregator HTTP API.
package client

import "errors"

var (
	// ErrPriceServerHTTPError indicates that the price server returned an HTTP error.
	ErrPriceServerHTTPError = errors.New("price server returned HTTP error")

	// ErrNoSymbols is returned when GetPrices is called without symbols.
	ErrNoSymbols = errors.New("no symbols requested")
)
