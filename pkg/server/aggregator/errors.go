package aggregator

import "errors"

var (
	// ErrNoSources indicates that no source survived initialization.
	ErrNoSources = errors.New("no price sources available")
)
