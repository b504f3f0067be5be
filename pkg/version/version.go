// Package version provides version information for the price-aggregator application.
package version

// Version is the current version of the price-aggregator application.
const Version = "0.3.0"

// AgentString returns the User-Agent sent to upstream price APIs.
// Format: price-aggregator/v{version}
func AgentString() string {
	return "price-aggregator/v" + Version
}
