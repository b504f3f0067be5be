package sources

import (
	"strings"
)

// CanonicalSymbol converts a requested symbol into the form used as cache
// and mapping key: surrounding whitespace removed, upper-cased, with
// whitespace around the separator dropped.
// Examples:
//   - " btc/usdt " -> BTC/USDT
//   - "eth / usdc" -> ETH/USDC
func CanonicalSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return symbol
	}
	return strings.TrimSpace(parts[0]) + "/" + strings.TrimSpace(parts[1])
}

// CanonicalSymbols canonicalizes a request, dropping empties and duplicates
// while keeping first-seen order.
func CanonicalSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		c := CanonicalSymbol(s)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// SplitSymbol returns the BASE and QUOTE parts of a canonical symbol.
func SplitSymbol(symbol string) (string, string) {
	base, quote, _ := strings.Cut(symbol, "/")
	return base, quote
}
