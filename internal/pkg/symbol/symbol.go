// Package symbol normalizes instrument identifiers. Internally every
// instrument is the exchange pair symbol (e.g. BTCUSDT); AI responses often
// answer with the bare asset (e.g. BTC), so both directions are needed.
package symbol

import "strings"

// Normalize upper-cases and trims an instrument identifier.
func Normalize(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// Base strips the quote suffix from a pair symbol: BTCUSDT -> BTC.
func Base(sym, quote string) string {
	sym = Normalize(sym)
	quote = Normalize(quote)
	if quote != "" && strings.HasSuffix(sym, quote) && len(sym) > len(quote) {
		return strings.TrimSuffix(sym, quote)
	}
	return sym
}

// Pair joins a base asset with the quote currency: BTC -> BTCUSDT. Inputs that
// already carry the quote suffix pass through unchanged.
func Pair(asset, quote string) string {
	asset = Normalize(asset)
	quote = Normalize(quote)
	if asset == "" {
		return ""
	}
	if quote != "" && strings.HasSuffix(asset, quote) && len(asset) > len(quote) {
		return asset
	}
	return asset + quote
}
