// Package instrument handles trading pair parsing and the canonical symbol
// form used when talking to the price provider.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Quote assets recognised when a pair is written without a separator.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "FDUSD", "BTC", "ETH", "BNB", "EUR", "USD"}

// pairRegex matches BASE/QUOTE, BASE-QUOTE, BASE_QUOTE, BASE:QUOTE or BASEQUOTE.
// Example: BTC/USDT
var pairRegex = regexp.MustCompile(`^([A-Z0-9]{2,15})(?:[/\-_:]?)([A-Z0-9]{2,10})?$`)

var (
	ErrInvalidPair = errors.New("instrument: invalid pair format")
	ErrEmptyPair   = errors.New("instrument: empty pair")
)

// Pair is a parsed trading pair.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Symbol returns the provider symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}

// String returns the display form, e.g. BTC/USDT.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Parse parses and validates a pair string.
func Parse(raw string) (Pair, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Pair{}, ErrEmptyPair
	}

	if i := strings.IndexAny(s, "/-_:"); i >= 0 {
		base, quote := s[:i], s[i+1:]
		if !pairRegex.MatchString(base) || !pairRegex.MatchString(quote) || strings.ContainsAny(quote, "/-_:") {
			return Pair{}, fmt.Errorf("%w: %s (expected BASE/QUOTE)", ErrInvalidPair, raw)
		}
		return Pair{Base: base, Quote: quote}, nil
	}

	if !pairRegex.MatchString(s) {
		return Pair{}, fmt.Errorf("%w: %s (expected BASE/QUOTE)", ErrInvalidPair, raw)
	}
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return Pair{Base: strings.TrimSuffix(s, q), Quote: q}, nil
		}
	}
	return Pair{}, fmt.Errorf("%w: %s (unknown quote asset)", ErrInvalidPair, raw)
}

// Symbol canonicalizes a raw pair to its provider symbol. Unparseable input
// is upper-cased and stripped of separators so it still round-trips to the
// provider, which is the final judge of validity.
func Symbol(raw string) string {
	if p, err := Parse(raw); err == nil {
		return p.Symbol()
	}
	return strings.NewReplacer("/", "", "-", "", "_", "", ":", "").Replace(strings.ToUpper(strings.TrimSpace(raw)))
}

// Dedupe canonicalizes and deduplicates symbols, returning them sorted.
func Dedupe(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s := Symbol(r)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
