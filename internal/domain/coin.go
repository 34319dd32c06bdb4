package domain

import (
	"fmt"
	"sort"
	"strings"
)

// CoinMapping resolves ledger symbols to price provider identifiers.
// Keys are normalized symbols (see NormalizeSymbol).
type CoinMapping map[string]string

// NormalizeSymbol returns the lookup key of a ledger symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// ParseCoinsMap parses the "btc:bitcoin,eth:ethereum" notation.
// Pairs without a colon are ignored, empty halves are rejected.
func ParseCoinsMap(raw string) (CoinMapping, error) {
	mapping := make(CoinMapping)
	for _, pair := range strings.Split(raw, ",") {
		if !strings.Contains(pair, ":") {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		symbol := NormalizeSymbol(parts[0])
		providerID := strings.TrimSpace(parts[1])
		if symbol == "" || providerID == "" {
			return nil, fmt.Errorf("invalid coin mapping pair %q", strings.TrimSpace(pair))
		}
		mapping[symbol] = providerID
	}
	return mapping, nil
}

// Lookup returns the provider identifier for a ledger symbol
func (m CoinMapping) Lookup(symbol string) (string, bool) {
	id, ok := m[NormalizeSymbol(symbol)]
	return id, ok
}

// String renders the mapping in the COINS_MAP notation, sorted by symbol
func (m CoinMapping) String() string {
	symbols := make([]string, 0, len(m))
	for s := range m {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	pairs := make([]string, 0, len(symbols))
	for _, s := range symbols {
		pairs = append(pairs, s+":"+m[s])
	}
	return strings.Join(pairs, ",")
}
