package mapper

import (
	"sort"
	"strings"

	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/sirupsen/logrus"
)

// Mapping is the partition of the ledger symbols by the coin mapping
type Mapping struct {
	Mapped   map[string]string // ledger symbol as written -> provider id
	Unmapped []string          // sorted
}

// ProviderIDs returns the distinct provider ids in sorted order
func (m *Mapping) ProviderIDs() []string {
	seen := make(map[string]bool, len(m.Mapped))
	ids := make([]string, 0, len(m.Mapped))
	for _, id := range m.Mapped {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SymbolsFor returns the ledger symbols mapped to providerID, sorted
func (m *Mapping) SymbolsFor(providerID string) []string {
	symbols := make([]string, 0, 1)
	for symbol, id := range m.Mapped {
		if id == providerID {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// MapperService resolves ledger symbols to provider identifiers
type MapperService struct {
	Coins  domain.CoinMapping
	Logger logrus.FieldLogger
}

// NewMapperService creates a new MapperService instance
func NewMapperService(coins domain.CoinMapping, logger logrus.FieldLogger) *MapperService {
	return &MapperService{
		Coins:  coins,
		Logger: logger,
	}
}

// Map partitions symbols into mapped and unmapped.
// Unmapped symbols are skipped, never guessed.
func (s *MapperService) Map(symbols []string) *Mapping {
	result := &Mapping{
		Mapped:   make(map[string]string),
		Unmapped: make([]string, 0),
	}
	seen := make(map[string]bool)
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		if id, ok := s.Coins.Lookup(symbol); ok {
			result.Mapped[symbol] = id
			continue
		}
		result.Unmapped = append(result.Unmapped, symbol)
	}
	sort.Strings(result.Unmapped)

	for _, symbol := range result.Unmapped {
		s.Logger.WithFields(logrus.Fields{"stage": domain.StageMapping, "symbol": symbol}).Warn("symbol has no provider mapping")
	}
	return result
}

// MapTransactions maps the distinct symbols of txs and reports unmapped ones as warnings
func (s *MapperService) MapTransactions(txs []domain.LedgerTransaction) (*Mapping, *domain.StageOutcome) {
	outcome := domain.NewStageOutcome(domain.StageMapping)
	s.Logger.WithField("coins", s.Coins.String()).Debug("mapping ledger symbols")
	mapping := s.Map(domain.DistinctSymbols(txs))
	for _, id := range mapping.ProviderIDs() {
		if symbols := mapping.SymbolsFor(id); len(symbols) > 1 {
			s.Logger.WithFields(logrus.Fields{"provider_id": id, "symbols": strings.Join(symbols, ",")}).Debug("symbols share one provider id, prices are fetched once")
		}
	}
	for _, symbol := range mapping.Unmapped {
		outcome.Warn(domain.Warning{Symbol: symbol, Message: "unmapped symbol"})
	}
	return mapping, outcome
}
