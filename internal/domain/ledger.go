package domain

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of ledger operation
type TransactionType string

const (
	TransactionTypeBuy         TransactionType = "buy"
	TransactionTypeSell        TransactionType = "sell"
	TransactionTypeTransferIn  TransactionType = "transfer_in"
	TransactionTypeTransferOut TransactionType = "transfer_out"
	TransactionTypeFee         TransactionType = "fee"
	TransactionTypeReward      TransactionType = "reward"
	TransactionTypeOther       TransactionType = "other"
)

// operationAliases maps the operation labels found in wallet exports to a TransactionType
var operationAliases = map[string]TransactionType{
	"buy":          TransactionTypeBuy,
	"sell":         TransactionTypeSell,
	"in":           TransactionTypeTransferIn,
	"receive":      TransactionTypeTransferIn,
	"deposit":      TransactionTypeTransferIn,
	"transfer_in":  TransactionTypeTransferIn,
	"out":          TransactionTypeTransferOut,
	"send":         TransactionTypeTransferOut,
	"withdraw":     TransactionTypeTransferOut,
	"withdrawal":   TransactionTypeTransferOut,
	"transfer_out": TransactionTypeTransferOut,
	"fee":          TransactionTypeFee,
	"fees":         TransactionTypeFee,
	"reward":       TransactionTypeReward,
	"rewards":      TransactionTypeReward,
	"staking":      TransactionTypeReward,
}

// ParseTransactionType maps an export label to a TransactionType.
// Unknown labels are not an error: they map to TransactionTypeOther.
func ParseTransactionType(label string) TransactionType {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.ReplaceAll(key, " ", "_")
	if t, ok := operationAliases[key]; ok {
		return t
	}
	return TransactionTypeOther
}

// IsAcquisition reports whether the operation brings units into the account
func (t TransactionType) IsAcquisition() bool {
	return t == TransactionTypeBuy || t == TransactionTypeTransferIn || t == TransactionTypeReward
}

// IsDisposal reports whether the operation takes units out of the account
func (t TransactionType) IsDisposal() bool {
	return t == TransactionTypeSell || t == TransactionTypeTransferOut || t == TransactionTypeFee
}

// LedgerTransaction is one operation of the exported ledger.
// It is built once by the importer and never mutated afterwards.
type LedgerTransaction struct {
	ID            uuid.UUID
	Timestamp     time.Time
	AssetSymbol   string          // as written in the ledger, not normalized
	Amount        decimal.Decimal // signed as exported
	Fee           decimal.Decimal // in asset units
	Type          TransactionType
	Account       string
	CounterValue  decimal.Decimal // total fiat value at operation date, zero when unknown
	OperationHash string
	DedupHash     string
	Row           int // 1-based line in the source CSV
}

// SignedQuantity returns the holdings delta of the transaction.
// The sign comes from the operation type; "other" keeps the exported sign.
func (t LedgerTransaction) SignedQuantity() decimal.Decimal {
	switch {
	case t.Type.IsAcquisition():
		return t.Amount.Abs()
	case t.Type.IsDisposal():
		return t.Amount.Abs().Neg()
	default:
		return t.Amount
	}
}

// ComputeDedupHash returns the sha1 of the stable fields of the transaction.
// Two exports of the same operation produce the same hash.
func (t LedgerTransaction) ComputeDedupHash() string {
	basis := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		t.Timestamp.UTC().Format(time.RFC3339),
		strings.ToLower(t.AssetSymbol),
		t.Amount.String(),
		t.Fee.String(),
		string(t.Type),
		t.Account,
		t.OperationHash,
	)
	return fmt.Sprintf("%x", sha1.Sum([]byte(basis)))
}

// Validate ensures the transaction carries the fields required downstream
func (t *LedgerTransaction) Validate() error {
	if strings.TrimSpace(t.AssetSymbol) == "" {
		return errors.New("asset symbol is required")
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// DistinctSymbols returns the distinct asset symbols of txs in first-seen order
func DistinctSymbols(txs []LedgerTransaction) []string {
	seen := make(map[string]bool)
	symbols := make([]string, 0)
	for _, tx := range txs {
		if seen[tx.AssetSymbol] {
			continue
		}
		seen[tx.AssetSymbol] = true
		symbols = append(symbols, tx.AssetSymbol)
	}
	return symbols
}

// FirstDay returns the UTC day of the earliest transaction, empty when txs is empty
func FirstDay(txs []LedgerTransaction) Day {
	var first time.Time
	for _, tx := range txs {
		if first.IsZero() || tx.Timestamp.Before(first) {
			first = tx.Timestamp
		}
	}
	if first.IsZero() {
		return ""
	}
	return DayOf(first)
}
