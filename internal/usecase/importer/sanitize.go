package importer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/simaogato/pricesnap/internal/domain"
)

const (
	hashKeepHead = 8
	hashKeepTail = 4
)

// sanitizedHeader omits account names and xpubs: the audit copy must not identify wallets
var sanitizedHeader = []string{"date", "symbol", "type", "amount", "fee", "countervalue", "operation_hash", "dedup_hash"}

// TruncateHash shortens an operation hash to first8…last4
func TruncateHash(hash string) string {
	runes := []rune(hash)
	if len(runes) <= hashKeepHead+hashKeepTail+1 {
		return hash
	}
	return string(runes[:hashKeepHead]) + "…" + string(runes[len(runes)-hashKeepTail:])
}

// WriteSanitized writes the normalized audit copy of txs to path
func WriteSanitized(path string, txs []domain.LedgerTransaction) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create sanitized ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(sanitizedHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		record := []string{
			tx.Timestamp.UTC().Format(time.RFC3339),
			tx.AssetSymbol,
			string(tx.Type),
			tx.Amount.String(),
			tx.Fee.String(),
			tx.CounterValue.String(),
			TruncateHash(tx.OperationHash),
			tx.DedupHash,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write sanitized ledger: %w", err)
	}
	return f.Close()
}
