package sqlstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
)

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB) domain.LedgerRepository {
	return &ledgerRepository{db: db}
}

// Save inserts the transactions in a single database transaction, ignoring known dedup hashes
func (r *ledgerRepository) Save(ctx context.Context, txs []domain.LedgerTransaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO ledger_transactions
			(id, occurred_at, asset_symbol, amount, fee, transaction_type, account, countervalue, operation_hash, dedup_hash, source_row)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (dedup_hash) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		dedup := tx.DedupHash
		if dedup == "" {
			dedup = tx.ComputeDedupHash()
		}
		result, err := stmt.ExecContext(ctx,
			rowID(tx.ID),
			formatTime(tx.Timestamp),
			tx.AssetSymbol,
			tx.Amount.String(),
			tx.Fee.String(),
			string(tx.Type),
			tx.Account,
			tx.CounterValue.String(),
			tx.OperationHash,
			dedup,
			tx.Row,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert ledger transaction (row %d): %w", tx.Row, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		inserted += int(affected)
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit ledger transactions: %w", err)
	}

	return inserted, nil
}

// List retrieves the stored transactions ordered by timestamp
func (r *ledgerRepository) List(ctx context.Context) ([]domain.LedgerTransaction, error) {
	query := `
		SELECT id, occurred_at, asset_symbol, amount, fee, transaction_type, account, countervalue, operation_hash, dedup_hash, source_row
		FROM ledger_transactions
		ORDER BY occurred_at ASC, source_row ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]domain.LedgerTransaction, 0)
	for rows.Next() {
		var tx domain.LedgerTransaction
		var occurredAt, amountStr, feeStr, txType, counterValueStr string

		if err := rows.Scan(
			&tx.ID,
			&occurredAt,
			&tx.AssetSymbol,
			&amountStr,
			&feeStr,
			&txType,
			&tx.Account,
			&counterValueStr,
			&tx.OperationHash,
			&tx.DedupHash,
			&tx.Row,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}

		if tx.Timestamp, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("failed to parse occurred_at: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		if tx.Fee, err = decimal.NewFromString(feeStr); err != nil {
			return nil, fmt.Errorf("failed to parse fee: %w", err)
		}
		if tx.CounterValue, err = decimal.NewFromString(counterValueStr); err != nil {
			return nil, fmt.Errorf("failed to parse countervalue: %w", err)
		}
		tx.Type = domain.TransactionType(txType)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger transactions: %w", err)
	}

	return txs, nil
}
