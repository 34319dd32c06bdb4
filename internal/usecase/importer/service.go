package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/sirupsen/logrus"
)

// Default trimming observed on Ledger Live exports
const (
	DefaultHeadSkip = 8
	DefaultTailSkip = 4
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	domain.DayLayout,
}

// ErrNoDataRows is wrapped in the ImportError returned for an empty ledger
var ErrNoDataRows = errors.New("no data rows after trimming")

// Options configures how a ledger export is read
type Options struct {
	HeadSkip    int
	TailSkip    int
	HeaderRow   int          // 1-based row inside the head block naming the columns, 0 for positional
	Columns     ColumnLayout // positional layout, DefaultColumnLayout when nil
	CleanOutput string       // optional path of the sanitized audit CSV
}

// DefaultOptions returns the options matching a stock Ledger Live export
func DefaultOptions() Options {
	return Options{
		HeadSkip: DefaultHeadSkip,
		TailSkip: DefaultTailSkip,
		Columns:  DefaultColumnLayout(),
	}
}

// ImportResult is what one import produced
type ImportResult struct {
	Transactions []domain.LedgerTransaction
	Persisted    int // rows newly inserted in the ledger store
	Warnings     []domain.Warning
}

// ImporterService turns a ledger export into typed transactions
type ImporterService struct {
	LedgerRepo domain.LedgerRepository // optional, nil disables persistence
	Options    Options
	Logger     logrus.FieldLogger
}

// NewImporterService creates a new ImporterService instance
func NewImporterService(ledgerRepo domain.LedgerRepository, opts Options, logger logrus.FieldLogger) *ImporterService {
	if opts.Columns == nil {
		opts.Columns = DefaultColumnLayout()
	}
	return &ImporterService{
		LedgerRepo: ledgerRepo,
		Options:    opts,
		Logger:     logger,
	}
}

// Import reads the export at path.
// Any failure to produce transactions is returned as a *domain.ImportError.
//
// HeadSkip and TailSkip count physical lines, and each remaining line is
// parsed as one CSV record. Quoted cells spanning several lines are not
// supported: they shift the trimming and split the record.
func (s *ImporterService) Import(ctx context.Context, path string) (*ImportResult, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, &domain.ImportError{Path: path, Err: err}
	}

	layout := s.Options.Columns
	if s.Options.HeaderRow > 0 {
		if s.Options.HeaderRow > s.Options.HeadSkip || s.Options.HeaderRow > len(lines) {
			return nil, &domain.ImportError{Path: path, Row: s.Options.HeaderRow, Err: errors.New("header row is outside the discarded head block")}
		}
		header, err := parseRecord(lines[s.Options.HeaderRow-1])
		if err != nil {
			return nil, &domain.ImportError{Path: path, Row: s.Options.HeaderRow, Err: err}
		}
		if layout, err = LayoutFromHeader(header); err != nil {
			return nil, &domain.ImportError{Path: path, Row: s.Options.HeaderRow, Err: err}
		}
	}

	// Discard boilerplate rows, then drop the blank lines left in between
	first, last := s.Options.HeadSkip, len(lines)-s.Options.TailSkip
	txs := make([]domain.LedgerTransaction, 0)
	for i := first; i < last; i++ {
		if isBlank(lines[i]) {
			continue
		}
		row := i + 1
		record, err := parseRecord(lines[i])
		if err != nil {
			return nil, &domain.ImportError{Path: path, Row: row, Err: err}
		}
		tx, err := toTransaction(record, layout, row)
		if err != nil {
			var ierr *domain.ImportError
			if errors.As(err, &ierr) {
				ierr.Path = path
			}
			return nil, err
		}
		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		return nil, &domain.ImportError{Path: path, Err: ErrNoDataRows}
	}

	result := &ImportResult{Transactions: txs}
	s.Logger.WithFields(logrus.Fields{"path": path, "transactions": len(txs)}).Info("ledger imported")

	if s.Options.CleanOutput != "" {
		if err := WriteSanitized(s.Options.CleanOutput, txs); err != nil {
			result.Warnings = append(result.Warnings, domain.Warning{Stage: domain.StageImport, Message: fmt.Sprintf("failed to write sanitized copy: %v", err)})
			s.Logger.WithError(err).Warn("sanitized ledger copy not written")
		}
	}

	if s.LedgerRepo != nil {
		inserted, err := s.LedgerRepo.Save(ctx, txs)
		if err != nil {
			result.Warnings = append(result.Warnings, domain.Warning{Stage: domain.StageImport, Message: fmt.Sprintf("failed to persist ledger: %v", err)})
			s.Logger.WithError(err).Warn("ledger not persisted")
		} else {
			result.Persisted = inserted
			s.Logger.WithField("inserted", inserted).Debug("ledger persisted")
		}
	}

	return result, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, errors.New("file is empty")
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		lines[0] = strings.TrimPrefix(lines[0], "\ufeff")
	}
	return lines, nil
}

func parseRecord(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	record, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv row: %w", err)
	}
	return record, nil
}

// isBlank reports whether a line holds no value, including a row of empty cells
func isBlank(line string) bool {
	return strings.Trim(line, " \t,;\"") == ""
}

func toTransaction(record []string, layout ColumnLayout, row int) (domain.LedgerTransaction, error) {
	fieldErr := func(field string, err error) error {
		return &domain.ImportError{Row: row, Field: field, Err: err}
	}

	symbol := layout.cell(record, FieldSymbol)
	if symbol == "" {
		return domain.LedgerTransaction{}, fieldErr(FieldSymbol, errors.New("missing symbol"))
	}

	ts, err := parseTimestamp(layout.cell(record, FieldDate))
	if err != nil {
		return domain.LedgerTransaction{}, fieldErr(FieldDate, err)
	}

	rawAmount := layout.cell(record, FieldAmount)
	if rawAmount == "" {
		return domain.LedgerTransaction{}, fieldErr(FieldAmount, errors.New("missing amount"))
	}
	amount, err := parseDecimal(rawAmount)
	if err != nil {
		return domain.LedgerTransaction{}, fieldErr(FieldAmount, err)
	}

	fee, err := parseOptionalDecimal(layout.cell(record, FieldFee))
	if err != nil {
		return domain.LedgerTransaction{}, fieldErr(FieldFee, err)
	}

	counterValue, err := parseOptionalDecimal(layout.cell(record, FieldCounterValue))
	if err != nil {
		return domain.LedgerTransaction{}, fieldErr(FieldCounterValue, err)
	}

	tx := domain.LedgerTransaction{
		ID:            uuid.New(),
		Timestamp:     ts,
		AssetSymbol:   symbol,
		Amount:        amount,
		Fee:           fee,
		Type:          domain.ParseTransactionType(layout.cell(record, FieldType)),
		Account:       layout.cell(record, FieldAccount),
		CounterValue:  counterValue.Abs(),
		OperationHash: layout.cell(record, FieldHash),
		Row:           row,
	}
	if err := tx.Validate(); err != nil {
		return domain.LedgerTransaction{}, &domain.ImportError{Row: row, Err: err}
	}
	tx.DedupHash = tx.ComputeDedupHash()
	return tx, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, " ", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", raw)
	}
	return d, nil
}

func parseOptionalDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(raw)
}
