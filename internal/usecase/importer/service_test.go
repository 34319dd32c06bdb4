package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLedgerRepository is a mock implementation of LedgerRepository for testing
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Save(ctx context.Context, txs []domain.LedgerTransaction) (int, error) {
	args := m.Called(ctx, txs)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerRepository) List(ctx context.Context) ([]domain.LedgerTransaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerTransaction), args.Error(1)
}

const ledgerHeader = "Operation Date,Status,Currency Ticker,Operation Type,Operation Amount,Operation Fees,Operation Hash,Account Name,Account xpub,Countervalue Ticker,Countervalue at Operation Date,Countervalue at CSV Export"

func headBlock(n int) []string {
	rows := make([]string, 0, n)
	for i := 0; i < n-1; i++ {
		rows = append(rows, "Ledger Live export,boilerplate")
	}
	return append(rows, ledgerHeader)
}

func tailBlock(n int) []string {
	rows := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, "Total,,,,")
	}
	return rows
}

func writeLedger(t *testing.T, rows ...[]string) string {
	t.Helper()
	var all []string
	for _, block := range rows {
		all = append(all, block...)
	}
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(all, "\n")+"\n"), 0o600))
	return path
}

var dataRows = []string{
	"2024-01-05T10:00:00.000Z,Confirmed,BTC,IN,0.5,0,a1b2c3d4e5f60718293a4b5c6d7e8f90,Main BTC,xpub6Cabc,EUR,20000,25000",
	"2024-01-06T11:30:00.000Z,Confirmed,ETH,IN,2,0,0xdeadbeef,Main ETH,xpub6Cdef,EUR,4000,4400",
	"2024-01-07T12:00:00.000Z,Confirmed,BTC,OUT,-0.1,0.0001,ffee,Main BTC,xpub6Cabc,EUR,4200,5000",
}

func TestImport_TrimsHeadAndTail(t *testing.T) {
	// Setup
	path := writeLedger(t, headBlock(8), dataRows, tailBlock(4))
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, DefaultOptions(), logger)

	// Execute
	result, err := service.Import(context.Background(), path)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)

	first := result.Transactions[0]
	assert.Equal(t, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, "BTC", first.AssetSymbol)
	assert.Equal(t, domain.TransactionTypeTransferIn, first.Type)
	assert.True(t, decimal.RequireFromString("0.5").Equal(first.Amount))
	assert.True(t, decimal.NewFromInt(20000).Equal(first.CounterValue))
	assert.Equal(t, "Main BTC", first.Account)
	assert.Equal(t, 9, first.Row)
	assert.NotEmpty(t, first.DedupHash)

	third := result.Transactions[2]
	assert.Equal(t, domain.TransactionTypeTransferOut, third.Type)
	assert.True(t, decimal.RequireFromString("0.0001").Equal(third.Fee))
}

func TestImport_TrimCountsAreConfigurable(t *testing.T) {
	for _, tc := range []struct{ head, data, tail int }{{0, 1, 0}, {3, 2, 1}, {8, 3, 4}, {10, 3, 0}} {
		// Setup
		path := writeLedger(t, headBlock(max(tc.head, 1))[:tc.head], dataRows[:tc.data], tailBlock(tc.tail))
		logger, _ := test.NewNullLogger()
		service := NewImporterService(nil, Options{HeadSkip: tc.head, TailSkip: tc.tail}, logger)

		// Execute
		result, err := service.Import(context.Background(), path)

		// Assert
		require.NoError(t, err)
		assert.Len(t, result.Transactions, tc.data, "head=%d tail=%d", tc.head, tc.tail)
	}
}

func TestImport_IgnoresBlankRows(t *testing.T) {
	// Setup
	body := []string{dataRows[0], "", ",,,,,,", dataRows[1]}
	path := writeLedger(t, headBlock(8), body, tailBlock(4))
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, DefaultOptions(), logger)

	// Execute
	result, err := service.Import(context.Background(), path)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, 12, result.Transactions[1].Row)
}

func TestImport_NoDataRows(t *testing.T) {
	// Setup
	path := writeLedger(t, headBlock(8), tailBlock(4))
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, DefaultOptions(), logger)

	// Execute
	result, err := service.Import(context.Background(), path)

	// Assert
	assert.Nil(t, result)
	var ierr *domain.ImportError
	require.ErrorAs(t, err, &ierr)
	assert.ErrorIs(t, err, ErrNoDataRows)
}

func TestImport_ShortFile(t *testing.T) {
	// Setup: fewer rows than the boilerplate blocks
	path := writeLedger(t, []string{ledgerHeader, dataRows[0]})
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, DefaultOptions(), logger)

	// Execute
	_, err := service.Import(context.Background(), path)

	// Assert
	assert.ErrorIs(t, err, ErrNoDataRows)
}

func TestImport_MissingOrEmptyFile(t *testing.T) {
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, DefaultOptions(), logger)

	_, err := service.Import(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	var ierr *domain.ImportError
	require.ErrorAs(t, err, &ierr)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = service.Import(context.Background(), empty)
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, err.Error(), "file is empty")
}

func TestImport_MalformedRows(t *testing.T) {
	tests := []struct {
		name  string
		row   string
		field string
	}{
		{"non numeric amount", "2024-01-05T10:00:00Z,Confirmed,BTC,IN,abc,0,h,Main,x,EUR,1,1", FieldAmount},
		{"missing amount", "2024-01-05T10:00:00Z,Confirmed,BTC,IN,,0,h,Main,x,EUR,1,1", FieldAmount},
		{"missing symbol", "2024-01-05T10:00:00Z,Confirmed, ,IN,1,0,h,Main,x,EUR,1,1", FieldSymbol},
		{"bad timestamp", "yesterday,Confirmed,BTC,IN,1,0,h,Main,x,EUR,1,1", FieldDate},
		{"bad fee", "2024-01-05,Confirmed,BTC,IN,1,n/a,h,Main,x,EUR,1,1", FieldFee},
		{"zero timestamp", "0001-01-01,Confirmed,BTC,IN,1,0,h,Main,x,EUR,1,1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			path := writeLedger(t, headBlock(8), []string{dataRows[0], tt.row}, tailBlock(4))
			logger, _ := test.NewNullLogger()
			service := NewImporterService(nil, DefaultOptions(), logger)

			// Execute
			_, err := service.Import(context.Background(), path)

			// Assert
			var ierr *domain.ImportError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, 10, ierr.Row)
			assert.Equal(t, tt.field, ierr.Field)
			assert.Equal(t, path, ierr.Path)
		})
	}
}

func TestImport_HeaderRowLayout(t *testing.T) {
	// Setup: reordered columns named in the last head row
	head := []string{"export v2", "generated by wallet", "date,amount,symbol,type,wallet,value"}
	body := []string{"2024-02-01 08:00:00,1.5,ETH,buy,cold,3000"}
	path := writeLedger(t, head, body)
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, Options{HeadSkip: 3, HeaderRow: 3}, logger)

	// Execute
	result, err := service.Import(context.Background(), path)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	tx := result.Transactions[0]
	assert.Equal(t, "ETH", tx.AssetSymbol)
	assert.Equal(t, domain.TransactionTypeBuy, tx.Type)
	assert.Equal(t, "cold", tx.Account)
	assert.True(t, decimal.NewFromInt(3000).Equal(tx.CounterValue))
	assert.True(t, tx.Fee.IsZero())
}

func TestImport_HeaderRowOutsideHeadBlock(t *testing.T) {
	path := writeLedger(t, headBlock(8), dataRows, tailBlock(4))
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, Options{HeadSkip: 8, TailSkip: 4, HeaderRow: 9}, logger)

	_, err := service.Import(context.Background(), path)

	var ierr *domain.ImportError
	assert.ErrorAs(t, err, &ierr)
}

func TestImport_PersistsLedger(t *testing.T) {
	// Setup
	ctx := context.Background()
	path := writeLedger(t, headBlock(8), dataRows, tailBlock(4))
	repo := new(MockLedgerRepository)
	repo.On("Save", ctx, mock.MatchedBy(func(txs []domain.LedgerTransaction) bool { return len(txs) == 3 })).Return(2, nil)
	logger, _ := test.NewNullLogger()
	service := NewImporterService(repo, DefaultOptions(), logger)

	// Execute
	result, err := service.Import(ctx, path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Persisted)
	assert.Empty(t, result.Warnings)
	repo.AssertExpectations(t)
}

func TestImport_PersistFailureIsAWarning(t *testing.T) {
	// Setup
	ctx := context.Background()
	path := writeLedger(t, headBlock(8), dataRows, tailBlock(4))
	repo := new(MockLedgerRepository)
	repo.On("Save", ctx, mock.Anything).Return(0, errors.New("database is locked"))
	logger, hook := test.NewNullLogger()
	service := NewImporterService(repo, DefaultOptions(), logger)

	// Execute
	result, err := service.Import(ctx, path)

	// Assert
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 3)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "database is locked")
	assert.Equal(t, "ledger not persisted", hook.LastEntry().Message)
}

func TestImport_WritesSanitizedCopy(t *testing.T) {
	// Setup
	path := writeLedger(t, headBlock(8), dataRows, tailBlock(4))
	clean := filepath.Join(t.TempDir(), "audit", "ledger_clean.csv")
	opts := DefaultOptions()
	opts.CleanOutput = clean
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, opts, logger)

	// Execute
	_, err := service.Import(context.Background(), path)

	// Assert
	require.NoError(t, err)
	raw, err := os.ReadFile(clean)
	require.NoError(t, err)
	content := string(raw)
	assert.True(t, strings.HasPrefix(content, "date,symbol,type,amount,fee,countervalue,operation_hash,dedup_hash\n"))
	assert.Contains(t, content, "a1b2c3d4…8f90")
	assert.Contains(t, content, "0xdeadbeef")
	assert.NotContains(t, content, "xpub")
	assert.NotContains(t, content, "Main BTC")
	assert.Len(t, strings.Split(strings.TrimSpace(content), "\n"), 4)
}

func TestTruncateHash(t *testing.T) {
	assert.Equal(t, "abcdefgh…wxyz", TruncateHash("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "1234567890123", TruncateHash("1234567890123"))
	assert.Equal(t, "12345678…1234", TruncateHash("12345678901234"))
	assert.Equal(t, "", TruncateHash(""))
}

func TestImport_MultilineQuotedCellIsRejected(t *testing.T) {
	// Setup
	row := "2024-01-05T10:00:00Z,Confirmed,BTC,IN,1,0,h,\"Main\nBTC\",x,EUR,1,1"
	path := writeLedger(t, headBlock(8), []string{dataRows[0], row}, tailBlock(4))
	logger, _ := test.NewNullLogger()
	service := NewImporterService(nil, DefaultOptions(), logger)

	// Execute
	_, err := service.Import(context.Background(), path)

	// Assert
	var ierr *domain.ImportError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 11, ierr.Row)
}
