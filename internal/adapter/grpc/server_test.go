package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/query"
	"github.com/simaogato/pricesnap/internal/usecase/report"
)

// MockReportRepository is a mock implementation of ReportRepository for testing
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Replace(ctx context.Context, report *domain.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) Get(ctx context.Context, date domain.Day, account string) (*domain.Report, error) {
	args := m.Called(ctx, date, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Report), args.Error(1)
}

// MockSnapshotRepository is a mock implementation of SnapshotRepository for testing
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) ExistingDays(ctx context.Context, providerID string, from, to domain.Day) (map[domain.Day]bool, error) {
	args := m.Called(ctx, providerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.Day]bool), args.Error(1)
}

func (m *MockSnapshotRepository) Upsert(ctx context.Context, snapshot *domain.PriceSnapshot, policy domain.ConflictPolicy) (bool, error) {
	args := m.Called(ctx, snapshot, policy)
	return args.Bool(0), args.Error(1)
}

func (m *MockSnapshotRepository) LatestOnOrBefore(ctx context.Context, providerID string, day domain.Day) (*domain.PriceSnapshot, error) {
	args := m.Called(ctx, providerID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) List(ctx context.Context, providerID string, from, to domain.Day) ([]*domain.PriceSnapshot, error) {
	args := m.Called(ctx, providerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PriceSnapshot), args.Error(1)
}

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

const testToken = "test-token-123"

// startServer serves the report service on an in-memory listener and returns a connected client
func startServer(t *testing.T, reportRepo *MockReportRepository, snapshotRepo *MockSnapshotRepository) *ReportServiceClient {
	t.Helper()
	return serveQueries(t, query.NewQueryService(reportRepo, snapshotRepo))
}

func serveQueries(t *testing.T, queries *query.QueryService) *ReportServiceClient {
	t.Helper()
	logger, _ := test.NewNullLogger()
	listener := bufconn.Listen(1 << 20)

	server := NewGRPCServer(NewServer(queries), testToken, logger)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewReportServiceClient(conn)
}

func authorized() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", testToken)
}

func request(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return req
}

func TestServer_GetReport(t *testing.T) {
	// Setup
	reportRepo := new(MockReportRepository)
	reportRepo.On("Get", mock.Anything, domain.Day("2024-03-15"), "cold").Return(&domain.Report{
		ReportDate:  "2024-03-15",
		GeneratedAt: time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
		Currency:    "EUR",
		Lines: []domain.ReportLine{{
			Account:        "cold",
			AssetSymbol:    "BTC",
			ProviderID:     "bitcoin",
			Holdings:       decimal.RequireFromString("0.5"),
			Price:          decimal.NewNullDecimal(decimal.NewFromInt(50000)),
			PriceDay:       "2024-03-15",
			MarketValue:    decimal.NewNullDecimal(decimal.NewFromInt(25000)),
			CostBasis:      decimal.NewFromInt(20000),
			UnrealizedGain: decimal.NewNullDecimal(decimal.NewFromInt(5000)),
			Status:         domain.ValuationPriced,
		}},
	}, nil)
	client := startServer(t, reportRepo, new(MockSnapshotRepository))

	// Execute
	resp, err := client.GetReport(authorized(), request(t, map[string]interface{}{"date": "2024-03-15", "account": "cold"}))

	// Assert
	require.NoError(t, err)
	fields := resp.GetFields()
	assert.Equal(t, "2024-03-15", fields["report_date"].GetStringValue())
	lines := fields["lines"].GetListValue().GetValues()
	require.Len(t, lines, 1)
	line := lines[0].GetStructValue().GetFields()
	assert.Equal(t, "25000", line["market_value"].GetStringValue())
	assert.Equal(t, "priced", line["status"].GetStringValue())
	assert.Equal(t, "5000", fields["totals"].GetStructValue().GetFields()["unrealized_gain"].GetStringValue())
	reportRepo.AssertExpectations(t)
}

func TestServer_ErrorCodes(t *testing.T) {
	// Setup
	reportRepo := new(MockReportRepository)
	reportRepo.On("Get", mock.Anything, domain.Day("2024-01-01"), "").Return(nil, domain.ErrNotFound)
	client := startServer(t, reportRepo, new(MockSnapshotRepository))

	tests := []struct {
		name string
		ctx  context.Context
		req  map[string]interface{}
		code codes.Code
	}{
		{"Missing Token", context.Background(), map[string]interface{}{"date": "2024-01-01"}, codes.Unauthenticated},
		{"Invalid Date", authorized(), map[string]interface{}{"date": "01/01/2024"}, codes.InvalidArgument},
		{"Unknown Report", authorized(), map[string]interface{}{"date": "2024-01-01"}, codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Execute
			_, err := client.GetReport(tt.ctx, request(t, tt.req))

			// Assert
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestServer_ListSnapshots(t *testing.T) {
	// Setup
	snapshotRepo := new(MockSnapshotRepository)
	captured := time.Date(2024, 3, 14, 23, 0, 0, 0, time.UTC)
	snapshotRepo.On("List", mock.Anything, "bitcoin", domain.Day("2024-03-01"), domain.Day("")).Return([]*domain.PriceSnapshot{
		domain.NewPriceSnapshot("bitcoin", "2024-03-14", decimal.RequireFromString("61000.12"), "eur", domain.SnapshotSourceHistory, captured),
		domain.NewPriceSnapshot("bitcoin", "2024-03-15", decimal.NewFromInt(62000), "eur", domain.SnapshotSourceSpot, captured.Add(10*time.Hour)),
	}, nil)
	client := startServer(t, new(MockReportRepository), snapshotRepo)

	// Execute
	resp, err := client.ListSnapshots(authorized(), request(t, map[string]interface{}{"provider_id": "bitcoin", "from": "2024-03-01"}))

	// Assert
	require.NoError(t, err)
	items := resp.GetFields()["snapshots"].GetListValue().GetValues()
	require.Len(t, items, 2)
	assert.Equal(t, "61000.12", items[0].GetStructValue().GetFields()["price"].GetStringValue())
	assert.Equal(t, "spot", items[1].GetStructValue().GetFields()["source"].GetStringValue())
	snapshotRepo.AssertExpectations(t)
}

func TestServer_GetSeries(t *testing.T) {
	// Setup
	logger, _ := test.NewNullLogger()
	ledger := new(MockLedgerRepository)
	ledger.On("List", mock.Anything).Return([]domain.LedgerTransaction{{
		Timestamp:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		AssetSymbol:  "BTC",
		Account:      "main",
		Amount:       decimal.NewFromInt(1),
		Type:         domain.TransactionTypeBuy,
		CounterValue: decimal.NewFromInt(40000),
	}}, nil)
	snapshotRepo := new(MockSnapshotRepository)
	snapshotRepo.On("LatestOnOrBefore", mock.Anything, "bitcoin", domain.Day("2024-02-29")).Return(nil, domain.ErrNotFound)
	snapshotRepo.On("List", mock.Anything, "bitcoin", domain.Day("2024-03-01"), domain.Day("2024-03-02")).Return([]*domain.PriceSnapshot{
		domain.NewPriceSnapshot("bitcoin", "2024-03-02", decimal.NewFromInt(50000), "eur", domain.SnapshotSourceHistory, time.Date(2024, 3, 2, 23, 0, 0, 0, time.UTC)),
	}, nil)
	reporter := report.NewReportService(snapshotRepo, nil, report.Options{Currency: "EUR"}, logger)
	queries := query.NewQueryService(new(MockReportRepository), snapshotRepo).
		WithSeries(ledger, domain.CoinMapping{"btc": "bitcoin"}, reporter)
	client := serveQueries(t, queries)

	// Execute
	resp, err := client.GetSeries(authorized(), request(t, map[string]interface{}{"from": "2024-03-01", "to": "2024-03-02"}))

	// Assert
	require.NoError(t, err)
	days := resp.GetFields()["days"].GetListValue().GetValues()
	require.Len(t, days, 2)

	first := days[0].GetStructValue().GetFields()
	assert.Equal(t, "2024-03-01", first["day"].GetStringValue())
	assert.Equal(t, float64(1), first["totals"].GetStructValue().GetFields()["unavailable"].GetNumberValue())
	point := first["points"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	assert.Equal(t, "no_price", point["status"].GetStringValue())
	assert.Equal(t, "40000", point["bought"].GetStringValue())

	second := days[1].GetStructValue().GetFields()["totals"].GetStructValue().GetFields()
	assert.Equal(t, "50000", second["market_value"].GetStringValue())
	assert.Equal(t, "10000", second["gain"].GetStringValue())
	snapshotRepo.AssertExpectations(t)
}

func TestServer_GetSeriesUnavailable(t *testing.T) {
	client := startServer(t, new(MockReportRepository), new(MockSnapshotRepository))

	_, err := client.GetSeries(authorized(), request(t, map[string]interface{}{}))

	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.Equal(t, codes.Internal, status.Code(mapError(assert.AnError)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(mapError(context.DeadlineExceeded)))
}
