package backfill

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/pacing"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPriceProvider is a mock implementation of PriceProvider for testing
type MockPriceProvider struct {
	mock.Mock
}

func (m *MockPriceProvider) SpotPrices(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, ids, vsCurrency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MockPriceProvider) PriceRange(ctx context.Context, id, vsCurrency string, from, to time.Time) ([]domain.PricePoint, error) {
	args := m.Called(ctx, id, vsCurrency, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PricePoint), args.Error(1)
}

// memSnapshotRepository keeps snapshots in a map keyed by (provider id, day)
type memSnapshotRepository struct {
	rows    map[string]map[domain.Day]*domain.PriceSnapshot
	failFor string
}

func newMemSnapshotRepository() *memSnapshotRepository {
	return &memSnapshotRepository{rows: make(map[string]map[domain.Day]*domain.PriceSnapshot)}
}

func (r *memSnapshotRepository) ExistingDays(ctx context.Context, providerID string, from, to domain.Day) (map[domain.Day]bool, error) {
	if providerID == r.failFor {
		return nil, errors.New("store unavailable")
	}
	days := make(map[domain.Day]bool)
	for day := range r.rows[providerID] {
		if !day.Before(from) && !day.After(to) {
			days[day] = true
		}
	}
	return days, nil
}

func (r *memSnapshotRepository) Upsert(ctx context.Context, s *domain.PriceSnapshot, policy domain.ConflictPolicy) (bool, error) {
	if r.rows[s.ProviderID] == nil {
		r.rows[s.ProviderID] = make(map[domain.Day]*domain.PriceSnapshot)
	}
	if _, exists := r.rows[s.ProviderID][s.Day]; exists {
		return false, nil
	}
	r.rows[s.ProviderID][s.Day] = s
	return true, nil
}

func (r *memSnapshotRepository) LatestOnOrBefore(ctx context.Context, providerID string, day domain.Day) (*domain.PriceSnapshot, error) {
	return nil, domain.ErrNotFound
}

func (r *memSnapshotRepository) List(ctx context.Context, providerID string, from, to domain.Day) ([]*domain.PriceSnapshot, error) {
	out := make([]*domain.PriceSnapshot, 0)
	for _, s := range r.rows[providerID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (r *memSnapshotRepository) seed(providerID string, days ...domain.Day) {
	for _, day := range days {
		_, _ = r.Upsert(context.Background(), domain.NewPriceSnapshot(providerID, day, decimal.NewFromInt(1), "eur", domain.SnapshotSourceHistory, day.Start()), domain.ConflictSkip)
	}
}

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func newService(provider domain.PriceProvider, repo domain.SnapshotRepository, windowDays int, logger logrus.FieldLogger) *BackfillService {
	pacer := pacing.NewPacer(pacing.NewRateLimiter(0, 1), pacing.Policy{MaxRetries: 1, Backoff: time.Millisecond}, logger)
	service := NewBackfillService(provider, repo, pacer, Options{WindowDays: windowDays, VsCurrency: "eur"}, logger)
	service.Now = func() time.Time { return fixedNow }
	return service
}

// dailyPoints returns two samples per day between first and last, the later one priced at base+day index
func dailyPoints(first, last domain.Day, base int64) []domain.PricePoint {
	var points []domain.PricePoint
	for i, day := range domain.DayRange(first, last) {
		points = append(points,
			domain.PricePoint{Time: day.Start().Add(time.Hour), Price: decimal.NewFromInt(-1)},
			domain.PricePoint{Time: day.Start().Add(23 * time.Hour), Price: decimal.NewFromInt(base + int64(i))},
		)
	}
	return points
}

func TestWindow_EndsYesterday(t *testing.T) {
	logger, _ := test.NewNullLogger()
	service := newService(nil, nil, 30, logger)

	first, last := service.Window()

	assert.Equal(t, domain.Day("2024-03-14"), last)
	assert.Equal(t, domain.Day("2024-02-14"), first)
	assert.Len(t, domain.DayRange(first, last), 30)
}

func TestBackfill_RequestsOnlyTheMissingSpan(t *testing.T) {
	// Setup: window 2024-03-10..2024-03-14, bitcoin has the 10th and the 14th
	ctx := context.Background()
	provider := new(MockPriceProvider)
	repo := newMemSnapshotRepository()
	repo.seed("bitcoin", "2024-03-10", "2024-03-14")
	logger, _ := test.NewNullLogger()

	from := domain.Day("2024-03-11").Start()
	to := domain.Day("2024-03-13").End()
	provider.On("PriceRange", mock.Anything, "bitcoin", "eur", from, to).
		Return(dailyPoints("2024-03-11", "2024-03-13", 100), nil).Once()

	service := newService(provider, repo, 5, logger)

	// Execute
	outcome := service.Backfill(ctx, []string{"bitcoin"})

	// Assert
	assert.Equal(t, domain.StageSuccess, outcome.Status)
	provider.AssertExpectations(t)

	stored, _ := repo.List(ctx, "bitcoin", "", "")
	require.Len(t, stored, 5)
	assert.True(t, decimal.NewFromInt(100).Equal(stored[1].Price), "last point of the day wins")
	assert.True(t, decimal.NewFromInt(102).Equal(stored[3].Price))
	assert.Equal(t, domain.SnapshotSourceHistory, stored[2].Source)
}

func TestBackfill_CoveredAssetsMakeNoRequest(t *testing.T) {
	// Setup
	provider := new(MockPriceProvider)
	repo := newMemSnapshotRepository()
	repo.seed("bitcoin", domain.DayRange("2024-03-10", "2024-03-14")...)
	logger, _ := test.NewNullLogger()
	service := newService(provider, repo, 5, logger)

	// Execute
	outcome := service.Backfill(context.Background(), []string{"bitcoin"})

	// Assert
	assert.Equal(t, domain.StageSuccess, outcome.Status)
	provider.AssertNotCalled(t, "PriceRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBackfill_IsIdempotent(t *testing.T) {
	// Setup
	ctx := context.Background()
	provider := new(MockPriceProvider)
	repo := newMemSnapshotRepository()
	logger, _ := test.NewNullLogger()
	provider.On("PriceRange", mock.Anything, "ethereum", "eur", mock.Anything, mock.Anything).
		Return(dailyPoints("2024-03-10", "2024-03-14", 3000), nil).Once()
	service := newService(provider, repo, 5, logger)

	// Execute
	service.Backfill(ctx, []string{"ethereum"})
	firstRun, _ := repo.List(ctx, "ethereum", "", "")
	outcome := service.Backfill(ctx, []string{"ethereum"})
	secondRun, _ := repo.List(ctx, "ethereum", "", "")

	// Assert
	assert.Equal(t, domain.StageSuccess, outcome.Status)
	assert.Equal(t, firstRun, secondRun)
	assert.Len(t, secondRun, 5)
	provider.AssertExpectations(t)
}

func TestBackfill_NeverWritesToday(t *testing.T) {
	// Setup: the provider returns a point for today as well
	ctx := context.Background()
	provider := new(MockPriceProvider)
	repo := newMemSnapshotRepository()
	logger, _ := test.NewNullLogger()
	provider.On("PriceRange", mock.Anything, "bitcoin", "eur", mock.Anything, mock.Anything).
		Return(dailyPoints("2024-03-10", "2024-03-15", 1), nil)
	service := newService(provider, repo, 5, logger)

	// Execute
	service.Backfill(ctx, []string{"bitcoin"})

	// Assert
	existing, _ := repo.ExistingDays(ctx, "bitcoin", "2024-03-15", "2024-03-15")
	assert.Empty(t, existing)
}

func TestBackfill_FailuresAreWarnings(t *testing.T) {
	// Setup
	ctx := context.Background()
	provider := new(MockPriceProvider)
	repo := newMemSnapshotRepository()
	repo.failFor = "broken-store"
	logger, _ := test.NewNullLogger()

	notFound := &domain.ProviderError{ProviderID: "nope", StatusCode: 404, Err: errors.New("coin not found")}
	provider.On("PriceRange", mock.Anything, "nope", "eur", mock.Anything, mock.Anything).Return(nil, notFound).Once()
	// one day missing from the response
	provider.On("PriceRange", mock.Anything, "bitcoin", "eur", mock.Anything, mock.Anything).
		Return(dailyPoints("2024-03-10", "2024-03-13", 1), nil).Once()

	service := newService(provider, repo, 5, logger)

	// Execute
	outcome := service.Backfill(ctx, []string{"bitcoin", "broken-store", "nope"})

	// Assert
	assert.Equal(t, domain.StageDegraded, outcome.Status)
	assert.NoError(t, outcome.Err)
	require.Len(t, outcome.Warnings, 3)
	assert.Equal(t, domain.Warning{Stage: domain.StageBackfill, ProviderID: "bitcoin", Day: "2024-03-14", Message: "no price point returned"}, outcome.Warnings[0])
	assert.Equal(t, "broken-store", outcome.Warnings[1].ProviderID)
	assert.Equal(t, "nope", outcome.Warnings[2].ProviderID)
	assert.Contains(t, outcome.Warnings[2].Message, "coin not found")

	stored, _ := repo.List(ctx, "bitcoin", "", "")
	assert.Len(t, stored, 4)
	provider.AssertExpectations(t)
}
