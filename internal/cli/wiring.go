package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/simaogato/pricesnap/internal/adapter/coingecko"
	"github.com/simaogato/pricesnap/internal/adapter/repository/sqlstore"
	"github.com/simaogato/pricesnap/internal/adapter/secrets"
	"github.com/simaogato/pricesnap/internal/config"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/logging"
	"github.com/simaogato/pricesnap/internal/usecase/backfill"
	"github.com/simaogato/pricesnap/internal/usecase/importer"
	"github.com/simaogato/pricesnap/internal/usecase/mapper"
	"github.com/simaogato/pricesnap/internal/usecase/pacing"
	"github.com/simaogato/pricesnap/internal/usecase/pipeline"
	"github.com/simaogato/pricesnap/internal/usecase/pricefetch"
	"github.com/simaogato/pricesnap/internal/usecase/report"
)

// ErrNoLedger is returned when neither a ledger export nor stored transactions are available
var ErrNoLedger = errors.New("no ledger transactions: pass -ledger, set LEDGER_CSV or run import first")

// app holds the configuration and the long lived resources of one command
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *sqlstore.DB
	closers []io.Closer
}

// setup loads the configuration, builds the logger and opens the migrated store
func setup() (*app, error) {
	cfg, err := config.Load(config.LoadOptions{EnvFile: *envFile, ConfigFile: *configFile})
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, &domain.ConfigError{Key: "LOG_LEVEL", Err: err}
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if err := cfg.Database.EnsureSQLiteDir(); err != nil {
		a.Close()
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	db, err := sqlstore.NewDB(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db)

	if err := sqlstore.Migrate(db, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the store and the log file, most recent first
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func (a *app) importer() (*importer.ImporterService, error) {
	columns, err := importer.ParseColumnLayout(a.cfg.Ledger.Columns)
	if err != nil {
		return nil, &domain.ConfigError{Key: "LEDGER_COLUMNS", Err: err}
	}
	opts := importer.Options{
		HeadSkip:    a.cfg.Ledger.HeadSkip,
		TailSkip:    a.cfg.Ledger.TailSkip,
		HeaderRow:   a.cfg.Ledger.HeaderRow,
		Columns:     columns,
		CleanOutput: a.cfg.Ledger.CleanOutput,
	}
	return importer.NewImporterService(sqlstore.NewLedgerRepository(a.db), opts, a.logger.WithField("stage", domain.StageImport)), nil
}

func (a *app) mapper() *mapper.MapperService {
	return mapper.NewMapperService(a.cfg.Coins, a.logger.WithField("stage", domain.StageMapping))
}

// provider builds the price provider client, resolving the API key from Secrets Manager when configured
func (a *app) provider(ctx context.Context) (*coingecko.Client, error) {
	p := a.cfg.Provider
	apiKey := p.APIKey
	if apiKey == "" && p.APIKeySecretID != "" {
		manager, err := secrets.NewAWSSecretManager(p.AWSRegion)
		if err != nil {
			return nil, &domain.ConfigError{Key: "AWS_REGION", Err: err}
		}
		if apiKey, err = manager.ProviderAPIKey(ctx, p.APIKeySecretID); err != nil {
			return nil, &domain.ConfigError{Key: "PROVIDER_API_KEY_SECRET_ID", Err: err}
		}
	}

	return coingecko.NewClient(coingecko.Config{
		BaseURL:      p.BaseURL,
		APIKey:       apiKey,
		APIKeyHeader: p.APIKeyHeader,
		Timeout:      p.Timeout,
	}, a.logger.WithField("component", "coingecko")), nil
}

func (a *app) pacer() *pacing.Pacer {
	p := a.cfg.Provider
	return pacing.NewPacer(
		pacing.NewRateLimiter(p.MinInterval, p.Burst),
		pacing.Policy{MaxRetries: uint64(p.MaxRetries), Backoff: p.Backoff, MaxBackoff: 30 * p.Backoff},
		a.logger.WithField("component", "pacer"),
	)
}

func (a *app) backfill(provider domain.PriceProvider, pacer *pacing.Pacer) *backfill.BackfillService {
	return backfill.NewBackfillService(provider, sqlstore.NewSnapshotRepository(a.db), pacer, backfill.Options{
		WindowDays: a.cfg.BackfillDays,
		VsCurrency: a.cfg.Provider.VsCurrency,
	}, a.logger.WithField("stage", domain.StageBackfill))
}

func (a *app) fetcher(provider domain.PriceProvider, pacer *pacing.Pacer) *pricefetch.FetcherService {
	return pricefetch.NewFetcherService(provider, sqlstore.NewSnapshotRepository(a.db), pacer, pricefetch.Options{
		VsCurrency: a.cfg.Provider.VsCurrency,
		BatchSize:  a.cfg.Provider.BatchSize,
		Conflict:   a.cfg.SnapshotConflict,
	}, a.logger.WithField("stage", domain.StageFetch))
}

func (a *app) reporter() *report.ReportService {
	return report.NewReportService(
		sqlstore.NewSnapshotRepository(a.db),
		sqlstore.NewReportRepository(a.db),
		report.Options{Currency: a.cfg.Report.Currency, ReportDir: a.cfg.Report.Dir},
		a.logger.WithField("stage", domain.StageReport),
	)
}

// pipeline wires every stage over the configured store and provider
func (a *app) pipeline(ctx context.Context) (*pipeline.PipelineService, error) {
	imp, err := a.importer()
	if err != nil {
		return nil, err
	}
	provider, err := a.provider(ctx)
	if err != nil {
		return nil, err
	}
	pacer := a.pacer()
	return pipeline.NewPipelineService(
		imp,
		a.mapper(),
		a.backfill(provider, pacer),
		a.fetcher(provider, pacer),
		a.reporter(),
		sqlstore.NewRunRepository(a.db),
		a.logger.WithField("component", "pipeline"),
	), nil
}

// ledger returns the transactions of the export at path, or the stored ones when path is empty
func (a *app) ledger(ctx context.Context, path string) ([]domain.LedgerTransaction, error) {
	if path = strings.TrimSpace(path); path == "" {
		path = a.cfg.Ledger.Path
	}
	if path != "" {
		imp, err := a.importer()
		if err != nil {
			return nil, err
		}
		result, err := imp.Import(ctx, path)
		if err != nil {
			return nil, err
		}
		return result.Transactions, nil
	}

	txs, err := sqlstore.NewLedgerRepository(a.db).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNoLedger
	}
	return txs, nil
}

// mapping loads the ledger and partitions its symbols
func (a *app) mapping(ctx context.Context, path string) ([]domain.LedgerTransaction, *mapper.Mapping, error) {
	if err := a.cfg.RequireCoins(); err != nil {
		return nil, nil, err
	}
	txs, err := a.ledger(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	mapping, outcome := a.mapper().MapTransactions(txs)
	for _, w := range outcome.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	return txs, mapping, nil
}
