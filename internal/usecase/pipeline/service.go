package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/backfill"
	"github.com/simaogato/pricesnap/internal/usecase/importer"
	"github.com/simaogato/pricesnap/internal/usecase/mapper"
	"github.com/simaogato/pricesnap/internal/usecase/pricefetch"
	"github.com/simaogato/pricesnap/internal/usecase/report"
	"github.com/sirupsen/logrus"
)

// Exit codes of a pipeline run
const (
	ExitOK     = 0
	ExitFatal  = 1
	ExitConfig = 2
)

// ExitCode maps a run status to the process exit code
func ExitCode(status domain.StageStatus) int {
	if status == domain.StageFatal {
		return ExitFatal
	}
	return ExitOK
}

// Result is the outcome of a full run
type Result struct {
	Summary *domain.RunSummary
	Report  *domain.Report // nil when the report stage did not complete
}

// PipelineService sequences import, mapping, backfill, spot fetch and report
type PipelineService struct {
	Importer *importer.ImporterService
	Mapper   *mapper.MapperService
	Backfill *backfill.BackfillService
	Fetcher  *pricefetch.FetcherService
	Report   *report.ReportService
	RunRepo  domain.RunRepository // optional
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

// NewPipelineService creates a new PipelineService instance
func NewPipelineService(
	importerService *importer.ImporterService,
	mapperService *mapper.MapperService,
	backfillService *backfill.BackfillService,
	fetcherService *pricefetch.FetcherService,
	reportService *report.ReportService,
	runRepo domain.RunRepository,
	logger logrus.FieldLogger,
) *PipelineService {
	return &PipelineService{
		Importer: importerService,
		Mapper:   mapperService,
		Backfill: backfillService,
		Fetcher:  fetcherService,
		Report:   reportService,
		RunRepo:  runRepo,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Run executes every stage in order for the ledger at ledgerPath.
// An empty reportDate means today (UTC). A fatal import skips every remaining stage;
// backfill and fetch failures only degrade the run.
func (p *PipelineService) Run(ctx context.Context, ledgerPath string, reportDate domain.Day) *Result {
	run := &domain.RunSummary{
		ID:        uuid.New(),
		StartedAt: p.Now().UTC(),
	}
	if reportDate == "" {
		reportDate = domain.DayOf(run.StartedAt)
	}
	run.ReportDate = reportDate
	log := p.Logger.WithFields(logrus.Fields{"run_id": run.ID, "report_date": reportDate})
	result := &Result{Summary: run}

	// Import
	importOutcome := domain.NewStageOutcome(domain.StageImport)
	started := time.Now()
	imported, err := p.Importer.Import(ctx, ledgerPath)
	importOutcome.Duration = time.Since(started)
	if err != nil {
		importOutcome.Fail(err)
		run.Stages = append(run.Stages, *importOutcome)
		for _, stage := range []string{domain.StageMapping, domain.StageBackfill, domain.StageFetch, domain.StageReport} {
			run.Stages = append(run.Stages, domain.StageOutcome{Stage: stage, Status: domain.StageSkipped})
		}
		log.WithError(err).Error("ledger import failed, run aborted")
		return p.finish(ctx, result)
	}
	for _, w := range imported.Warnings {
		importOutcome.Warn(w)
	}
	run.Stages = append(run.Stages, *importOutcome)

	// Mapping
	mapping, mappingOutcome := p.Mapper.MapTransactions(imported.Transactions)
	run.Unmapped = mapping.Unmapped
	run.Stages = append(run.Stages, *mappingOutcome)
	providerIDs := mapping.ProviderIDs()

	// History first so that today's spot row is written last
	run.Stages = append(run.Stages, *p.Backfill.Backfill(ctx, providerIDs))
	run.Stages = append(run.Stages, *p.Fetcher.Fetch(ctx, providerIDs))

	rep, reportOutcome := p.Report.Run(ctx, imported.Transactions, mapping.Mapped, reportDate)
	run.Stages = append(run.Stages, *reportOutcome)
	if reportOutcome.Status != domain.StageFatal {
		result.Report = rep
	}

	return p.finish(ctx, result)
}

func (p *PipelineService) finish(ctx context.Context, result *Result) *Result {
	run := result.Summary
	run.FinishedAt = p.Now().UTC()
	run.Status = run.Resolve()

	log := p.Logger.WithFields(logrus.Fields{"run_id": run.ID, "status": run.Status})
	for _, stage := range run.Stages {
		entry := log.WithFields(logrus.Fields{"stage": stage.Stage, "stage_status": stage.Status, "warnings": len(stage.Warnings)})
		if stage.Err != nil {
			entry = entry.WithError(stage.Err)
		}
		entry.Info("stage finished")
	}
	if len(run.Unmapped) > 0 {
		log.WithField("symbols", run.Unmapped).Warn("unmapped symbols skipped")
	}
	for _, w := range run.FailedRequests() {
		log.WithFields(logrus.Fields{"provider_id": w.ProviderID, "day": w.Day}).Warn(w.Message)
	}

	if p.RunRepo != nil {
		if err := p.RunRepo.Save(ctx, run); err != nil {
			log.WithError(err).Warn("failed to record pipeline run")
		}
	}
	log.Info("pipeline run finished")
	return result
}
