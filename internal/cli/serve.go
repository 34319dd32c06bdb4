package cli

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	grpcadapter "github.com/simaogato/pricesnap/internal/adapter/grpc"
	"github.com/simaogato/pricesnap/internal/adapter/httpapi"
	"github.com/simaogato/pricesnap/internal/adapter/repository/sqlstore"
	"github.com/simaogato/pricesnap/internal/scheduler"
	"github.com/simaogato/pricesnap/internal/usecase/query"
)

const shutdownTimeout = 10 * time.Second

type serveCmd struct {
	noSchedule bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serves the read API and runs the pipeline on a schedule" }
func (*serveCmd) Usage() string {
	return `pricesnap serve [-no-schedule]

Serves the stored reports and snapshots read-only over gRPC
(GRPC_ADDR, service pricesnap.v1.ReportService) and HTTP (HTTP_ADDR,
GET /v1/reports/{date}, GET /v1/snapshots/{provider_id},
GET /v1/series?from=&to=&account=, GET /healthz).
Both require the API_TOKEN in the authorization header.

Unless -no-schedule is given, the full pipeline also runs on the
SCHEDULE_CRON schedule (UTC). A scheduled run is skipped while the
previous one is still in progress.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.noSchedule, "no-schedule", false, "Only serve the read API")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	queries := query.NewQueryService(sqlstore.NewReportRepository(a.db), sqlstore.NewSnapshotRepository(a.db)).
		WithSeries(sqlstore.NewLedgerRepository(a.db), a.cfg.Coins, a.reporter())
	log := a.logger.WithField("component", "serve")

	if !c.noSchedule && a.cfg.Serve.Cron != "" {
		if err := a.cfg.RequireLedger(); err != nil {
			return fail(err)
		}
		if err := a.cfg.RequireCoins(); err != nil {
			return fail(err)
		}
		service, err := a.pipeline(ctx)
		if err != nil {
			return fail(err)
		}
		ledgerPath := a.cfg.Ledger.Path
		sched, err := scheduler.NewScheduler(ctx, a.cfg.Serve.Cron, func(ctx context.Context) {
			service.Run(ctx, ledgerPath, "")
		}, a.logger.WithField("component", "scheduler"))
		if err != nil {
			return fail(err)
		}
		sched.Start()
		defer func() {
			if sched.Running() {
				log.Info("waiting for the scheduled run to finish")
			}
			<-sched.Stop().Done()
		}()
	}

	grpcServer := grpcadapter.NewGRPCServer(grpcadapter.NewServer(queries), a.cfg.Serve.APIToken, a.logger.WithField("component", "grpc"))
	httpServer := httpapi.NewHTTPServer(a.cfg.Serve.HTTPAddr, httpapi.NewServer(queries, a.cfg.Serve.APIToken, a.logger.WithField("component", "http")))

	lis, err := net.Listen("tcp", a.cfg.Serve.GRPCAddr)
	if err != nil {
		return fail(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", a.cfg.Serve.GRPCAddr).Info("gRPC server listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.WithField("addr", a.cfg.Serve.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
