package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/delivery/http/handler"
	"github.com/user/imo-scraper/internal/delivery/http/router"
	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/internal/usecase"
	"github.com/user/imo-scraper/pkg/config"
	"github.com/user/imo-scraper/pkg/logger"
	"github.com/user/imo-scraper/pkg/metrics"
)

const (
	exitCompleted   = 0
	exitFailed      = 1
	exitInvalidArgs = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("run_scrapers", pflag.ContinueOnError)
	scrapers := fs.String("scrapers", "", "comma-separated sources, or all")
	fs.Bool("force", false, "start even if another main run is running")
	fs.String("kind", "", "listing kind: rent or buy")
	configFile := fs.String("config", "", "path to a YAML config file")
	fs.Bool("dry-run", false, "use in-memory stores instead of Postgres")
	fs.String("metrics-addr", "", "serve health, latest run and metrics on this address")
	fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitCompleted
		}
		return exitInvalidArgs
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		return exitInvalidArgs
	}

	cfg, err := config.Load(*configFile, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitInvalidArgs
	}
	if fs.Changed("scrapers") {
		cfg.Sources = []string{*scrapers}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitInvalidArgs
	}
	sources, _ := cfg.SelectedSources()
	kind, _ := entity.ParseListingKind(cfg.ListingKind)

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return exitFailed
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	deps, err := wire(ctx, cfg, log, m)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return exitFailed
	}
	defer deps.close(log)

	if cfg.MetricsAddr != "" {
		h := handler.NewHandler(deps.runs, deps.checks, log)
		srv := router.NewServer(cfg.MetricsAddr, router.New(h, prometheus.DefaultGatherer, m, log), log)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ledger := usecase.NewLedger(deps.runs, log)
	orchestrator := usecase.NewOrchestrator(ledger, deps.workerFactory(cfg, kind, ledger), usecase.OrchestratorConfig{
		Parallelism: cfg.Parallelism,
		RunTimeout:  cfg.RunTimeout,
		Force:       cfg.Force,
	}, log, m)

	log.Info("starting scrape",
		zap.Strings("sources", sourceNames(sources)),
		zap.String("kind", string(kind)),
		zap.Bool("dry_run", cfg.DryRun),
	)
	mainRun, _, err := orchestrator.Run(ctx, sources)
	switch {
	case errors.Is(err, repository.ErrRunAlreadyActive):
		log.Error("another main run is still running; use --force to override")
		return exitFailed
	case err != nil:
		log.Error("scrape failed", zap.Error(err))
		return exitFailed
	case mainRun.Status != entity.RunCompleted:
		return exitFailed
	}
	return exitCompleted
}

func sourceNames(sources []entity.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}
