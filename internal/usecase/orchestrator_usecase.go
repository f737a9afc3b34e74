package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/pkg/metrics"
)

// DefaultParallelism is the number of workers run at once.
const DefaultParallelism = 4

// WorkerFactory builds the worker of one source together with a release
// func for what the worker owns, such as its headless browser.
type WorkerFactory func(src entity.Source) (*Worker, func(), error)

type OrchestratorConfig struct {
	Parallelism int
	// RunTimeout bounds each ScraperRun; zero means no bound.
	RunTimeout time.Duration
	Force      bool
}

// Orchestrator starts a MainRun, fans out one worker per source and joins
// them. A failing worker never cancels its peers.
type Orchestrator struct {
	ledger    *Ledger
	newWorker WorkerFactory
	cfg       OrchestratorConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewOrchestrator(ledger *Ledger, newWorker WorkerFactory, cfg OrchestratorConfig, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = DefaultParallelism
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{ledger: ledger, newWorker: newWorker, cfg: cfg, logger: logger, metrics: m}
}

// Run scrapes sources and returns the finished MainRun with its children in
// source order. The guard error repository.ErrRunAlreadyActive is returned
// with a nil run and nothing written. An unknown source fails the MainRun
// before any worker starts.
func (o *Orchestrator) Run(ctx context.Context, sources []entity.Source) (*entity.MainRun, []*entity.ScraperRun, error) {
	if len(sources) == 0 {
		return nil, nil, errors.New("no sources selected")
	}
	main, err := o.ledger.StartMain(ctx, o.cfg.Force)
	if err != nil {
		return nil, nil, err
	}
	log := o.logger.With(zap.Int64("main_run_id", main.ID))
	for _, src := range sources {
		if src.Known() {
			continue
		}
		err := fmt.Errorf("unknown source %q", src)
		log.Error("main run rejected", zap.Error(err))
		if ferr := o.ledger.FailMain(context.WithoutCancel(ctx), main, err.Error()); ferr != nil {
			return main, nil, errors.Join(err, ferr)
		}
		return main, nil, err
	}
	log.Info("main run started",
		zap.Int("sources", len(sources)),
		zap.Int("parallelism", o.cfg.Parallelism),
		zap.Bool("force", o.cfg.Force),
	)

	var (
		mu       sync.Mutex
		children = make([]*entity.ScraperRun, len(sources))
		g        errgroup.Group
	)
	g.SetLimit(o.cfg.Parallelism)
	for i, src := range sources {
		g.Go(func() error {
			run, err := o.runSource(ctx, main, src)
			if err != nil {
				log.Error("worker error", zap.String("source", string(src)), zap.Error(err))
			}
			mu.Lock()
			children[i] = run
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	finished := children[:0]
	for _, c := range children {
		if c != nil {
			finished = append(finished, c)
		}
	}
	if err := o.ledger.FinishMain(context.WithoutCancel(ctx), main, finished); err != nil {
		return main, finished, err
	}
	log.Info("main run finished",
		zap.String("status", string(main.Status)),
		zap.Int("total_seen", main.TotalSeen),
		zap.Int("total_new", main.TotalNew),
	)
	return main, finished, nil
}

// runSource always leaves a terminal ScraperRun behind when the ledger is
// reachable, including when the worker cannot be built.
func (o *Orchestrator) runSource(ctx context.Context, main *entity.MainRun, src entity.Source) (*entity.ScraperRun, error) {
	w, release, err := o.newWorker(src)
	if err != nil {
		bookCtx := context.WithoutCancel(ctx)
		run, startErr := o.ledger.StartScraper(bookCtx, main, src)
		if startErr != nil {
			return nil, errors.Join(err, startErr)
		}
		return run, errors.Join(err, o.ledger.Fail(bookCtx, run, fmt.Sprintf("worker setup: %v", err)))
	}
	if release != nil {
		defer release()
	}

	runCtx := ctx
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}
	return w.Run(runCtx, main)
}
