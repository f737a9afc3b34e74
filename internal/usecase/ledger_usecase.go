package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

// Ledger records MainRuns and their ScraperRuns. Every mutation goes through
// one writer lock, and every status change follows
// initialized -> running -> {completed | failed}.
type Ledger struct {
	mu     sync.Mutex
	runs   repository.RunRepository
	now    func() time.Time
	logger *zap.Logger
}

func NewLedger(runs repository.RunRepository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{runs: runs, now: time.Now, logger: logger}
}

// StartMain creates a running MainRun. Unless force is set it refuses with
// repository.ErrRunAlreadyActive while another MainRun is initialized or
// running, and writes nothing in that case. The check is made by the store,
// so it holds across processes.
func (l *Ledger) StartMain(ctx context.Context, force bool) (*entity.MainRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run := &entity.MainRun{Status: entity.RunInitialized, StartedAt: l.now().UTC()}
	create := l.runs.CreateMainExclusive
	if force {
		create = l.runs.CreateMain
	}
	if err := create(ctx, run); err != nil {
		if errors.Is(err, repository.ErrRunAlreadyActive) {
			return nil, err
		}
		return nil, fmt.Errorf("create main run: %w", err)
	}
	if err := transition(&run.Status, entity.RunRunning); err != nil {
		return nil, err
	}
	if err := l.runs.UpdateMain(ctx, run); err != nil {
		return nil, fmt.Errorf("start main run %d: %w", run.ID, err)
	}
	return run, nil
}

// StartScraper creates the running ScraperRun of src under main.
func (l *Ledger) StartScraper(ctx context.Context, main *entity.MainRun, src entity.Source) (*entity.ScraperRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run := &entity.ScraperRun{
		MainRunID: main.ID,
		Source:    src,
		Status:    entity.RunInitialized,
		StartedAt: l.now().UTC(),
	}
	if err := l.runs.CreateScraper(ctx, run); err != nil {
		return nil, fmt.Errorf("create %s run: %w", src, err)
	}
	if err := transition(&run.Status, entity.RunRunning); err != nil {
		return nil, err
	}
	if err := l.runs.UpdateScraper(ctx, run); err != nil {
		return nil, fmt.Errorf("start %s run %d: %w", src, run.ID, err)
	}
	return run, nil
}

// RecordSeen adds n to the run's seen counter.
func (l *Ledger) RecordSeen(ctx context.Context, run *entity.ScraperRun, n int) error {
	return l.add(ctx, run, n, 0)
}

// RecordNew adds n to the run's new counter.
func (l *Ledger) RecordNew(ctx context.Context, run *entity.ScraperRun, n int) error {
	return l.add(ctx, run, 0, n)
}

// RecordPage adds the counters of one page in a single write.
func (l *Ledger) RecordPage(ctx context.Context, run *entity.ScraperRun, seen, created int) error {
	return l.add(ctx, run, seen, created)
}

func (l *Ledger) add(ctx context.Context, run *entity.ScraperRun, seen, created int) error {
	if seen < 0 || created < 0 {
		return fmt.Errorf("run %d: counters only grow (seen %+d, new %+d)", run.ID, seen, created)
	}
	if seen == 0 && created == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if run.Status != entity.RunRunning {
		return fmt.Errorf("run %d is %s: %w", run.ID, run.Status, repository.ErrInvalidTransition)
	}
	run.TotalSeen += seen
	run.TotalNew += created
	return l.runs.UpdateScraper(ctx, run)
}

// Complete ends the run successfully. note records why a run stopped early
// and may be empty.
func (l *Ledger) Complete(ctx context.Context, run *entity.ScraperRun, note string) error {
	return l.finish(ctx, run, entity.RunCompleted, "", note)
}

// Fail ends the run with reason.
func (l *Ledger) Fail(ctx context.Context, run *entity.ScraperRun, reason string) error {
	return l.finish(ctx, run, entity.RunFailed, reason, "")
}

func (l *Ledger) finish(ctx context.Context, run *entity.ScraperRun, to entity.RunStatus, reason, note string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := transition(&run.Status, to); err != nil {
		return fmt.Errorf("%s run %d: %w", run.Source, run.ID, err)
	}
	run.EndedAt, run.DurationS = l.stamp(run.StartedAt)
	run.Error = reason
	run.Note = note
	if err := l.runs.UpdateScraper(ctx, run); err != nil {
		return fmt.Errorf("finish %s run %d: %w", run.Source, run.ID, err)
	}
	l.logger.Info("scraper run finished",
		zap.Int64("run_id", run.ID),
		zap.String("source", string(run.Source)),
		zap.String("status", string(run.Status)),
		zap.Int("total_seen", run.TotalSeen),
		zap.Int("total_new", run.TotalNew),
		zap.String("error", reason),
		zap.String("note", note),
	)
	return nil
}

// FinishMain sums the children into main and ends it: completed when at
// least one child completed, failed otherwise.
func (l *Ledger) FinishMain(ctx context.Context, main *entity.MainRun, children []*entity.ScraperRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	main.TotalSeen, main.TotalNew = 0, 0
	status := entity.RunFailed
	for _, c := range children {
		main.TotalSeen += c.TotalSeen
		main.TotalNew += c.TotalNew
		if c.Status == entity.RunCompleted {
			status = entity.RunCompleted
		}
	}
	if status == entity.RunFailed && main.Error == "" {
		main.Error = "no scraper completed"
	}
	return l.endMain(ctx, main, status)
}

// FailMain ends main with a top-level reason such as an invalid configuration.
func (l *Ledger) FailMain(ctx context.Context, main *entity.MainRun, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	main.Error = reason
	return l.endMain(ctx, main, entity.RunFailed)
}

func (l *Ledger) endMain(ctx context.Context, main *entity.MainRun, to entity.RunStatus) error {
	if err := transition(&main.Status, to); err != nil {
		return fmt.Errorf("main run %d: %w", main.ID, err)
	}
	main.EndedAt, main.DurationS = l.stamp(main.StartedAt)
	if err := l.runs.UpdateMain(ctx, main); err != nil {
		return fmt.Errorf("finish main run %d: %w", main.ID, err)
	}
	return nil
}

func (l *Ledger) stamp(started time.Time) (*time.Time, *float64) {
	ended := l.now().UTC()
	d := ended.Sub(started).Seconds()
	if d < 0 {
		d = 0
	}
	return &ended, &d
}

func transition(status *entity.RunStatus, to entity.RunStatus) error {
	if !status.CanTransition(to) {
		return fmt.Errorf("%s -> %s: %w", *status, to, repository.ErrInvalidTransition)
	}
	*status = to
	return nil
}
