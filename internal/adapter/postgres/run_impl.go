package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

type RunRepoImpl struct {
	db *pgxpool.Pool
}

func NewRunRepo(db *pgxpool.Pool) *RunRepoImpl {
	return &RunRepoImpl{db: db}
}

// mainRunLockKey is the advisory lock serializing guarded MainRun creation.
const mainRunLockKey int64 = 0x5343524150455231

const insertMainRun = `
	INSERT INTO main_runs (status, started_at, total_seen, total_new, error)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	RETURNING id;`

func (r *RunRepoImpl) CreateMain(ctx context.Context, run *entity.MainRun) error {
	return r.db.QueryRow(ctx, insertMainRun,
		string(run.Status), run.StartedAt, run.TotalSeen, run.TotalNew, run.Error,
	).Scan(&run.ID)
}

// CreateMainExclusive checks for an active MainRun and inserts run in one
// transaction holding a transaction-scoped advisory lock, so concurrent
// processes cannot both pass the check.
func (r *RunRepoImpl) CreateMainExclusive(ctx context.Context, run *entity.MainRun) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1);`, mainRunLockKey); err != nil {
		return fmt.Errorf("lock main runs: %w", err)
	}
	var active bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM main_runs WHERE status IN ($1, $2));`,
		string(entity.RunInitialized), string(entity.RunRunning),
	).Scan(&active)
	if err != nil {
		return err
	}
	if active {
		return repository.ErrRunAlreadyActive
	}
	if err := tx.QueryRow(ctx, insertMainRun,
		string(run.Status), run.StartedAt, run.TotalSeen, run.TotalNew, run.Error,
	).Scan(&run.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *RunRepoImpl) UpdateMain(ctx context.Context, run *entity.MainRun) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE main_runs
		SET status = $2, ended_at = $3, duration_s = $4, total_seen = $5, total_new = $6, error = NULLIF($7, '')
		WHERE id = $1;`,
		run.ID, string(run.Status), run.EndedAt, run.DurationS, run.TotalSeen, run.TotalNew, run.Error,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *RunRepoImpl) CreateScraper(ctx context.Context, run *entity.ScraperRun) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO scraper_runs (main_run_id, source, status, started_at, total_seen, total_new, error, note)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING id;`,
		run.MainRunID, string(run.Source), string(run.Status), run.StartedAt,
		run.TotalSeen, run.TotalNew, run.Error, run.Note,
	).Scan(&run.ID)
}

func (r *RunRepoImpl) UpdateScraper(ctx context.Context, run *entity.ScraperRun) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scraper_runs
		SET status = $2, ended_at = $3, duration_s = $4, total_seen = $5, total_new = $6,
			error = NULLIF($7, ''), note = NULLIF($8, '')
		WHERE id = $1;`,
		run.ID, string(run.Status), run.EndedAt, run.DurationS,
		run.TotalSeen, run.TotalNew, run.Error, run.Note,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *RunRepoImpl) ScraperRuns(ctx context.Context, mainRunID int64) ([]*entity.ScraperRun, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, main_run_id, source, status, started_at, ended_at, duration_s,
			total_seen, total_new, COALESCE(error, ''), COALESCE(note, '')
		FROM scraper_runs
		WHERE main_run_id = $1
		ORDER BY id ASC;`, mainRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*entity.ScraperRun
	for rows.Next() {
		var (
			sr             entity.ScraperRun
			source, status string
		)
		if err := rows.Scan(
			&sr.ID,
			&sr.MainRunID,
			&source,
			&status,
			&sr.StartedAt,
			&sr.EndedAt,
			&sr.DurationS,
			&sr.TotalSeen,
			&sr.TotalNew,
			&sr.Error,
			&sr.Note,
		); err != nil {
			return nil, err
		}
		sr.Source = entity.Source(source)
		sr.Status = entity.RunStatus(status)
		runs = append(runs, &sr)
	}
	return runs, rows.Err()
}

func (r *RunRepoImpl) LatestMain(ctx context.Context) (*entity.MainRun, error) {
	var (
		run    entity.MainRun
		status string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, status, started_at, ended_at, duration_s, total_seen, total_new, COALESCE(error, '')
		FROM main_runs
		ORDER BY id DESC
		LIMIT 1;`,
	).Scan(&run.ID, &status, &run.StartedAt, &run.EndedAt, &run.DurationS, &run.TotalSeen, &run.TotalNew, &run.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = entity.RunStatus(status)
	return &run, nil
}
