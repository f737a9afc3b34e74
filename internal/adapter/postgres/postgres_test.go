package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

// testDB connects to SCRAPER_TEST_POSTGRES_URL; tests skip without it.
func testDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("SCRAPER_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("SCRAPER_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestListingUpsertRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewListingRepo(db)

	canonical := "https://www.imovirtual.com/pt/oferta/" + uuid.NewString()
	t.Cleanup(func() { _, _ = db.Exec(ctx, `DELETE FROM listings WHERE canonical_url = $1`, canonical) })

	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonical)).String()
	t0 := time.Now().UTC().Truncate(time.Millisecond)
	out, err := repo.Upsert(ctx, &entity.Listing{
		ID: id, CanonicalURL: canonical, Source: entity.SourceImoVirtual, Kind: entity.KindRent,
		Title: "T2", PriceMinor: 115000, ImageURLs: []string{"https://img/1.webp"},
	}, t0)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeCreated, out)

	refreshed := &entity.Listing{
		ID: id, CanonicalURL: canonical, Source: entity.SourceImoVirtual, Kind: entity.KindRent, PriceMinor: 110000,
	}
	out, err = repo.Upsert(ctx, refreshed, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRefreshed, out)
	assert.True(t, refreshed.FirstSeenAt.Equal(t0))
	assert.True(t, refreshed.LastSeenAt.Equal(t0.Add(time.Hour)))

	known, err := repo.KnownURLs(ctx, entity.SourceImoVirtual)
	require.NoError(t, err)
	assert.Contains(t, known, canonical)
}

func TestRunLedgerRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewRunRepo(db)

	main := &entity.MainRun{Status: entity.RunRunning, StartedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateMain(ctx, main))
	t.Cleanup(func() {
		_, _ = db.Exec(ctx, `DELETE FROM scraper_runs WHERE main_run_id = $1`, main.ID)
		_, _ = db.Exec(ctx, `DELETE FROM main_runs WHERE id = $1`, main.ID)
	})

	sr := &entity.ScraperRun{MainRunID: main.ID, Source: entity.SourceRemax, Status: entity.RunRunning, StartedAt: main.StartedAt}
	require.NoError(t, repo.CreateScraper(ctx, sr))
	sr.Status, sr.TotalSeen, sr.Note = entity.RunCompleted, 3, "run_timeout"
	require.NoError(t, repo.UpdateScraper(ctx, sr))

	runs, err := repo.ScraperRuns(ctx, main.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run_timeout", runs[0].Note)
	assert.Equal(t, 3, runs[0].TotalSeen)

	main.Status = entity.RunCompleted
	require.NoError(t, repo.UpdateMain(ctx, main))
	latest, err := repo.LatestMain(ctx)
	require.NoError(t, err)
	assert.Equal(t, main.ID, latest.ID)

	assert.ErrorIs(t, repo.UpdateMain(ctx, &entity.MainRun{ID: -1}), repository.ErrNotFound)
}

func TestCreateMainExclusiveAdmitsOne(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.Exec(ctx, `UPDATE main_runs SET status = 'failed' WHERE status IN ('initialized', 'running')`)
	require.NoError(t, err)

	const processes = 4
	repos := make([]*RunRepoImpl, processes)
	for i := range repos {
		repos[i] = NewRunRepo(db)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []int64
		refused int
	)
	for _, repo := range repos {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := &entity.MainRun{Status: entity.RunInitialized, StartedAt: time.Now().UTC()}
			err := repo.CreateMainExclusive(ctx, run)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created = append(created, run.ID)
			case errors.Is(err, repository.ErrRunAlreadyActive):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	t.Cleanup(func() {
		for _, id := range created {
			_, _ = db.Exec(ctx, `DELETE FROM main_runs WHERE id = $1`, id)
		}
	})

	assert.Len(t, created, 1)
	assert.Equal(t, processes-1, refused)
}
