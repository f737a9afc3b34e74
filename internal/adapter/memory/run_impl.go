package memory

import (
	"context"
	"sync"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

type RunRepoImpl struct {
	mu       sync.Mutex
	nextID   int64
	mains    []*entity.MainRun
	scrapers []*entity.ScraperRun
}

func NewRunRepo() *RunRepoImpl {
	return &RunRepoImpl{}
}

func (r *RunRepoImpl) CreateMain(_ context.Context, run *entity.MainRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	run.ID = r.nextID
	cp := *run
	r.mains = append(r.mains, &cp)
	return nil
}

func (r *RunRepoImpl) CreateMainExclusive(_ context.Context, run *entity.MainRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mains {
		if m.Status == entity.RunInitialized || m.Status == entity.RunRunning {
			return repository.ErrRunAlreadyActive
		}
	}
	r.nextID++
	run.ID = r.nextID
	cp := *run
	r.mains = append(r.mains, &cp)
	return nil
}

func (r *RunRepoImpl) UpdateMain(_ context.Context, run *entity.MainRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.mains {
		if m.ID == run.ID {
			cp := *run
			r.mains[i] = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *RunRepoImpl) CreateScraper(_ context.Context, run *entity.ScraperRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	run.ID = r.nextID
	cp := *run
	r.scrapers = append(r.scrapers, &cp)
	return nil
}

func (r *RunRepoImpl) UpdateScraper(_ context.Context, run *entity.ScraperRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.scrapers {
		if s.ID == run.ID {
			cp := *run
			r.scrapers[i] = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *RunRepoImpl) ScraperRuns(_ context.Context, mainRunID int64) ([]*entity.ScraperRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ScraperRun
	for _, s := range r.scrapers {
		if s.MainRunID == mainRunID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *RunRepoImpl) LatestMain(context.Context) (*entity.MainRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.mains) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := *r.mains[len(r.mains)-1]
	return &cp, nil
}

// MainRuns returns copies of every MainRun in creation order.
func (r *RunRepoImpl) MainRuns() []entity.MainRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.MainRun, len(r.mains))
	for i, m := range r.mains {
		out[i] = *m
	}
	return out
}
