package memory

import (
	"context"
	"sync"

	"github.com/user/imo-scraper/internal/entity"
)

type SeenRepoImpl struct {
	mu   sync.Mutex
	urls map[entity.Source]map[string]struct{}
}

func NewSeenRepo() *SeenRepoImpl {
	return &SeenRepoImpl{urls: make(map[entity.Source]map[string]struct{})}
}

func (r *SeenRepoImpl) Load(_ context.Context, source entity.Source) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.urls[source]))
	for u := range r.urls[source] {
		out[u] = struct{}{}
	}
	return out, nil
}

func (r *SeenRepoImpl) Add(_ context.Context, source entity.Source, canonicalURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.urls[source]
	if !ok {
		set = make(map[string]struct{})
		r.urls[source] = set
	}
	set[canonicalURL] = struct{}{}
	return nil
}
