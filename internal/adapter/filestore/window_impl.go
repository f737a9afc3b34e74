// Package filestore keeps rolling rate windows in small JSON sidecar files,
// one per source: {"requests": ["2024-05-01T12:00:00Z", ...]}.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/imo-scraper/internal/entity"
)

type sidecar struct {
	Requests []time.Time `json:"requests"`
}

// WindowRepoImpl writes each Save through to the file without syncing;
// Close fsyncs every file touched during the process lifetime.
type WindowRepoImpl struct {
	dir string

	mu    sync.Mutex
	dirty map[entity.Source]bool
}

func NewWindowRepo(dir string) (*WindowRepoImpl, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create rate window dir: %w", err)
	}
	return &WindowRepoImpl{dir: dir, dirty: make(map[entity.Source]bool)}, nil
}

func (r *WindowRepoImpl) path(source entity.Source) string {
	return filepath.Join(r.dir, string(source)+".json")
}

// Load returns the timestamps after since, ascending. A missing file is an
// empty window.
func (r *WindowRepoImpl) Load(_ context.Context, source entity.Source, since time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path(source))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path(source), err)
	}
	out := sc.Requests[:0]
	for _, t := range sc.Requests {
		if t.After(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *WindowRepoImpl) Save(_ context.Context, w entity.RateWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reqs := make([]time.Time, len(w.Requests))
	for i, t := range w.Requests {
		reqs[i] = t.UTC()
	}
	data, err := json.Marshal(sidecar{Requests: reqs})
	if err != nil {
		return err
	}
	tmp := r.path(w.Source) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.path(w.Source)); err != nil {
		return err
	}
	r.dirty[w.Source] = true
	return nil
}

// Close flushes every written sidecar to stable storage.
func (r *WindowRepoImpl) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for source := range r.dirty {
		f, err := os.OpenFile(r.path(source), os.O_RDWR, 0)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := f.Sync(); err != nil {
			errs = append(errs, err)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.dirty, source)
	}
	return errors.Join(errs...)
}
