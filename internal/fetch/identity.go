package fetch

import (
	"math/rand/v2"
	"sync"

	"github.com/user/imo-scraper/internal/entity"
)

// Identity hands out user agents and proxies. Each source keeps one user
// agent for the lifetime of the pool; proxies rotate sequentially.
type Identity struct {
	userAgents []string
	proxies    []string

	mu         sync.Mutex
	proxyIndex int
	bySource   map[entity.Source]string
	pick       func(n int) int
}

func NewIdentity(userAgents, proxies []string) *Identity {
	return &Identity{
		userAgents: userAgents,
		proxies:    proxies,
		bySource:   make(map[entity.Source]string),
		pick:       rand.IntN,
	}
}

// UserAgent returns the agent bound to src, choosing one on first use.
func (m *Identity) UserAgent(src entity.Source) string {
	if len(m.userAgents) == 0 {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ua, ok := m.bySource[src]; ok {
		return ua
	}
	ua := m.userAgents[m.pick(len(m.userAgents))]
	m.bySource[src] = ua
	return ua
}

// Proxy returns the next proxy URL, or "" when none are configured.
func (m *Identity) Proxy() string {
	if len(m.proxies) == 0 {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p
}
