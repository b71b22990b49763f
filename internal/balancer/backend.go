package balancer

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jollaman999/multiport-greeter/internal/models"
)

// Backend is one upstream greeter. Backends start alive.
type Backend struct {
	URL *url.URL

	mu            sync.RWMutex
	alive         bool
	lastCheckedAt time.Time
	lastError     string
}

func NewBackend(rawURL string) (*Backend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", rawURL)
	}

	return &Backend{
		URL:   u,
		alive: true,
	}, nil
}

func (b *Backend) IsAlive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.alive
}

// setAlive records a check result and reports whether the state changed.
func (b *Backend) setAlive(alive bool, cause error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := b.alive != alive
	b.alive = alive
	b.lastCheckedAt = time.Now().UTC()
	b.lastError = ""
	if cause != nil {
		b.lastError = cause.Error()
	}
	return changed
}

func (b *Backend) Status() models.BackendStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return models.BackendStatus{
		URL:           b.URL.String(),
		Alive:         b.alive,
		LastCheckedAt: b.lastCheckedAt,
		LastError:     b.lastError,
	}
}
