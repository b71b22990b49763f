package balancer

import (
	"fmt"
	"sync"

	"github.com/jollaman999/multiport-greeter/internal/models"
	"go.uber.org/zap"
)

// Pool hands out alive backends in round-robin order.
type Pool struct {
	backends []*Backend
	current  int
	mu       sync.Mutex
	logger   *zap.Logger
}

func NewPool(urls []string, logger *zap.Logger) (*Pool, error) {
	p := &Pool{logger: logger}
	if err := p.SetBackends(urls); err != nil {
		return nil, err
	}
	return p, nil
}

// Next returns the next alive backend after the cursor, or nil when the pool
// is empty or every backend is down. The cursor moves past every backend it
// inspects, dead or alive.
func (p *Pool) Next() *Backend {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.backends)
	if n == 0 {
		p.logger.Warn("no servers are available to handle the request")
		return nil
	}

	p.current %= n
	for i := 0; i < n; i++ {
		b := p.backends[p.current]
		p.current = (p.current + 1) % n
		if b.IsAlive() {
			return b
		}
	}

	p.logger.Warn("all servers are down")
	return nil
}

func (p *Pool) Backends() []*Backend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Backend(nil), p.backends...)
}

// Lookup finds a backend by its URL string.
func (p *Pool) Lookup(rawURL string) *Backend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(rawURL)
}

func (p *Pool) lookup(rawURL string) *Backend {
	for _, b := range p.backends {
		if b.URL.String() == rawURL {
			return b
		}
	}
	return nil
}

// Add appends a backend unless one with the same URL exists.
func (p *Pool) Add(rawURL string) (bool, error) {
	b, err := NewBackend(rawURL)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lookup(b.URL.String()) != nil {
		return false, nil
	}
	p.backends = append(p.backends, b)
	p.logger.Info("backend added", zap.String("backend", b.URL.String()))
	return true, nil
}

func (p *Pool) Remove(rawURL string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range p.backends {
		if b.URL.String() == rawURL {
			p.backends = append(p.backends[:i], p.backends[i+1:]...)
			p.logger.Info("backend removed", zap.String("backend", rawURL))
			return true
		}
	}
	return false
}

// SetBackends replaces the backend list. Backends whose URL is already in the
// pool keep their health state. Nothing changes if any URL is invalid.
func (p *Pool) SetBackends(urls []string) error {
	fresh := make([]*Backend, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		b, err := NewBackend(raw)
		if err != nil {
			return err
		}
		key := b.URL.String()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate backend %q", key)
		}
		seen[key] = struct{}{}
		fresh = append(fresh, b)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range fresh {
		if existing := p.lookup(b.URL.String()); existing != nil {
			fresh[i] = existing
		}
	}
	p.backends = fresh
	p.current = 0

	p.logger.Info("backends configured", zap.Strings("backends", urls))
	return nil
}

// MarkDown flags a backend dead outside the regular health check, e.g. after
// a failed forward.
func (p *Pool) MarkDown(rawURL string, cause error) {
	b := p.Lookup(rawURL)
	if b == nil {
		return
	}
	if b.setAlive(false, cause) {
		p.logger.Warn("server is down",
			zap.String("backend", rawURL),
			zap.Error(cause))
	}
}

func (p *Pool) Status() models.BalancerStatus {
	backends := p.Backends()

	status := models.BalancerStatus{
		Backends:   make([]models.BackendStatus, 0, len(backends)),
		TotalCount: len(backends),
	}
	for _, b := range backends {
		s := b.Status()
		if s.Alive {
			status.AliveCount++
		}
		status.Backends = append(status.Backends, s)
	}
	return status
}
