package greeter

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Greeter owns a set of independent listeners. Listeners share nothing but
// the logger; the greeter only tracks them so they can be waited on or
// stopped.
type Greeter struct {
	host      string
	listeners map[int]*Listener
	mu        sync.RWMutex
	logger    *zap.Logger
}

func New(host string, logger *zap.Logger) *Greeter {
	return &Greeter{
		host:      host,
		listeners: make(map[int]*Listener),
		logger:    logger,
	}
}

// StartAll binds one listener per port, in order. A port that fails to bind
// is logged and skipped; the others keep running. The returned error combines
// every *BindError and is nil only if all ports bound.
func (g *Greeter) StartAll(ports []int) ([]*Listener, error) {
	var (
		started []*Listener
		errs    error
	)

	for _, port := range ports {
		l, err := Listen(g.host, port, g.logger)
		if err != nil {
			g.logger.Error("failed to start server",
				zap.Int("port", port),
				zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}

		g.mu.Lock()
		g.listeners[l.Port()] = l
		g.mu.Unlock()

		started = append(started, l)
	}

	return started, errs
}

// Listeners returns the running listeners ordered by port.
func (g *Greeter) Listeners() []*Listener {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ports := make([]int, 0, len(g.listeners))
	for port := range g.listeners {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	listeners := make([]*Listener, 0, len(ports))
	for _, port := range ports {
		listeners = append(listeners, g.listeners[port])
	}
	return listeners
}

// Stop closes the listener bound to port and leaves the rest untouched.
func (g *Greeter) Stop(port int) error {
	g.mu.Lock()
	l, exists := g.listeners[port]
	if !exists {
		g.mu.Unlock()
		return fmt.Errorf("no server running on port %d", port)
	}
	delete(g.listeners, port)
	g.mu.Unlock()

	return l.Close()
}

// Wait blocks until every listener known at call time has stopped serving.
func (g *Greeter) Wait() {
	for _, l := range g.Listeners() {
		<-l.Done()
	}
}

func (g *Greeter) Close() error {
	g.mu.Lock()
	listeners := g.listeners
	g.listeners = make(map[int]*Listener)
	g.mu.Unlock()

	var errs error
	for _, l := range listeners {
		errs = multierr.Append(errs, l.Close())
	}
	return errs
}
