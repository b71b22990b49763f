package balancer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthChecker polls every backend of a pool and flips its alive flag.
// A backend is alive iff GET on its URL answers 200.
type HealthChecker struct {
	pool     *Pool
	client   *http.Client
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthChecker(pool *Pool, interval, timeout time.Duration, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		pool:     pool,
		client:   &http.Client{Timeout: timeout},
		interval: interval,
		logger:   logger,
	}
}

// Run checks immediately, then every interval, until ctx is done.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.CheckAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// CheckAll probes every backend concurrently and returns once all are done.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, b := range h.pool.Backends() {
		wg.Add(1)
		go func(b *Backend) {
			defer wg.Done()
			h.check(ctx, b)
		}(b)
	}
	wg.Wait()
}

func (h *HealthChecker) check(ctx context.Context, b *Backend) {
	err := h.probe(ctx, b)

	// results from a cancelled run say nothing about the backend
	if ctx.Err() != nil {
		return
	}

	alive := err == nil
	if !b.setAlive(alive, err) {
		return
	}

	if alive {
		h.logger.Info("server is back up", zap.String("backend", b.URL.String()))
	} else {
		h.logger.Warn("server is down",
			zap.String("backend", b.URL.String()),
			zap.Error(err))
	}
}

func (h *HealthChecker) probe(ctx context.Context, b *Backend) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}
