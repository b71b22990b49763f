package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jollaman999/multiport-greeter/internal/api"
	"github.com/jollaman999/multiport-greeter/internal/balancer"
	"github.com/jollaman999/multiport-greeter/internal/config"
	"github.com/jollaman999/multiport-greeter/internal/logger"
	"github.com/jollaman999/multiport-greeter/internal/watcher"
	"go.uber.org/zap"
)

func reloadBackends(path string, pool *balancer.Pool, zl *zap.Logger) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		zl.Error("ignoring invalid config change", zap.String("path", path), zap.Error(err))
		return
	}
	if err := pool.SetBackends(cfg.Backends()); err != nil {
		zl.Error("failed to apply backends", zap.Error(err))
	}
}

func watchConfig(ctx context.Context, path string, pool *balancer.Pool, zl *zap.Logger) {
	change := make(chan watcher.Message)
	go func() {
		if err := watcher.WatchFile(ctx, path, change, zl); err != nil {
			zl.Error("config watcher stopped", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-change:
			handleChange(msg, path, pool, zl)
		}
	}
}

// handleChange reloads the backends when the config file was written or
// recreated. Moves and deletes keep the current pool.
func handleChange(msg watcher.Message, path string, pool *balancer.Pool, zl *zap.Logger) bool {
	if msg.Operation != watcher.Modify && msg.Operation != watcher.Create {
		return false
	}
	reloadBackends(path, pool, zl)
	return true
}

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Logger
	zl, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zl.Sync()
	}()

	pool, err := balancer.NewPool(cfg.Backends(), zl)
	if err != nil {
		zl.Fatal("failed to create backend pool", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := balancer.NewHealthChecker(pool,
		time.Duration(cfg.Balancer.HealthCheck.IntervalSec)*time.Second,
		time.Duration(cfg.Balancer.HealthCheck.TimeoutSec)*time.Second,
		zl)
	go checker.Run(ctx)

	if *configPath != "" && cfg.Balancer.WatchConfig {
		go watchConfig(ctx, *configPath, pool, zl)
	}

	e := api.NewRouter(cfg.Balancer.StatusPath, pool, checker, zl)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Balancer.Port)
	zl.Info(fmt.Sprintf("Load balancer running on port %d", cfg.Balancer.Port),
		zap.Strings("backends", cfg.Backends()))
	if err := e.Start(addr); err != nil {
		zl.Fatal("load balancer stopped", zap.Error(err))
	}
}
