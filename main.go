package main

import (
	"flag"
	"log"

	"github.com/jollaman999/multiport-greeter/internal/config"
	"github.com/jollaman999/multiport-greeter/internal/greeter"
	"github.com/jollaman999/multiport-greeter/internal/logger"
	"go.uber.org/zap"
)

// bindPolicy decides whether the process survives the result of StartAll.
// Failed ports are tolerated unless none bound or exitOnFailure is set.
func bindPolicy(started int, err error, exitOnFailure bool) (fatal bool, msg string) {
	switch {
	case err == nil:
		return false, "all servers started, press Ctrl+C to stop"
	case started == 0:
		return true, "no server could be started"
	case exitOnFailure:
		return true, "server failed to start, exiting"
	default:
		return false, "continuing without the servers that failed to start"
	}
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

	g := greeter.New(cfg.Greeter.Host, zl)

	listeners, err := g.StartAll(cfg.Greeter.Ports)
	if fatal, msg := bindPolicy(len(listeners), err, cfg.Greeter.ExitOnBindFailure); fatal {
		zl.Fatal(msg, zap.Error(err))
	} else if err != nil {
		zl.Warn(msg, zap.Error(err),
			zap.Int("running", len(listeners)),
			zap.Int("configured", len(cfg.Greeter.Ports)))
	} else {
		zl.Info(msg, zap.Int("running", len(listeners)))
	}

	g.Wait()
}
