package watcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Op int

const (
	Create Op = iota
	Modify
	Move
	Delete
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Move:
		return "move"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

type Message struct {
	Operation Op
	Path      string
}

// WatchFile reports changes to a single file until ctx is done. The parent
// directory is watched rather than the file itself so that editors which
// replace the file through a rename are still followed.
func WatchFile(ctx context.Context, path string, change chan<- Message, logger *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create new watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to add watcher to %s: %w", filepath.Dir(target), err)
	}
	logger.Info("watching config file", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			msg, ok := toMessage(event)
			if !ok {
				continue
			}
			logger.Debug("config file changed",
				zap.String("path", msg.Path),
				zap.Stringer("operation", msg.Operation))

			select {
			case change <- msg:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func toMessage(event fsnotify.Event) (Message, bool) {
	switch {
	case event.Op&fsnotify.Write == fsnotify.Write:
		return Message{Operation: Modify, Path: event.Name}, true
	case event.Op&fsnotify.Create == fsnotify.Create:
		return Message{Operation: Create, Path: event.Name}, true
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		return Message{Operation: Move, Path: event.Name}, true
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		return Message{Operation: Delete, Path: event.Name}, true
	default:
		return Message{}, false
	}
}
