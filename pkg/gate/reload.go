package gate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

// Watch reloads the route table from path whenever the file changes, until
// ctx is done. A table that fails to parse is logged and the previous one
// stays in effect. ready, when non-nil, is closed once the watch is set up.
func (g *Gate) Watch(ctx context.Context, path string, logger *observability.Logger, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are seen
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	if ready != nil {
		close(ready)
	}

	logger = logger.WithField("routes_file", target)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			table, err := LoadTable(target)
			if err != nil {
				logger.WithError(err).Error("Route table reload failed, keeping previous table")
				continue
			}
			g.SetTable(table)
			logger.WithField("rules", len(table.Rules)).Info("Route table reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Route table watcher error")
		}
	}
}
