package mcp

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"toolgate/internal/logging"
)

// WatchConfig re-reads the launch spec file whenever it changes and applies
// the difference to the aggregator. It returns immediately when the file
// does not exist at startup; hot-reload only makes sense for a config the
// operator actually mounted. The watcher stops when ctx ends.
func WatchConfig(ctx context.Context, a *Aggregator, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors and mounts replace the file, which
	// drops a watch held on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		reload := func() {
			specs, err := LoadConfig(path)
			if err != nil {
				logging.Get(logging.CategoryMCP).Warn("Config reload failed: %v", err)
				return
			}
			logging.MCP("Child config changed; applying %d entries", len(specs))
			a.Reload(ctx, specs)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Debounce bursts of events from a single save.
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Get(logging.CategoryMCP).Warn("Config watcher error: %v", err)
			}
		}
	}()

	return nil
}
