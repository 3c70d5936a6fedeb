package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce folds the burst of events an editor save produces.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes the
// new config to onChange. Invalid files are logged and skipped. The parent
// directory is watched so atomic renames by editors are seen. Watching stops
// when ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolving config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(watchDebounce)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)

			case <-debounce:
				debounce = nil
				cfg, err := LoadFile(abs)
				if err != nil {
					logger.Warn("config reload failed", "path", abs, "error", err)
					continue
				}
				logger.Info("config reloaded", "path", abs)
				onChange(cfg)
			}
		}
	}()

	return nil
}
