package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long Watch waits after the last change event before
// reloading, so that a burst of writes causes a single reload.
const settleDelay = 100 * time.Millisecond

// Watch reloads the thread at path whenever it changes on disk and calls
// fn with each successfully loaded thread. Load errors are logged and
// skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*Thread)) error {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace files by renaming.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(settleDelay)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(settleDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("thread watcher error", "path", abs, "error", err)

		case <-timer.C:
			t, err := Load(abs)
			if err != nil {
				logger.Warn("reloading thread failed", "path", abs, "error", err)
				continue
			}
			logger.Info("thread reloaded", "path", abs, "comments", len(t.Comments))
			fn(t)
		}
	}
}
