package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/utkarsh5026/heatload/internal/backoff"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 200 * time.Millisecond

// Watch reloads the preset file at path whenever it changes and hands the
// result to onChange. Invalid files are reported through onChange's error
// and the previous presets stay in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(File, error)) error {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file by rename.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(watchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("preset watcher error", "err", err)

		case <-pending:
			pending = nil
			f, err := LoadFile(path)
			if err != nil {
				logger.Warn("preset reload rejected", "path", path, "err", err)
			} else {
				logger.Info("presets reloaded", "path", path, "count", len(f.Presets))
			}
			onChange(f, err)
		}
	}
}

// Retry delays for WatchRetry.
var (
	watchRetryInitial = 500 * time.Millisecond
	watchRetryMax     = 30 * time.Second
)

// WatchRetry runs Watch until ctx is done, restarting it with a jittered
// exponential backoff whenever it fails, for instance while the preset
// directory does not exist yet.
func WatchRetry(ctx context.Context, path string, logger *slog.Logger, onChange func(File, error)) {
	if logger == nil {
		logger = slog.Default()
	}
	b := backoff.New(watchRetryInitial, watchRetryMax, 0.2)

	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := Watch(ctx, path, logger, onChange)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > b.Max() {
			attempt = 0
		}

		delay := b.Delay(attempt)
		logger.Warn("preset watch failed, retrying", "path", path, "err", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
