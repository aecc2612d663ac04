package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lcalzada-xor/mids/internal/core/services/correlator"
)

// PolicyWatcher reloads the policy file when it changes on disk and hands
// valid settings to apply. Invalid files are logged and ignored, so the last
// good settings stay active.
type PolicyWatcher struct {
	path     string
	apply    func(correlator.Settings)
	debounce time.Duration
}

// NewPolicyWatcher creates a watcher for path.
func NewPolicyWatcher(path string, apply func(correlator.Settings)) *PolicyWatcher {
	return &PolicyWatcher{path: path, apply: apply, debounce: 250 * time.Millisecond}
}

// SetDebounce changes how long the watcher waits for a burst of writes to settle.
func (w *PolicyWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run blocks until ctx is cancelled. The parent directory is watched because
// editors often replace the file instead of writing it in place.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(w.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	slog.Info("watching policy file", "path", target)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("policy watcher error", "error", err)

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *PolicyWatcher) reload() {
	s, err := LoadPolicy(w.path)
	if err != nil {
		slog.Error("policy reload rejected, keeping previous settings", "path", w.path, "error", err)
		return
	}
	w.apply(s)
	slog.Info("policy reloaded", "path", w.path)
}
