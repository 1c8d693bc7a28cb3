package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// configReloader re-reads the config file, layers the CLI overrides on top,
// validates and hands the result to apply. A bad file never replaces the
// running config.
type configReloader struct {
	path      string
	overrides FlagOverrides
	apply     func(*Config)
	logger    *slog.Logger

	mu sync.Mutex // one reload at a time
}

func newConfigReloader(path string, overrides FlagOverrides, apply func(*Config), logger *slog.Logger) *configReloader {
	path = ExpandPath(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &configReloader{
		path:      path,
		overrides: overrides,
		apply:     apply,
		logger:    logger.With("component", "config"),
	}
}

// Reload loads, validates and applies the config file.
func (r *configReloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := LoadConfigFile(r.path)
	if err != nil {
		return err
	}
	r.overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	r.apply(&cfg)
	r.logger.Info("config reloaded", "path", r.path)
	return nil
}

// Watch reloads whenever the config file changes, coalescing editor write
// bursts. The directory is watched so that atomic-rename saves are seen.
func (r *configReloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Warn("config watch disabled", "err", err)
		return nil
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		r.logger.Warn("config watch disabled", "dir", dir, "err", err)
		return nil
	}
	r.logger.Debug("watching config", "path", r.path)

	// The debounce timer only signals; the reload itself runs on this
	// goroutine, inside the caller's failure boundary.
	debounced := debounce.New(configReloadDebounce)
	due := make(chan struct{}, 1)
	markDue := func() {
		select {
		case due <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-due:
			if err := r.Reload(); err != nil {
				r.logger.Warn("config reload failed, keeping previous config", "err", err)
			}

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if evPath, _ := filepath.Abs(ev.Name); evPath != r.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounced(markDue)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("config watcher error", "err", err)
		}
	}
}
