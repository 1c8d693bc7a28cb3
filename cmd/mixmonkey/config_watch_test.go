package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mixmonkey/internal/testutil"
	"mixmonkey/internal/workerutil"
)

type appliedConfigs struct {
	mu   sync.Mutex
	cfgs []*Config
}

func (a *appliedConfigs) apply(c *Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfgs = append(a.cfgs, c)
}

func (a *appliedConfigs) last() (*Config, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.cfgs) == 0 {
		return nil, 0
	}
	return a.cfgs[len(a.cfgs)-1], len(a.cfgs)
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestConfigReloader_ReloadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "hotkeys:\n  step: 7\n")

	level := "debug"
	applied := &appliedConfigs{}
	r := newConfigReloader(path, FlagOverrides{LogLevel: &level}, applied.apply, testutil.Discard())

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	cfg, n := applied.last()
	if n != 1 || cfg.Hotkeys.Step != 7 || cfg.Logging.Level != "debug" {
		t.Fatalf("applied %d configs, last = %+v", n, cfg)
	}
}

func TestConfigReloader_InvalidConfigNotApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "hotkeys:\n  step: 0\n")

	applied := &appliedConfigs{}
	r := newConfigReloader(path, FlagOverrides{}, applied.apply, testutil.Discard())

	if err := r.Reload(); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, n := applied.last(); n != 0 {
		t.Fatalf("invalid config was applied")
	}
}

func TestConfigReloader_WatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "hotkeys:\n  step: 2\n")

	applied := &appliedConfigs{}
	r := newConfigReloader(path, FlagOverrides{}, applied.apply, testutil.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	writeConfig(t, filepath.Join(dir, "notes.txt"), "x")

	// A burst of writes collapses into one reload.
	for _, step := range []string{"3", "4", "5"} {
		writeConfig(t, path, "hotkeys:\n  step: "+step+"\n")
		time.Sleep(10 * time.Millisecond)
	}

	testutil.WaitUntil(t, 3*time.Second, func() bool {
		cfg, _ := applied.last()
		return cfg != nil && cfg.Hotkeys.Step == 5
	}, "config change not applied")

	time.Sleep(2 * configReloadDebounce)
	if _, n := applied.last(); n != 1 {
		t.Fatalf("applied %d times, want 1", n)
	}

	// A broken file keeps the previous config.
	writeConfig(t, path, "hotkeys: [oops\n")
	time.Sleep(3 * configReloadDebounce)
	if cfg, n := applied.last(); n != 1 || cfg.Hotkeys.Step != 5 {
		t.Fatalf("broken config replaced the running one")
	}
}

func TestConfigReloader_WatchSurvivesPanickingApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "hotkeys:\n  step: 2\n")

	logger, logs := testutil.CaptureLogger(t, slog.LevelDebug)
	applied := &appliedConfigs{}
	var once sync.Once
	apply := func(c *Config) {
		once.Do(func() { panic("engine rejected config") })
		applied.apply(c)
	}
	r := newConfigReloader(path, FlagOverrides{}, apply, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- workerutil.Run(ctx, "config-watch", r.Watch, workerutil.Options{
			Logger:         logger,
			InitialBackoff: time.Millisecond,
		})
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("config-watch returned %v", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	writeConfig(t, path, "hotkeys:\n  step: 3\n")

	testutil.WaitUntil(t, 3*time.Second, func() bool {
		return strings.Contains(logs.String(), "task panicked")
	}, "panicking reload not recovered")

	// The restarted watcher picks up the next change.
	time.Sleep(50 * time.Millisecond)
	writeConfig(t, path, "hotkeys:\n  step: 4\n")
	testutil.WaitUntil(t, 3*time.Second, func() bool {
		cfg, _ := applied.last()
		return cfg != nil && cfg.Hotkeys.Step == 4
	}, "config not applied after the watcher restarted")
}
