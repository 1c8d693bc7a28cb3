package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"mixmonkey/internal/workerutil"
)

// ============================================================================
// Engine
// ============================================================================
// The Engine owns every piece of mutable input state: the pressed-key
// tracker, the hotkey registry, the repeat scheduler, the dispatcher queue
// and the serial reconciler. ApplyConfig is the only way to change it from
// outside; HandleKey is the hook's entry point.
// ============================================================================

// EngineDeps are the external boundaries the Engine talks to.
type EngineDeps struct {
	Volume     VolumeService
	Notifier   Notifier
	NewHook    func(HotkeysConfig, *slog.Logger) KeyHook
	OpenSerial func(SerialConfig) (serialPort, string, error)
}

type Engine struct {
	logger *slog.Logger
	cfg    atomic.Pointer[Config]

	tracker    KeyTracker
	registry   *Registry
	scheduler  *RepeatScheduler
	dispatcher *Dispatcher
	serial     *SerialReconciler

	volume      VolumeService
	notifier    Notifier
	newHook     func(HotkeysConfig, *slog.Logger) KeyHook
	hookRestart chan struct{}
	hookRunning atomic.Bool
}

// NewEngine builds an Engine and applies cfg. cfg must already be validated.
func NewEngine(cfg *Config, deps EngineDeps, logger *slog.Logger) *Engine {
	if deps.NewHook == nil {
		deps.NewHook = newPlatformHook
	}
	if deps.OpenSerial == nil {
		deps.OpenSerial = openSerialPort
	}

	e := &Engine{
		logger:      logger.With("component", "engine"),
		registry:    NewRegistry(),
		volume:      deps.Volume,
		notifier:    deps.Notifier,
		newHook:     deps.NewHook,
		hookRestart: make(chan struct{}, 1),
	}
	e.dispatcher = NewDispatcher(deps.Volume, deps.Notifier, logger)
	e.scheduler = NewRepeatScheduler(e.fire, repeatTimingFromConfig(cfg.Hotkeys))
	e.serial = NewSerialReconciler(cfg, deps.OpenSerial, e.dispatcher, logger)

	e.cfg.Store(cfg)
	e.applyLocal(cfg)
	return e
}

// fire is the scheduler's sink. It must not block: it runs on the hook
// callback or a repeat ticker.
func (e *Engine) fire(a Action) {
	e.dispatcher.Submit(a)
}

// Submit queues an action from a non-key source (IPC). It returns false when
// the dispatcher queue is full.
func (e *Engine) Submit(a Action) bool {
	return e.dispatcher.Submit(a)
}

// Config returns the current snapshot.
func (e *Engine) Config() *Config {
	return e.cfg.Load()
}

// ApplyConfig publishes a new snapshot: the hotkey table is rebuilt, the
// serial connection is reopened and, if the device set changed, the key hook
// is restarted.
func (e *Engine) ApplyConfig(cfg *Config) {
	old := e.cfg.Swap(cfg)
	e.applyLocal(cfg)
	e.serial.Reset(cfg)

	if old.Hotkeys.Enabled != cfg.Hotkeys.Enabled || !slices.Equal(old.Hotkeys.Devices, cfg.Hotkeys.Devices) {
		select {
		case e.hookRestart <- struct{}{}:
		default:
		}
	}
	if old.Volume.Backend != cfg.Volume.Backend {
		e.logger.Warn("volume backend change needs a restart", "running", old.Volume.Backend, "configured", cfg.Volume.Backend)
	}
	e.logger.Info("config applied", "sessions", len(cfg.Sessions))
}

func (e *Engine) applyLocal(cfg *Config) {
	if sc, ok := e.volume.(sessionConfigurer); ok {
		sc.SetConfiguredSessions(cfg.SessionNames())
	}
	e.dispatcher.SetStep(cfg.Hotkeys.Step)
	e.scheduler.SetTiming(repeatTimingFromConfig(cfg.Hotkeys))
	e.registry.Rebuild(cfg, e.logger)
}

// HandleKey is the KeyHandler given to the hook. It records the transition
// and fires every chord the press completes. The return value asks the hook
// to swallow the event.
func (e *Engine) HandleKey(code KeyCode, down bool) bool {
	if !e.tracker.OnKeyEvent(code, down) {
		// OS auto-repeat of a held key: fire nothing, but keep swallowing it
		// if it belongs to a blocking chord.
		if down {
			return e.blockingHeld(code)
		}
		return false
	}

	table := e.registry.Table()
	snap := e.tracker.Snapshot()

	if down {
		block := false
		for i := range table {
			reg := &table[i]
			if !reg.Chord.Contains(code) || !IsSatisfied(reg.Chord, &snap) {
				continue
			}
			if repeatable(reg.Action) {
				e.scheduler.Press(reg.Action)
			} else {
				e.scheduler.Trigger(reg.Action)
			}
			block = block || reg.Block
		}
		return block
	}

	for i := range table {
		reg := &table[i]
		if !reg.Chord.Contains(code) || !repeatable(reg.Action) {
			continue
		}
		if !e.actionStillHeld(table, reg.Action, &snap) {
			e.scheduler.Release(reg.Action)
		}
	}
	return false
}

// actionStillHeld reports whether another chord bound to a is still satisfied.
func (e *Engine) actionStillHeld(table []Registration, a Action, snap *KeySet) bool {
	for i := range table {
		if table[i].Action == a && IsSatisfied(table[i].Chord, snap) {
			return true
		}
	}
	return false
}

func (e *Engine) blockingHeld(code KeyCode) bool {
	table := e.registry.Table()
	snap := e.tracker.Snapshot()
	for i := range table {
		if table[i].Block && table[i].Chord.Contains(code) && IsSatisfied(table[i].Chord, &snap) {
			return true
		}
	}
	return false
}

// EngineStatus is the IPC status payload.
type EngineStatus struct {
	Hook     bool           `json:"hook_running"`
	Hotkeys  []string       `json:"hotkeys"`
	Serial   SerialStatus   `json:"serial"`
	Sessions []SessionState `json:"sessions"`
}

func (e *Engine) Status() EngineStatus {
	return EngineStatus{
		Hook:     e.hookRunning.Load(),
		Hotkeys:  e.registry.Chords(),
		Serial:   e.serial.Status(),
		Sessions: e.notifier.LastStates(),
	}
}

// Run starts the engine's tasks, each inside a panic-restarting boundary,
// and blocks until ctx is done or a task gives up.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	opts := workerutil.Options{Logger: e.logger}

	tasks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"dispatcher", e.dispatcher.Run},
		{"repeat", e.scheduler.Run},
		{"serial", e.serial.Run},
		{"hook", e.runHook},
	}
	for _, t := range tasks {
		g.Go(func() error { return workerutil.Run(ctx, t.name, t.fn, opts) })
	}
	return g.Wait()
}

// runHook keeps the key hook installed. A hook that cannot be installed
// leaves hotkeys disabled until the next config change; a hook that fails
// later is retried.
func (e *Engine) runHook(ctx context.Context) error {
	for {
		cfg := e.cfg.Load()
		if !cfg.Hotkeys.Enabled {
			e.logger.Info("hotkeys disabled")
			if !e.waitHookRestart(ctx, 0) {
				return nil
			}
			continue
		}

		hctx, cancel := context.WithCancel(ctx)
		hook := e.newHook(cfg.Hotkeys, e.logger)
		errCh := make(chan error, 1)
		go func() {
			errCh <- workerutil.Run(hctx, "hook-loop", func(c context.Context) error {
				return hook.Run(c, e.HandleKey)
			}, workerutil.Options{Logger: e.logger, MaxRetries: 1})
		}()
		e.hookRunning.Store(true)

		var err error
		restart := false
		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			e.hookRunning.Store(false)
			return nil
		case <-e.hookRestart:
			cancel()
			<-errCh
			restart = true
		case err = <-errCh:
			cancel()
		}
		e.hookRunning.Store(false)

		// Releases that happen while no hook is installed are never seen.
		e.tracker.Reset()
		e.scheduler.ReleaseAll()

		if restart {
			continue
		}
		if err == nil {
			err = errors.New("hook stopped")
		}
		if errors.Is(err, ErrHookUnavailable) {
			e.logger.Error("keyboard hook unavailable, hotkeys disabled", "err", err)
			if !e.waitHookRestart(ctx, 0) {
				return nil
			}
			continue
		}
		e.logger.Error("keyboard hook failed, retrying", "err", err, "delay", defaultReconnectDelay)
		if !e.waitHookRestart(ctx, defaultReconnectDelay) {
			return nil
		}
	}
}

// waitHookRestart blocks until a restart is requested, delay elapses (if
// positive) or ctx is done. It returns false for ctx.
func (e *Engine) waitHookRestart(ctx context.Context, delay time.Duration) bool {
	var timeout <-chan time.Time
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-e.hookRestart:
		return true
	case <-timeout:
		return true
	}
}
