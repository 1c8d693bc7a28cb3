package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"mixmonkey/internal/testutil"
)

// fakeHooks is a KeyHook factory. Each hook blocks until canceled, or fails
// at once with err.
type fakeHooks struct {
	mu      sync.Mutex
	created int
	err     error
	devices [][]string
}

func (f *fakeHooks) newHook(cfg HotkeysConfig, _ *slog.Logger) KeyHook {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.devices = append(f.devices, cfg.Devices)
	return &fakeHook{err: f.err}
}

func (f *fakeHooks) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeHooks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

type fakeHook struct{ err error }

func (h *fakeHook) Run(ctx context.Context, _ KeyHandler) error {
	if h.err != nil {
		return h.err
	}
	<-ctx.Done()
	return nil
}

func engineTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Hotkeys.MediaKeys = false
	cfg.Hotkeys.HoldDelayMS = 60
	cfg.Hotkeys.RepeatIntervalMS = 30
	cfg.Hotkeys.PollMS = 5
	cfg.Hotkeys.DebounceMS = 20
	cfg.Mixer = MixerConfig{Enabled: true, Hotkey: "Ctrl+Shift+M"}
	cfg.Sessions = []SessionConfig{
		{Name: "chrome", Keybinds: []KeybindConfig{
			{Key: "Ctrl+Up", Action: "VolumeUp"},
			{Key: "Alt+Up", Action: "VolumeUp"},
			{Key: "Ctrl+Down", Action: "VolumeDown"},
			{Key: "Ctrl+M", Action: "ToggleMute"},
		}},
	}
	return &cfg
}

type engineHarness struct {
	engine *Engine
	vol    *MemoryVolumeService
	notify *recordingNotifier
	hooks  *fakeHooks
	cancel context.CancelFunc
	done   chan error
}

func startEngine(t *testing.T, cfg *Config, hooks *fakeHooks) *engineHarness {
	t.Helper()
	vol := NewMemoryVolumeService(nil)
	n := &recordingNotifier{}
	e := NewEngine(cfg, EngineDeps{
		Volume:   vol,
		Notifier: n,
		NewHook:  hooks.newHook,
		OpenSerial: func(SerialConfig) (serialPort, string, error) {
			return nil, "", errors.New("no serial in tests")
		},
	}, testutil.Discard())
	// Use the fixed test key table rather than the platform one.
	e.registry.rebuildWith(cfg, testutil.Discard(), testParse)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	h := &engineHarness{engine: e, vol: vol, notify: n, hooks: hooks, cancel: cancel, done: done}
	t.Cleanup(h.stop)
	return h
}

func (h *engineHarness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
}

func (h *engineHarness) volume(t *testing.T, session string) int {
	t.Helper()
	v, err := h.vol.SessionVolume(context.Background(), session)
	if err != nil {
		t.Fatalf("SessionVolume(%s): %v", session, err)
	}
	return v
}

func key(name string) KeyCode { return testKeyNames[name] }

func TestEngine_ChordFiresAndRepeatsWhileHeld(t *testing.T) {
	cfg := engineTestConfig()
	h := startEngine(t, cfg, &fakeHooks{})
	e := h.engine

	e.HandleKey(key("CTRL"), true)
	if block := e.HandleKey(key("UP"), true); block {
		t.Fatalf("volume chord should not block")
	}
	testutil.WaitUntil(t, time.Second, func() bool { return h.volume(t, "chrome") == 52 }, "first step not applied")

	time.Sleep(cfg.Hotkeys.HoldDelay() + 3*cfg.Hotkeys.RepeatInterval())
	e.HandleKey(key("UP"), false)
	time.Sleep(3 * cfg.Hotkeys.PollPeriod())
	held := h.volume(t, "chrome")
	if held < 56 {
		t.Fatalf("volume after hold = %d, want at least 56", held)
	}

	time.Sleep(cfg.Hotkeys.HoldDelay() + 2*cfg.Hotkeys.RepeatInterval())
	if got := h.volume(t, "chrome"); got != held {
		t.Fatalf("volume kept changing after release: %d -> %d", held, got)
	}
	e.HandleKey(key("CTRL"), false)
}

func TestEngine_OSAutoRepeatDoesNotRefire(t *testing.T) {
	cfg := engineTestConfig()
	h := startEngine(t, cfg, &fakeHooks{})
	e := h.engine

	e.HandleKey(key("CTRL"), true)
	e.HandleKey(key("M"), true)
	for i := 0; i < 5; i++ {
		time.Sleep(cfg.Hotkeys.Debounce())
		e.HandleKey(key("M"), true)
	}
	e.HandleKey(key("M"), false)
	e.HandleKey(key("CTRL"), false)

	testutil.WaitUntil(t, time.Second, func() bool { return len(h.notify.Changes()) == 1 }, "mute not applied")
	time.Sleep(50 * time.Millisecond)
	if n := len(h.notify.Changes()); n != 1 {
		t.Fatalf("ToggleMute fired %d times, want 1", n)
	}
}

func TestEngine_ChordOrderIndependent(t *testing.T) {
	cfg := engineTestConfig()
	h := startEngine(t, cfg, &fakeHooks{})
	e := h.engine

	e.HandleKey(key("DOWN"), true)
	e.HandleKey(key("CTRL"), true)
	e.HandleKey(key("CTRL"), false)
	e.HandleKey(key("DOWN"), false)

	testutil.WaitUntil(t, time.Second, func() bool { return h.volume(t, "chrome") == 48 }, "chord pressed in reverse order did not fire")
}

func TestEngine_BlockingChord(t *testing.T) {
	cfg := engineTestConfig()
	h := startEngine(t, cfg, &fakeHooks{})
	e := h.engine

	if e.HandleKey(key("CTRL"), true) || e.HandleKey(key("SHIFT"), true) {
		t.Fatalf("modifiers alone must not be blocked")
	}
	if !e.HandleKey(key("M"), true) {
		t.Fatalf("mixer chord should be blocked")
	}
	// OS auto-repeat of the completing key stays blocked.
	if !e.HandleKey(key("M"), true) {
		t.Fatalf("auto-repeat of a blocking chord should be blocked")
	}
	e.HandleKey(key("M"), false)
	e.HandleKey(key("SHIFT"), false)
	e.HandleKey(key("CTRL"), false)

	testutil.WaitUntil(t, time.Second, func() bool { return h.notify.Toggles() == 1 }, "mixer toggle not delivered")

	// Ctrl+M is also satisfied by Ctrl+Shift+M, so it fired alongside.
	testutil.WaitUntil(t, time.Second, func() bool { return len(h.notify.Changes()) == 1 }, "mute not applied")
}

func TestEngine_SharedActionKeepsRepeating(t *testing.T) {
	e := startEngine(t, engineTestConfig(), &fakeHooks{}).engine

	e.HandleKey(key("CTRL"), true)
	e.HandleKey(key("ALT"), true)
	e.HandleKey(key("UP"), true)
	if !e.scheduler.IsActive(VolumeUp{Session: "chrome"}) {
		t.Fatalf("VolumeUp should be held")
	}

	// Alt+Up still holds the same action.
	e.HandleKey(key("CTRL"), false)
	if !e.scheduler.IsActive(VolumeUp{Session: "chrome"}) {
		t.Fatalf("releasing one of two chords for an action stopped it")
	}

	e.HandleKey(key("ALT"), false)
	if e.scheduler.IsActive(VolumeUp{Session: "chrome"}) {
		t.Fatalf("action still held after both chords released")
	}
	e.HandleKey(key("UP"), false)
}

func TestEngine_ApplyConfigRestartsHookOnDeviceChange(t *testing.T) {
	cfg := engineTestConfig()
	hooks := &fakeHooks{}
	h := startEngine(t, cfg, hooks)
	e := h.engine

	testutil.WaitUntil(t, time.Second, func() bool { return e.Status().Hook }, "hook not running")

	e.HandleKey(key("CTRL"), true)

	// Same devices: no restart.
	same := *cfg
	e.ApplyConfig(&same)
	time.Sleep(30 * time.Millisecond)
	if hooks.count() != 1 {
		t.Fatalf("hook restarted without a device change")
	}

	next := *cfg
	next.Hotkeys.Devices = []string{"/dev/input/event7"}
	e.ApplyConfig(&next)
	testutil.WaitUntil(t, time.Second, func() bool { return hooks.count() == 2 }, "hook not restarted")

	if e.tracker.IsPressed(key("CTRL")) {
		t.Fatalf("held keys should be forgotten across a hook restart")
	}
	if e.Config() != &next {
		t.Fatalf("Config() did not return the applied snapshot")
	}
}

func TestEngine_HookUnavailableWaitsForConfig(t *testing.T) {
	cfg := engineTestConfig()
	hooks := &fakeHooks{err: ErrHookUnavailable}
	h := startEngine(t, cfg, hooks)
	e := h.engine

	testutil.WaitUntil(t, time.Second, func() bool { return hooks.count() == 1 }, "hook not attempted")
	time.Sleep(50 * time.Millisecond)
	if hooks.count() != 1 {
		t.Fatalf("unavailable hook retried without a config change")
	}
	if e.Status().Hook {
		t.Fatalf("status reports a hook that failed to install")
	}

	hooks.setErr(nil)
	next := *cfg
	next.Hotkeys.Devices = []string{"/dev/input/event3"}
	e.ApplyConfig(&next)
	testutil.WaitUntil(t, time.Second, func() bool { return e.Status().Hook }, "hook not installed after config change")
}

func TestEngine_SubmitAndStatus(t *testing.T) {
	cfg := engineTestConfig()
	h := startEngine(t, cfg, &fakeHooks{})
	e := h.engine

	if !e.Submit(SetLevel{Session: "chrome", Value: -30}) {
		t.Fatalf("Submit rejected")
	}
	testutil.WaitUntil(t, time.Second, func() bool { return len(h.notify.Changes()) == 1 }, "action not executed")

	st := e.Status()
	if len(st.Hotkeys) != 5 {
		t.Fatalf("hotkeys = %v, want 5 entries", st.Hotkeys)
	}
	if len(st.Sessions) != 1 || st.Sessions[0] != (SessionState{Name: "chrome", Volume: 30, Muted: true}) {
		t.Fatalf("sessions = %+v", st.Sessions)
	}
	if st.Serial.Enabled {
		t.Fatalf("serial should be disabled")
	}
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	cfg := engineTestConfig()
	h := startEngine(t, cfg, &fakeHooks{})

	h.cancel()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	h.done <- nil
}
