package main

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"mixmonkey/internal/testutil"
)

func testParse(s string) (Chord, error) {
	return parseChordWith(s, testKeyNames)
}

func TestRegistry_RegisterRejectsEmptyChord(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Chord{}, false, VolumeUp{Session: "a"}); !errors.Is(err, ErrEmptyChord) {
		t.Fatalf("err = %v, want ErrEmptyChord", err)
	}
	if len(r.Table()) != 0 {
		t.Fatalf("table should stay empty")
	}
}

func TestRegistry_RegisterAndClear(t *testing.T) {
	r := NewRegistry()
	c := mustChord(t, "Ctrl+Up")
	if err := r.Register(c, false, VolumeUp{Session: "chrome"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	before := r.Table()
	if err := r.Register(mustChord(t, "Ctrl+Down"), false, VolumeDown{Session: "chrome"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if len(before) != 1 {
		t.Fatalf("earlier table snapshot was mutated: len=%d", len(before))
	}
	if got := r.Chords(); len(got) != 2 || got[0] != "Ctrl+Up -> VolumeUp(chrome)" {
		t.Fatalf("Chords() = %v", got)
	}

	r.Clear()
	if len(r.Table()) != 0 {
		t.Fatalf("Clear left %d entries", len(r.Table()))
	}
}

func TestRegistry_Rebuild(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mixer = MixerConfig{Enabled: true, Hotkey: "Ctrl+Shift+M"}
	cfg.Sessions = []SessionConfig{
		{Name: "chrome", Keybinds: []KeybindConfig{
			{Key: "Ctrl+Up", Action: "VolumeUp"},
			{Key: "Ctrl+Hyper", Action: "VolumeDown"},
		}},
	}

	logger, logs := testutil.CaptureLogger(t, slog.LevelDebug)
	r := NewRegistry()
	r.rebuildWith(&cfg, logger, testParse)

	table := r.Table()
	// mixer + 3 media keys + 1 valid keybind
	if len(table) != 5 {
		t.Fatalf("len(table) = %d, want 5: %v", len(table), r.Chords())
	}

	if table[0].Action != (ToggleMixerWindow{}) || !table[0].Block {
		t.Fatalf("first entry should be the blocking mixer hotkey, got %+v", table[0])
	}
	want := []Action{
		VolumeUp{Session: "master"},
		VolumeDown{Session: "master"},
		ToggleMute{Session: "master"},
		VolumeUp{Session: "chrome"},
	}
	for i, a := range want {
		if table[i+1].Action != a {
			t.Fatalf("table[%d].Action = %v, want %v", i+1, table[i+1].Action, a)
		}
		if table[i+1].Block {
			t.Fatalf("table[%d] should not block", i+1)
		}
	}

	if !strings.Contains(logs.String(), "skipping hotkey") || !strings.Contains(logs.String(), "Hyper") {
		t.Fatalf("expected warning for unknown key, logs:\n%s", logs.String())
	}
}

func TestRegistry_RebuildHotkeysDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hotkeys.Enabled = false
	cfg.Sessions = []SessionConfig{{Name: "a", Keybinds: []KeybindConfig{{Key: "Ctrl+Up", Action: "VolumeUp"}}}}

	r := NewRegistry()
	r.Register(mustChord(t, "Alt+M"), false, ToggleMute{Session: "a"})
	r.rebuildWith(&cfg, testutil.Discard(), testParse)

	if len(r.Table()) != 0 {
		t.Fatalf("disabled hotkeys should empty the table, got %v", r.Chords())
	}
}

func TestRegistry_ConcurrentReadersSeeWholeTables(t *testing.T) {
	cfgA := DefaultConfig()
	cfgA.Hotkeys.MediaKeys = false
	cfgA.Sessions = []SessionConfig{{Name: "a", Keybinds: []KeybindConfig{
		{Key: "Ctrl+Up", Action: "VolumeUp"},
		{Key: "Ctrl+Down", Action: "VolumeDown"},
	}}}
	cfgB := DefaultConfig()

	r := NewRegistry()
	logger := testutil.Discard()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				r.rebuildWith(&cfgA, logger, testParse)
			} else {
				r.rebuildWith(&cfgB, logger, testParse)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		// Both configs produce exactly 0, 2 or 3 entries; anything else is a torn read.
		if n := len(r.Table()); n != 0 && n != 2 && n != 3 {
			t.Fatalf("observed partial table of %d entries", n)
		}
	}
}
