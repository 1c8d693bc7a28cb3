package main

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

// Registration binds a chord to an action. Block asks the hook to swallow
// the triggering key event when the chord fires.
type Registration struct {
	Chord  Chord
	Block  bool
	Action Action
}

// Registry is the hotkey table. Readers (the key callback) Load the current
// table without locking; writers build a new slice and swap the pointer, so a
// reader always sees a complete table.
type Registry struct {
	mu    sync.Mutex // serializes writers
	table atomic.Pointer[[]Registration]
}

func NewRegistry() *Registry {
	r := &Registry{}
	empty := []Registration{}
	r.table.Store(&empty)
	return r
}

// Table returns the current registrations. The slice must not be modified.
func (r *Registry) Table() []Registration {
	return *r.table.Load()
}

// Register appends one registration. An empty chord returns ErrEmptyChord.
func (r *Registry) Register(chord Chord, block bool, action Action) error {
	if chord.IsZero() {
		return ErrEmptyChord
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.table.Load()
	next := make([]Registration, len(old), len(old)+1)
	copy(next, old)
	next = append(next, Registration{Chord: chord, Block: block, Action: action})
	r.table.Store(&next)
	return nil
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	empty := []Registration{}
	r.table.Store(&empty)
}

// Chords returns the registered chords as "chord -> action" strings.
func (r *Registry) Chords() []string {
	return lo.Map(r.Table(), func(reg Registration, _ int) string {
		return reg.Chord.String() + " -> " + reg.Action.String()
	})
}

// Rebuild replaces the table from cfg in a single swap. Hotkey strings that
// fail to parse are logged and skipped; the rest of the table still loads.
func (r *Registry) Rebuild(cfg *Config, logger *slog.Logger) {
	r.rebuildWith(cfg, logger, ParseChord)
}

func (r *Registry) rebuildWith(cfg *Config, logger *slog.Logger, parse func(string) (Chord, error)) {
	var next []Registration

	add := func(key string, block bool, action Action) {
		chord, err := parse(key)
		if err != nil {
			logger.Warn("skipping hotkey", "key", key, "action", action.String(), "err", err)
			return
		}
		next = append(next, Registration{Chord: chord, Block: block, Action: action})
	}

	if cfg.Hotkeys.Enabled {
		if cfg.Mixer.Enabled && cfg.Mixer.Hotkey != "" {
			add(cfg.Mixer.Hotkey, true, ToggleMixerWindow{})
		}

		if cfg.Hotkeys.MediaKeys {
			session := cfg.Hotkeys.MediaSession
			add("VolumeUp", false, VolumeUp{Session: session})
			add("VolumeDown", false, VolumeDown{Session: session})
			add("VolumeMute", false, ToggleMute{Session: session})
		}

		for _, s := range cfg.Sessions {
			for _, kb := range s.Keybinds {
				action, err := parseActionName(kb.Action, s.Name)
				if err != nil {
					logger.Warn("skipping keybind", "session", s.Name, "key", kb.Key, "err", err)
					continue
				}
				add(kb.Key, false, action)
			}
		}
	}

	if next == nil {
		next = []Registration{}
	}

	r.mu.Lock()
	r.table.Store(&next)
	r.mu.Unlock()

	logger.Info("hotkeys registered", "count", len(next))
}
