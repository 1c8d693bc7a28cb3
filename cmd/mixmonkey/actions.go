package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// Actions
// ============================================================================
// An Action is a resolved intent from a key chord, the IPC socket or the
// serial device. Actions are immutable values; every concrete type is
// comparable so an Action can be used directly as a map key (per-action
// repeat and debounce state is keyed that way).
// ============================================================================

// Action is a marker interface for everything the dispatcher can execute.
type Action interface {
	actionMarker()
	String() string
}

// VolumeUp raises a session by the configured step.
type VolumeUp struct {
	Session string `json:"session"`
}

func (VolumeUp) actionMarker()    {}
func (a VolumeUp) String() string { return fmt.Sprintf("VolumeUp(%s)", a.Session) }

// VolumeDown lowers a session by the configured step.
type VolumeDown struct {
	Session string `json:"session"`
}

func (VolumeDown) actionMarker()    {}
func (a VolumeDown) String() string { return fmt.Sprintf("VolumeDown(%s)", a.Session) }

// ToggleMute flips a session's mute state.
type ToggleMute struct {
	Session string `json:"session"`
}

func (ToggleMute) actionMarker()    {}
func (a ToggleMute) String() string { return fmt.Sprintf("ToggleMute(%s)", a.Session) }

// ToggleMixerWindow asks the attached UI to show or hide the mixer.
type ToggleMixerWindow struct{}

func (ToggleMixerWindow) actionMarker()  {}
func (ToggleMixerWindow) String() string { return "ToggleMixerWindow()" }

// SetLevel applies a signed level: negative mutes and stores |Value| as the
// level to restore, non-negative unmutes and sets the volume.
type SetLevel struct {
	Session string `json:"session"`
	Value   int    `json:"volume"`
}

func (SetLevel) actionMarker()    {}
func (a SetLevel) String() string { return fmt.Sprintf("SetLevel(%s, %d)", a.Session, a.Value) }

// repeatable reports whether holding the chord for a should auto-repeat.
func repeatable(a Action) bool {
	switch a.(type) {
	case VolumeUp, VolumeDown:
		return true
	default:
		return false
	}
}

// actionSession returns the session an action targets, or "" for none.
func actionSession(a Action) string {
	switch a := a.(type) {
	case VolumeUp:
		return a.Session
	case VolumeDown:
		return a.Session
	case ToggleMute:
		return a.Session
	case SetLevel:
		return a.Session
	default:
		return ""
	}
}

// ============================================================================
// Keybind action names (config file)
// ============================================================================

var errUnknownActionName = errors.New("unknown action")

// parseActionName resolves a config keybind action for session.
func parseActionName(name, session string) (Action, error) {
	switch normalizeSession(name) {
	case "volumeup", "volume_up":
		return VolumeUp{Session: session}, nil
	case "volumedown", "volume_down":
		return VolumeDown{Session: session}, nil
	case "togglemute", "toggle_mute", "mute":
		return ToggleMute{Session: session}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownActionName, name)
	}
}

// ============================================================================
// JSON envelope (IPC wire format)
// ============================================================================

// ActionEnvelope wraps an action with a type discriminator.
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalAction decodes an envelope whose Type names an action.
func UnmarshalAction(env ActionEnvelope) (Action, error) {
	switch env.Type {
	case "volume_up":
		var a VolumeUp
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal VolumeUp: %w", err)
		}
		return a, requireSession(a.Session)

	case "volume_down":
		var a VolumeDown
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal VolumeDown: %w", err)
		}
		return a, requireSession(a.Session)

	case "toggle_mute":
		var a ToggleMute
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal ToggleMute: %w", err)
		}
		return a, requireSession(a.Session)

	case "toggle_mixer":
		return ToggleMixerWindow{}, nil

	case "set_volume":
		var a SetLevel
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetLevel: %w", err)
		}
		if a.Value < -100 || a.Value > 100 {
			return nil, fmt.Errorf("volume %d out of range [-100, 100]", a.Value)
		}
		return a, requireSession(a.Session)

	default:
		return nil, fmt.Errorf("unknown action type: %q", env.Type)
	}
}

// MarshalAction encodes an action into its envelope form.
func MarshalAction(a Action) ([]byte, error) {
	var env ActionEnvelope

	switch a.(type) {
	case VolumeUp:
		env.Type = "volume_up"
	case VolumeDown:
		env.Type = "volume_down"
	case ToggleMute:
		env.Type = "toggle_mute"
	case ToggleMixerWindow:
		env.Type = "toggle_mixer"
		return json.Marshal(env)
	case SetLevel:
		env.Type = "set_volume"
	default:
		return nil, fmt.Errorf("unknown action: %T", a)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	env.Data = data
	return json.Marshal(env)
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

func requireSession(s string) error {
	if normalizeSession(s) == "" {
		return errors.New("session must not be empty")
	}
	return nil
}
