package main

import (
	"context"
	"errors"
)

// ErrHookUnavailable is returned when no global keyboard hook can be
// installed on this system. The hotkey subsystem then runs degraded.
var ErrHookUnavailable = errors.New("keyboard hook unavailable")

// KeyHandler receives every key transition. Returning true asks the hook to
// swallow the event where the platform allows it.
type KeyHandler func(code KeyCode, down bool) (block bool)

// KeyHook delivers global key events until ctx is done. Run returns nil on
// cancellation and an error if the hook could not be installed or was lost.
type KeyHook interface {
	Run(ctx context.Context, onKey KeyHandler) error
}
