//go:build !linux && !windows

package main

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

type unsupportedHook struct{}

func newPlatformHook(_ HotkeysConfig, _ *slog.Logger) KeyHook {
	return unsupportedHook{}
}

func (unsupportedHook) Run(context.Context, KeyHandler) error {
	return fmt.Errorf("%w on %s", ErrHookUnavailable, runtime.GOOS)
}
