package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"golang.org/x/text/cases"
)

// ============================================================================
// Volume Service boundary
// ============================================================================
// The daemon never talks to the audio server directly; everything goes through
// VolumeService. Session names are matched case-insensitively. Two names are
// reserved: "master" (the output device) and "other" (every running session
// that is not configured by name).
// ============================================================================

// ErrSessionNotFound is returned when no running audio session matches a name.
var ErrSessionNotFound = errors.New("session not found")

// SessionState is the resolved state of one logical session.
type SessionState struct {
	Name   string `json:"session"`
	Volume int    `json:"volume"`
	Muted  bool   `json:"muted"`
}

// VolumeService is the audio control boundary.
type VolumeService interface {
	SessionVolume(ctx context.Context, name string) (int, error)
	SetSessionVolume(ctx context.Context, name string, percent int) (SessionState, error)
	SessionMute(ctx context.Context, name string) (bool, error)
	SetSessionMute(ctx context.Context, name string, mute bool) (bool, error)
}

// sessionConfigurer is implemented by services that need the configured
// session list to resolve "other".
type sessionConfigurer interface {
	SetConfiguredSessions(names []string)
}

// normalizeSession folds case and trims a session name so that "Chrome ",
// "chrome" and "CHROME" compare equal.
func normalizeSession(name string) string {
	// A Caser is stateful; never share one between goroutines.
	return cases.Fold().String(strings.TrimSpace(name))
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}

// newVolumeService selects the backend named in cfg.
func newVolumeService(cfg VolumeConfig, logger *slog.Logger) (VolumeService, error) {
	switch cfg.Backend {
	case VolumeBackendMemory:
		logger.Info("volume backend: memory")
		return NewMemoryVolumeService(nil), nil

	case VolumeBackendPactl:
		if _, err := exec.LookPath("pactl"); err != nil {
			return nil, fmt.Errorf("volume backend pactl: %w", err)
		}
		logger.Info("volume backend: pactl")
		return newPactlVolumeService(execPactl), nil

	case VolumeBackendAuto, "":
		if _, err := exec.LookPath("pactl"); err == nil {
			logger.Info("volume backend: pactl")
			return newPactlVolumeService(execPactl), nil
		}
		logger.Error("pactl not found, volume changes are simulated in memory")
		return NewMemoryVolumeService(nil), nil

	default:
		return nil, fmt.Errorf("unknown volume backend %q", cfg.Backend)
	}
}
