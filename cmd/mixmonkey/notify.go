package main

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Notifier receives one call per resolved session state change and one per
// mixer toggle. Implementations must not block the caller.
type Notifier interface {
	SessionChanged(st SessionState)
	MixerToggled()
	LastStates() []SessionState
}

// lastStates remembers the most recent state per session.
type lastStates struct {
	mu     sync.Mutex
	states map[string]SessionState
}

func (l *lastStates) record(st SessionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.states == nil {
		l.states = make(map[string]SessionState)
	}
	l.states[normalizeSession(st.Name)] = st
}

func (l *lastStates) snapshot() []SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SessionState, 0, len(l.states))
	for _, st := range l.states {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b SessionState) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// logNotifier is used when the websocket transport is disabled.
type logNotifier struct {
	logger *slog.Logger
	last   lastStates
}

func newLogNotifier(logger *slog.Logger) *logNotifier {
	return &logNotifier{logger: logger.With("component", "notify")}
}

func (n *logNotifier) SessionChanged(st SessionState) {
	n.last.record(st)
	n.logger.Info("volume changed", "session", st.Name, "volume", st.Volume, "muted", st.Muted)
}

func (n *logNotifier) MixerToggled() {
	n.logger.Info("mixer toggled")
}

func (n *logNotifier) LastStates() []SessionState {
	return n.last.snapshot()
}
