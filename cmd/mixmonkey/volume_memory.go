package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MemoryVolumeService keeps session volumes in process memory. It backs
// -dry-run and the degraded mode used when no audio server is reachable.
// Configured sessions (and "master") exist from the start at volume 50;
// unknown names report ErrSessionNotFound.
type MemoryVolumeService struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
}

// NewMemoryVolumeService seeds the service with states keyed by any-case name.
func NewMemoryVolumeService(seed map[string]SessionState) *MemoryVolumeService {
	m := &MemoryVolumeService{sessions: make(map[string]*SessionState)}
	m.ensure(sessionMaster)
	for name, st := range seed {
		if st.Name == "" {
			st.Name = name
		}
		m.sessions[normalizeSession(name)] = &st
	}
	return m
}

func (m *MemoryVolumeService) ensure(name string) {
	key := normalizeSession(name)
	if _, ok := m.sessions[key]; !ok {
		m.sessions[key] = &SessionState{Name: name, Volume: 50}
	}
}

// SetConfiguredSessions creates any configured session not seen before.
func (m *MemoryVolumeService) SetConfiguredSessions(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.ensure(n)
	}
}

func (m *MemoryVolumeService) lookup(name string) (*SessionState, error) {
	st, ok := m.sessions[normalizeSession(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return st, nil
}

func (m *MemoryVolumeService) SessionVolume(_ context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	return st.Volume, nil
}

func (m *MemoryVolumeService) SetSessionVolume(_ context.Context, name string, percent int) (SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(name)
	if err != nil {
		return SessionState{}, err
	}
	st.Volume = clampPercent(percent)
	return SessionState{Name: name, Volume: st.Volume, Muted: st.Muted}, nil
}

func (m *MemoryVolumeService) SessionMute(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(name)
	if err != nil {
		return false, err
	}
	return st.Muted, nil
}

func (m *MemoryVolumeService) SetSessionMute(_ context.Context, name string, mute bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(name)
	if err != nil {
		return false, err
	}
	st.Muted = mute
	return st.Muted, nil
}

// States returns every session sorted by name.
func (m *MemoryVolumeService) States() []SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionState, 0, len(m.sessions))
	for _, st := range m.sessions {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b SessionState) int { return strings.Compare(a.Name, b.Name) })
	return out
}
