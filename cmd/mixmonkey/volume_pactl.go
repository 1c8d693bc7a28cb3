package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// pactl backend (PulseAudio / PipeWire-pulse)
// ============================================================================
// A session is the set of sink inputs whose application.name (or process
// binary) folds to the session name. "master" is the default sink and
// "other" is every sink input whose application is not a configured session.
// ============================================================================

const pactlTimeout = 2 * time.Second

// pactlRunner executes pactl with args and returns stdout.
type pactlRunner func(ctx context.Context, args ...string) ([]byte, error)

func execPactl(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pactlTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pactl", args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pactl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type pactlChannelVolume struct {
	Value        int    `json:"value"`
	ValuePercent string `json:"value_percent"`
}

type pactlSinkInput struct {
	Index      int                           `json:"index"`
	Mute       bool                          `json:"mute"`
	Volume     map[string]pactlChannelVolume `json:"volume"`
	Properties map[string]string             `json:"properties"`
}

type pactlSink struct {
	Index  int                           `json:"index"`
	Name   string                        `json:"name"`
	Mute   bool                          `json:"mute"`
	Volume map[string]pactlChannelVolume `json:"volume"`
}

// averagePercent averages the per-channel percentages pactl reports.
func averagePercent(channels map[string]pactlChannelVolume) int {
	if len(channels) == 0 {
		return 0
	}
	sum := 0
	for _, ch := range channels {
		p, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(ch.ValuePercent, "%")))
		if err != nil {
			// Fall back to the raw value; 65536 is PA_VOLUME_NORM.
			p = int(float64(ch.Value)*100/65536 + 0.5)
		}
		sum += p
	}
	return (sum + len(channels)/2) / len(channels)
}

type pactlVolumeService struct {
	run pactlRunner

	mu         sync.RWMutex
	configured map[string]struct{}
}

func newPactlVolumeService(run pactlRunner) *pactlVolumeService {
	return &pactlVolumeService{run: run, configured: make(map[string]struct{})}
}

// SetConfiguredSessions records the names excluded from "other".
func (p *pactlVolumeService) SetConfiguredSessions(names []string) {
	configured := make(map[string]struct{}, len(names))
	for _, n := range names {
		key := normalizeSession(n)
		if key == sessionOther || key == sessionMaster {
			continue
		}
		configured[key] = struct{}{}
	}
	p.mu.Lock()
	p.configured = configured
	p.mu.Unlock()
}

func (p *pactlVolumeService) sinkInputs(ctx context.Context) ([]pactlSinkInput, error) {
	out, err := p.run(ctx, "-f", "json", "list", "sink-inputs")
	if err != nil {
		return nil, err
	}
	var inputs []pactlSinkInput
	if err := json.Unmarshal(out, &inputs); err != nil {
		return nil, fmt.Errorf("decode sink-inputs: %w", err)
	}
	return inputs, nil
}

func (p *pactlVolumeService) defaultSink(ctx context.Context) (pactlSink, error) {
	nameOut, err := p.run(ctx, "get-default-sink")
	if err != nil {
		return pactlSink{}, err
	}
	name := strings.TrimSpace(string(nameOut))

	out, err := p.run(ctx, "-f", "json", "list", "sinks")
	if err != nil {
		return pactlSink{}, err
	}
	var sinks []pactlSink
	if err := json.Unmarshal(out, &sinks); err != nil {
		return pactlSink{}, fmt.Errorf("decode sinks: %w", err)
	}
	for _, s := range sinks {
		if s.Name == name {
			return s, nil
		}
	}
	return pactlSink{}, fmt.Errorf("%w: default sink %q", ErrSessionNotFound, name)
}

// matchInputs returns the sink inputs belonging to session name.
func (p *pactlVolumeService) matchInputs(ctx context.Context, name string) ([]pactlSinkInput, error) {
	inputs, err := p.sinkInputs(ctx)
	if err != nil {
		return nil, err
	}

	key := normalizeSession(name)

	p.mu.RLock()
	configured := p.configured
	p.mu.RUnlock()

	var matched []pactlSinkInput
	for _, in := range inputs {
		app := normalizeSession(in.Properties["application.name"])
		bin := normalizeSession(in.Properties["application.process.binary"])

		if key == sessionOther {
			_, byApp := configured[app]
			_, byBin := configured[bin]
			if !byApp && !byBin {
				matched = append(matched, in)
			}
			continue
		}
		if app == key || bin == key {
			matched = append(matched, in)
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return matched, nil
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (p *pactlVolumeService) SessionVolume(ctx context.Context, name string) (int, error) {
	if normalizeSession(name) == sessionMaster {
		sink, err := p.defaultSink(ctx)
		if err != nil {
			return 0, err
		}
		return averagePercent(sink.Volume), nil
	}
	inputs, err := p.matchInputs(ctx, name)
	if err != nil {
		return 0, err
	}
	return averagePercent(inputs[0].Volume), nil
}

func (p *pactlVolumeService) SetSessionVolume(ctx context.Context, name string, percent int) (SessionState, error) {
	percent = clampPercent(percent)
	arg := strconv.Itoa(percent) + "%"

	if normalizeSession(name) == sessionMaster {
		sink, err := p.defaultSink(ctx)
		if err != nil {
			return SessionState{}, err
		}
		if _, err := p.run(ctx, "set-sink-volume", sink.Name, arg); err != nil {
			return SessionState{}, err
		}
		return SessionState{Name: name, Volume: percent, Muted: sink.Mute}, nil
	}

	inputs, err := p.matchInputs(ctx, name)
	if err != nil {
		return SessionState{}, err
	}
	for _, in := range inputs {
		if _, err := p.run(ctx, "set-sink-input-volume", strconv.Itoa(in.Index), arg); err != nil {
			return SessionState{}, err
		}
	}
	return SessionState{Name: name, Volume: percent, Muted: inputs[0].Mute}, nil
}

func (p *pactlVolumeService) SessionMute(ctx context.Context, name string) (bool, error) {
	if normalizeSession(name) == sessionMaster {
		sink, err := p.defaultSink(ctx)
		if err != nil {
			return false, err
		}
		return sink.Mute, nil
	}
	inputs, err := p.matchInputs(ctx, name)
	if err != nil {
		return false, err
	}
	return inputs[0].Mute, nil
}

func (p *pactlVolumeService) SetSessionMute(ctx context.Context, name string, mute bool) (bool, error) {
	if normalizeSession(name) == sessionMaster {
		sink, err := p.defaultSink(ctx)
		if err != nil {
			return false, err
		}
		if _, err := p.run(ctx, "set-sink-mute", sink.Name, boolArg(mute)); err != nil {
			return false, err
		}
		return mute, nil
	}

	inputs, err := p.matchInputs(ctx, name)
	if err != nil {
		return false, err
	}
	for _, in := range inputs {
		if _, err := p.run(ctx, "set-sink-input-mute", strconv.Itoa(in.Index), boolArg(mute)); err != nil {
			return false, err
		}
	}
	return mute, nil
}
