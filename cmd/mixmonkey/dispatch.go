package main

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Dispatcher executes actions against the VolumeService and reports each
// resulting session state to the Notifier exactly once. Actions from keys and
// IPC arrive through a bounded queue; Submit never blocks.
type Dispatcher struct {
	volume   VolumeService
	notifier Notifier
	logger   *slog.Logger

	step  atomic.Int64
	queue chan Action
}

func NewDispatcher(volume VolumeService, notifier Notifier, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		volume:   volume,
		notifier: notifier,
		logger:   logger.With("component", "dispatch"),
		queue:    make(chan Action, actionQueueSize),
	}
	d.step.Store(defaultVolumeStep)
	return d
}

// SetStep changes the VolumeUp/VolumeDown increment.
func (d *Dispatcher) SetStep(step int) {
	d.step.Store(int64(step))
}

// Submit queues a for execution. It returns false when the queue is full;
// the action is dropped.
func (d *Dispatcher) Submit(a Action) bool {
	select {
	case d.queue <- a:
		return true
	default:
		d.logger.Warn("action queue full, dropping", "action", a.String())
		return false
	}
}

// Run executes queued actions until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-d.queue:
			d.Dispatch(ctx, a)
		}
	}
}

// Dispatch executes a synchronously. Volume service errors are logged, never
// returned.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action) {
	d.logger.Debug("dispatch", "action", a.String())

	var err error
	switch a := a.(type) {
	case VolumeUp:
		err = d.stepVolume(ctx, a.Session, int(d.step.Load()))
	case VolumeDown:
		err = d.stepVolume(ctx, a.Session, -int(d.step.Load()))
	case ToggleMute:
		err = d.toggleMute(ctx, a.Session)
	case ToggleMixerWindow:
		d.notifier.MixerToggled()
	case SetLevel:
		err = d.ApplyLevel(ctx, a.Session, a.Value, true)
	default:
		d.logger.Warn("unhandled action", "action", a.String())
	}
	d.logErr(a, err)
}

func (d *Dispatcher) logErr(a Action, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound):
		d.logger.Warn("session not found", "action", a.String(), "err", err)
	case errors.Is(err, context.Canceled):
	default:
		d.logger.Error("volume service failed", "action", a.String(), "err", err)
	}
}

func (d *Dispatcher) stepVolume(ctx context.Context, session string, delta int) error {
	cur, err := d.volume.SessionVolume(ctx, session)
	if err != nil {
		return err
	}
	st, err := d.volume.SetSessionVolume(ctx, session, cur+delta)
	if err != nil {
		return err
	}
	d.notifier.SessionChanged(st)
	return nil
}

func (d *Dispatcher) toggleMute(ctx context.Context, session string) error {
	muted, err := d.volume.SessionMute(ctx, session)
	if err != nil {
		return err
	}
	muted, err = d.volume.SetSessionMute(ctx, session, !muted)
	if err != nil {
		return err
	}
	vol, err := d.volume.SessionVolume(ctx, session)
	if err != nil {
		return err
	}
	d.notifier.SessionChanged(SessionState{Name: session, Volume: vol, Muted: muted})
	return nil
}

// ApplyLevel applies a signed level: negative mutes, non-negative unmutes,
// and the volume is set to the magnitude either way. With notify false the
// state is applied silently.
func (d *Dispatcher) ApplyLevel(ctx context.Context, session string, value int, notify bool) error {
	mute := value < 0
	if mute {
		value = -value
	}
	muted, err := d.volume.SetSessionMute(ctx, session, mute)
	if err != nil {
		return err
	}
	st, err := d.volume.SetSessionVolume(ctx, session, value)
	if err != nil {
		return err
	}
	st.Muted = muted
	if notify {
		d.notifier.SessionChanged(st)
	}
	return nil
}
