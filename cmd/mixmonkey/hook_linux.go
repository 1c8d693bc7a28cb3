//go:build linux

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"syscall"

	"github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"
)

// inputEvent mirrors struct input_event on 64-bit Linux:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evKey        = 0x01
	keyValueUp   = 0
	epollTimeout = 200 // ms; bounds how long cancellation waits
)

// evdevHook reads key events from evdev nodes. Linux has no per-event
// swallow without grabbing the whole device, so block results are ignored.
type evdevHook struct {
	devices []string
	logger  *slog.Logger
}

func newPlatformHook(cfg HotkeysConfig, logger *slog.Logger) KeyHook {
	return &evdevHook{
		devices: slices.Clone(cfg.Devices),
		logger:  logger.With("component", "hook"),
	}
}

// discoverKeyboards lists evdev nodes that report keyboard or media keys.
func discoverKeyboards(logger *slog.Logger) ([]string, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	var out []string
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			logger.Debug("skipping input device", "path", p.Path, "err", err)
			continue
		}
		codes := dev.CapableEvents(evdev.EV_KEY)
		dev.Close()

		if slices.Contains(codes, evdev.KEY_A) || slices.Contains(codes, evdev.KEY_VOLUMEUP) {
			logger.Debug("keyboard found", "path", p.Path, "name", p.Name)
			out = append(out, p.Path)
		}
	}
	return out, nil
}

func (h *evdevHook) Run(ctx context.Context, onKey KeyHandler) error {
	paths := h.devices
	if len(paths) == 0 {
		found, err := discoverKeyboards(h.logger)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHookUnavailable, err)
		}
		paths = found
	}

	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			h.logger.Warn("cannot open input device", "path", p, "err", err)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no readable keyboard devices (is the user in the input group?)", ErrHookUnavailable)
	}

	h.logger.Info("keyboard hook started", "devices", len(files))
	return readKeyEventsEpoll(ctx, files, onKey, h.logger)
}

// readKeyEventsEpoll multiplexes every device on one epoll instance and
// feeds EV_KEY events to onKey. Devices that hang up are dropped; the loop
// fails once none are left.
func readKeyEventsEpoll(ctx context.Context, files []*os.File, onKey KeyHandler, logger *slog.Logger) error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f
		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize*64)

	for ctx.Err() == nil {
		n, err := unix.EpollWait(epfd, epollEvents, epollTimeout)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				logger.Warn("input device lost", "path", f.Name())
				unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
				delete(fdToFile, fd)
				if len(fdToFile) == 0 {
					return errors.New("all input devices lost")
				}
				continue
			}

			m, err := f.Read(buf)
			if err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			// Decode in place; the hot path does not allocate.
			for off := 0; off+evSize <= m; off += evSize {
				ev := buf[off : off+evSize]
				if binary.LittleEndian.Uint16(ev[16:18]) != evKey {
					continue
				}
				code := binary.LittleEndian.Uint16(ev[18:20])
				value := int32(binary.LittleEndian.Uint32(ev[20:24]))
				// value 2 is kernel auto-repeat; the tracker ignores it as a
				// press of an already-held key.
				onKey(KeyCode(code), value != keyValueUp)
			}
		}
	}
	return nil
}
