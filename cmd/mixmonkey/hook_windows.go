//go:build windows

package main

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

// llKeyboardHook installs WH_KEYBOARD_LL on a locked OS thread and pumps
// messages there; the hook callback runs on that thread.
type llKeyboardHook struct {
	logger *slog.Logger
}

func newPlatformHook(_ HotkeysConfig, logger *slog.Logger) KeyHook {
	return &llKeyboardHook{logger: logger.With("component", "hook")}
}

func (h *llKeyboardHook) Run(ctx context.Context, onKey KeyHandler) error {
	installed := make(chan error, 1)
	threadID := make(chan uint32, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		// Swallow the key-up of every key-down we swallowed.
		swallowed := make(map[uint32]bool)

		callback := windows.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			if int32(nCode) < 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}
			k := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			if k.Flags&llkhfInjected != 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}

			switch uint32(wParam) {
			case wmKeyDown, wmSysKeyDown:
				if onKey(KeyCode(k.VkCode), true) {
					swallowed[k.VkCode] = true
					return 1
				}
			case wmKeyUp, wmSysKeyUp:
				onKey(KeyCode(k.VkCode), false)
				if swallowed[k.VkCode] {
					delete(swallowed, k.VkCode)
					return 1
				}
			}
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})

		hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, callback, 0, 0)
		if hook == 0 {
			installed <- fmt.Errorf("%w: SetWindowsHookExW: %v", ErrHookUnavailable, err)
			return
		}
		defer procUnhookWindowsHookEx.Call(hook)

		threadID <- windows.GetCurrentThreadId()
		installed <- nil

		var msg winMsg
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			// 0 is WM_QUIT, -1 is an error; both end the loop.
			if int32(ret) <= 0 {
				return
			}
		}
	}()

	if err := <-installed; err != nil {
		<-done
		return err
	}
	tid := <-threadID
	h.logger.Info("keyboard hook started")

	select {
	case <-ctx.Done():
		procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
		<-done
		return nil
	case <-done:
		return fmt.Errorf("keyboard hook message loop ended")
	}
}
