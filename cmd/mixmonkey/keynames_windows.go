//go:build windows

package main

import "strconv"

// platformKeyNames maps upper-case key names to Win32 virtual-key codes.
// The low-level hook reports sided modifiers, so generic names resolve to
// the left-hand key.
var platformKeyNames = func() map[string]KeyCode {
	m := map[string]KeyCode{
		"CTRL": 0xA2, "CONTROL": 0xA2, "LCTRL": 0xA2, "RCTRL": 0xA3,
		"SHIFT": 0xA0, "LSHIFT": 0xA0, "RSHIFT": 0xA1,
		"ALT": 0xA4, "LALT": 0xA4, "RALT": 0xA5,
		"WIN": 0x5B, "SUPER": 0x5B, "META": 0x5B, "LWIN": 0x5B, "RWIN": 0x5C,

		"UP": 0x26, "DOWN": 0x28, "LEFT": 0x25, "RIGHT": 0x27,
		"SPACE": 0x20, "ENTER": 0x0D, "ESC": 0x1B, "TAB": 0x09,
		"HOME": 0x24, "END": 0x23, "PAGEUP": 0x21, "PAGEDOWN": 0x22,
		"INSERT": 0x2D, "DELETE": 0x2E,

		"VOLUMEUP": 0xAF, "VOLUMEDOWN": 0xAE, "VOLUMEMUTE": 0xAD, "MUTE": 0xAD,
		"PLAYPAUSE": 0xB3, "MEDIANEXT": 0xB0, "MEDIAPREV": 0xB1, "MEDIASTOP": 0xB2,
	}
	for c := 'A'; c <= 'Z'; c++ {
		m[string(c)] = KeyCode(c)
	}
	for c := '0'; c <= '9'; c++ {
		m[string(c)] = KeyCode(c)
	}
	for i := 1; i <= 12; i++ {
		m["F"+strconv.Itoa(i)] = KeyCode(0x70 + i - 1)
	}
	return m
}()

