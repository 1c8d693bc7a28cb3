//go:build linux

package main

import "github.com/holoplot/go-evdev"

// platformKeyNames maps upper-case key names to evdev key codes.
// Generic modifier names resolve to the left-hand key.
var platformKeyNames = map[string]KeyCode{
	"CTRL": KeyCode(evdev.KEY_LEFTCTRL), "CONTROL": KeyCode(evdev.KEY_LEFTCTRL),
	"LCTRL": KeyCode(evdev.KEY_LEFTCTRL), "RCTRL": KeyCode(evdev.KEY_RIGHTCTRL),
	"SHIFT": KeyCode(evdev.KEY_LEFTSHIFT), "LSHIFT": KeyCode(evdev.KEY_LEFTSHIFT),
	"RSHIFT": KeyCode(evdev.KEY_RIGHTSHIFT),
	"ALT": KeyCode(evdev.KEY_LEFTALT), "LALT": KeyCode(evdev.KEY_LEFTALT),
	"RALT": KeyCode(evdev.KEY_RIGHTALT),
	"WIN": KeyCode(evdev.KEY_LEFTMETA), "SUPER": KeyCode(evdev.KEY_LEFTMETA),
	"META": KeyCode(evdev.KEY_LEFTMETA), "LWIN": KeyCode(evdev.KEY_LEFTMETA),
	"RWIN": KeyCode(evdev.KEY_RIGHTMETA),

	"A": KeyCode(evdev.KEY_A), "B": KeyCode(evdev.KEY_B), "C": KeyCode(evdev.KEY_C),
	"D": KeyCode(evdev.KEY_D), "E": KeyCode(evdev.KEY_E), "F": KeyCode(evdev.KEY_F),
	"G": KeyCode(evdev.KEY_G), "H": KeyCode(evdev.KEY_H), "I": KeyCode(evdev.KEY_I),
	"J": KeyCode(evdev.KEY_J), "K": KeyCode(evdev.KEY_K), "L": KeyCode(evdev.KEY_L),
	"M": KeyCode(evdev.KEY_M), "N": KeyCode(evdev.KEY_N), "O": KeyCode(evdev.KEY_O),
	"P": KeyCode(evdev.KEY_P), "Q": KeyCode(evdev.KEY_Q), "R": KeyCode(evdev.KEY_R),
	"S": KeyCode(evdev.KEY_S), "T": KeyCode(evdev.KEY_T), "U": KeyCode(evdev.KEY_U),
	"V": KeyCode(evdev.KEY_V), "W": KeyCode(evdev.KEY_W), "X": KeyCode(evdev.KEY_X),
	"Y": KeyCode(evdev.KEY_Y), "Z": KeyCode(evdev.KEY_Z),

	"0": KeyCode(evdev.KEY_0), "1": KeyCode(evdev.KEY_1), "2": KeyCode(evdev.KEY_2),
	"3": KeyCode(evdev.KEY_3), "4": KeyCode(evdev.KEY_4), "5": KeyCode(evdev.KEY_5),
	"6": KeyCode(evdev.KEY_6), "7": KeyCode(evdev.KEY_7), "8": KeyCode(evdev.KEY_8),
	"9": KeyCode(evdev.KEY_9),

	"F1": KeyCode(evdev.KEY_F1), "F2": KeyCode(evdev.KEY_F2), "F3": KeyCode(evdev.KEY_F3),
	"F4": KeyCode(evdev.KEY_F4), "F5": KeyCode(evdev.KEY_F5), "F6": KeyCode(evdev.KEY_F6),
	"F7": KeyCode(evdev.KEY_F7), "F8": KeyCode(evdev.KEY_F8), "F9": KeyCode(evdev.KEY_F9),
	"F10": KeyCode(evdev.KEY_F10), "F11": KeyCode(evdev.KEY_F11), "F12": KeyCode(evdev.KEY_F12),

	"UP": KeyCode(evdev.KEY_UP), "DOWN": KeyCode(evdev.KEY_DOWN),
	"LEFT": KeyCode(evdev.KEY_LEFT), "RIGHT": KeyCode(evdev.KEY_RIGHT),
	"SPACE": KeyCode(evdev.KEY_SPACE), "ENTER": KeyCode(evdev.KEY_ENTER),
	"ESC": KeyCode(evdev.KEY_ESC), "TAB": KeyCode(evdev.KEY_TAB),
	"HOME": KeyCode(evdev.KEY_HOME), "END": KeyCode(evdev.KEY_END),
	"PAGEUP": KeyCode(evdev.KEY_PAGEUP), "PAGEDOWN": KeyCode(evdev.KEY_PAGEDOWN),
	"INSERT": KeyCode(evdev.KEY_INSERT), "DELETE": KeyCode(evdev.KEY_DELETE),

	"VOLUMEUP": KeyCode(evdev.KEY_VOLUMEUP), "VOLUMEDOWN": KeyCode(evdev.KEY_VOLUMEDOWN),
	"VOLUMEMUTE": KeyCode(evdev.KEY_MUTE), "MUTE": KeyCode(evdev.KEY_MUTE),
	"PLAYPAUSE": KeyCode(evdev.KEY_PLAYPAUSE), "MEDIANEXT": KeyCode(evdev.KEY_NEXTSONG),
	"MEDIAPREV": KeyCode(evdev.KEY_PREVIOUSSONG), "MEDIASTOP": KeyCode(evdev.KEY_STOPCD),
}
