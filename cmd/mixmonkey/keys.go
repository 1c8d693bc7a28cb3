package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

// KeyCode identifies one physical key in the platform's code space
// (evdev KEY_* on Linux, virtual-key codes on Windows).
type KeyCode uint16

// keySpace bounds the codes the tracker records. It covers evdev's KEY_MAX
// (0x2ff) and the 8-bit Windows virtual-key range; larger codes are ignored.
const (
	keySpace = 1024
	keyWords = keySpace / 64
)

var (
	// ErrEmptyChord is returned for a chord with no keys. Such a chord could
	// never be satisfied.
	ErrEmptyChord = errors.New("empty key chord")

	// ErrUnknownKey is wrapped by KeyNameError.
	ErrUnknownKey = errors.New("unknown key")
)

// KeyNameError reports a key name missing from the platform key table.
type KeyNameError struct {
	Name string
}

func (e *KeyNameError) Error() string { return fmt.Sprintf("unknown key %q", e.Name) }
func (e *KeyNameError) Unwrap() error { return ErrUnknownKey }

// ============================================================================
// KeySet
// ============================================================================

// KeySet is a fixed-size bitset of KeyCodes. It is a value type: copying a
// KeySet never allocates.
type KeySet [keyWords]uint64

// Has reports whether code is in the set.
func (s *KeySet) Has(code KeyCode) bool {
	if int(code) >= keySpace {
		return false
	}
	return s[code>>6]&(1<<(code&63)) != 0
}

// Add inserts code.
func (s *KeySet) Add(code KeyCode) {
	if int(code) >= keySpace {
		return
	}
	s[code>>6] |= 1 << (code & 63)
}

// Remove deletes code.
func (s *KeySet) Remove(code KeyCode) {
	if int(code) >= keySpace {
		return
	}
	s[code>>6] &^= 1 << (code & 63)
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	n := 0
	for _, w := range s {
		for ; w != 0; w &= w - 1 {
			n++
		}
	}
	return n
}

// ============================================================================
// KeyTracker
// ============================================================================

// KeyTracker records which keys are currently held. OnKeyEvent is called from
// the input hook for every key transition and is lock-free and
// allocation-free; readers take a point-in-time Snapshot.
type KeyTracker struct {
	words [keyWords]atomic.Uint64
}

// OnKeyEvent records a press (down=true) or release of code. It returns true
// when the call changed the set, so OS auto-repeat presses of an already-held
// key report false.
func (t *KeyTracker) OnKeyEvent(code KeyCode, down bool) bool {
	if int(code) >= keySpace {
		return false
	}
	w, mask := code>>6, uint64(1)<<(code&63)
	if down {
		return t.words[w].Or(mask)&mask == 0
	}
	return t.words[w].And(^mask)&mask != 0
}

// Snapshot copies the current pressed set.
func (t *KeyTracker) Snapshot() KeySet {
	var s KeySet
	for i := range t.words {
		s[i] = t.words[i].Load()
	}
	return s
}

// IsPressed reports whether code is currently held.
func (t *KeyTracker) IsPressed(code KeyCode) bool {
	if int(code) >= keySpace {
		return false
	}
	return t.words[code>>6].Load()&(1<<(code&63)) != 0
}

// Reset forgets every held key. Used when the input hook restarts, since
// releases that happened while it was down were never observed.
func (t *KeyTracker) Reset() {
	for i := range t.words {
		t.words[i].Store(0)
	}
}

// ============================================================================
// Chord
// ============================================================================

// Chord is a non-empty set of keys that must be held together.
// Construct only via NewChord or ParseChord.
type Chord struct {
	keys []KeyCode // sorted, unique
	name string
}

// NewChord builds a chord from codes. Duplicates collapse; an empty result
// returns ErrEmptyChord.
func NewChord(name string, codes ...KeyCode) (Chord, error) {
	keys := slices.Clone(codes)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	if len(keys) == 0 {
		return Chord{}, ErrEmptyChord
	}
	for _, k := range keys {
		if int(k) >= keySpace {
			return Chord{}, fmt.Errorf("key code %d out of range", k)
		}
	}
	if name == "" {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("#%d", k)
		}
		name = strings.Join(parts, "+")
	}
	return Chord{keys: keys, name: name}, nil
}

// ParseChord parses "Ctrl+Shift+M" style strings against the platform key
// table. Names are case-insensitive and surrounding spaces are ignored.
func ParseChord(s string) (Chord, error) {
	return parseChordWith(s, platformKeyNames)
}

func parseChordWith(s string, table map[string]KeyCode) (Chord, error) {
	if strings.TrimSpace(s) == "" {
		return Chord{}, ErrEmptyChord
	}

	parts := strings.Split(s, "+")
	codes := make([]KeyCode, 0, len(parts))
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return Chord{}, fmt.Errorf("parse chord %q: empty key name", s)
		}
		code, ok := table[strings.ToUpper(p)]
		if !ok {
			return Chord{}, fmt.Errorf("parse chord %q: %w", s, &KeyNameError{Name: p})
		}
		codes = append(codes, code)
		names = append(names, p)
	}
	return NewChord(strings.Join(names, "+"), codes...)
}

// Keys returns a copy of the chord's key codes in ascending order.
func (c Chord) Keys() []KeyCode { return slices.Clone(c.keys) }

// Contains reports whether code is a member of the chord.
func (c Chord) Contains(code KeyCode) bool {
	_, found := slices.BinarySearch(c.keys, code)
	return found
}

// IsZero reports whether c is the zero Chord (never valid).
func (c Chord) IsZero() bool { return len(c.keys) == 0 }

func (c Chord) String() string { return c.name }

// IsSatisfied reports whether every key of chord is in snapshot.
// The empty chord is never satisfied.
func IsSatisfied(chord Chord, snapshot *KeySet) bool {
	if len(chord.keys) == 0 {
		return false
	}
	for _, k := range chord.keys {
		if !snapshot.Has(k) {
			return false
		}
	}
	return true
}
