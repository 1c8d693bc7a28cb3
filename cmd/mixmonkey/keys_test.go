package main

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
)

var testKeyNames = map[string]KeyCode{
	"CTRL":       29,
	"SHIFT":      42,
	"ALT":        56,
	"M":          50,
	"UP":         103,
	"DOWN":       108,
	"VOLUMEUP":   115,
	"VOLUMEDOWN": 114,
	"VOLUMEMUTE": 113,
}

func mustChord(t *testing.T, s string) Chord {
	t.Helper()
	c, err := parseChordWith(s, testKeyNames)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return c
}

func TestKeyTracker_TransitionsOnly(t *testing.T) {
	var tr KeyTracker

	if !tr.OnKeyEvent(29, true) {
		t.Fatalf("first press should change the set")
	}
	if tr.OnKeyEvent(29, true) {
		t.Fatalf("auto-repeat press should not change the set")
	}
	if !tr.IsPressed(29) {
		t.Fatalf("key 29 should be pressed")
	}
	if !tr.OnKeyEvent(29, false) {
		t.Fatalf("release should change the set")
	}
	if tr.OnKeyEvent(29, false) {
		t.Fatalf("second release should be a no-op")
	}
	if tr.IsPressed(29) {
		t.Fatalf("key 29 should be released")
	}
}

func TestKeyTracker_OutOfRangeIgnored(t *testing.T) {
	var tr KeyTracker
	if tr.OnKeyEvent(KeyCode(keySpace+5), true) {
		t.Fatalf("out-of-range code should be ignored")
	}
	snap := tr.Snapshot()
	if snap.Len() != 0 {
		t.Fatalf("snapshot len = %d, want 0", snap.Len())
	}
}

func TestKeyTracker_Reset(t *testing.T) {
	var tr KeyTracker
	tr.OnKeyEvent(1, true)
	tr.OnKeyEvent(700, true)
	tr.Reset()
	snap := tr.Snapshot()
	if snap.Len() != 0 {
		t.Fatalf("after reset len = %d, want 0", snap.Len())
	}
}

func TestParseChord(t *testing.T) {
	c := mustChord(t, " ctrl + Shift+m ")
	if got, want := c.Keys(), []KeyCode{29, 42, 50}; !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if c.String() != "ctrl+Shift+m" {
		t.Fatalf("name = %q", c.String())
	}

	dup := mustChord(t, "Ctrl+ctrl+M")
	if len(dup.Keys()) != 2 {
		t.Fatalf("duplicate keys should collapse, got %v", dup.Keys())
	}
}

func TestParseChord_Errors(t *testing.T) {
	if _, err := parseChordWith("   ", testKeyNames); !errors.Is(err, ErrEmptyChord) {
		t.Fatalf("blank chord: err = %v, want ErrEmptyChord", err)
	}
	if _, err := parseChordWith("Ctrl++M", testKeyNames); err == nil {
		t.Fatalf("empty component should fail")
	}

	_, err := parseChordWith("Ctrl+Hyper", testKeyNames)
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("unknown key: err = %v, want ErrUnknownKey", err)
	}
	var kne *KeyNameError
	if !errors.As(err, &kne) || kne.Name != "Hyper" {
		t.Fatalf("want KeyNameError{Hyper}, got %v", err)
	}
}

func TestNewChord_Empty(t *testing.T) {
	if _, err := NewChord("x"); !errors.Is(err, ErrEmptyChord) {
		t.Fatalf("err = %v, want ErrEmptyChord", err)
	}
	var zero Chord
	var snap KeySet
	if IsSatisfied(zero, &snap) {
		t.Fatalf("zero chord must never be satisfied")
	}
}

// A chord is satisfied exactly when all of its keys are held, whatever else
// is held alongside.
func TestIsSatisfied_Randomized(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.IntN(4)
		codes := make([]KeyCode, n)
		for i := range codes {
			codes[i] = KeyCode(rng.IntN(keySpace))
		}
		chord, err := NewChord("", codes...)
		if err != nil {
			t.Fatalf("NewChord: %v", err)
		}

		var tr KeyTracker
		for i := 0; i < rng.IntN(8); i++ {
			tr.OnKeyEvent(KeyCode(rng.IntN(keySpace)), true)
		}

		// Hold all but possibly one chord key.
		dropped := -1
		if rng.IntN(2) == 0 {
			dropped = rng.IntN(len(chord.Keys()))
		}
		for i, k := range chord.Keys() {
			if i == dropped {
				tr.OnKeyEvent(k, false)
				continue
			}
			tr.OnKeyEvent(k, true)
		}

		snap := tr.Snapshot()
		want := true
		for _, k := range chord.Keys() {
			if !snap.Has(k) {
				want = false
			}
		}
		if got := IsSatisfied(chord, &snap); got != want {
			t.Fatalf("iter %d: IsSatisfied(%v) = %v, want %v", iter, chord.Keys(), got, want)
		}
		if dropped >= 0 && IsSatisfied(chord, &snap) {
			t.Fatalf("iter %d: chord satisfied with key %d released", iter, chord.Keys()[dropped])
		}
	}
}
