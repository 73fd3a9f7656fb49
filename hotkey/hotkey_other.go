//go:build !linux

package hotkey

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

// Global hotkey APIs on macOS and Windows cannot watch bare modifiers, so
// each binding is registered as a Ctrl+Shift chord and reported to the
// detector as if the binding's flags were held for as long as the chord.
var chordKeys = map[Mode]hotkey.Key{
	ModeDirect:    hotkey.KeySpace,
	ModeReview:    hotkey.KeyE,
	ModeTranslate: hotkey.KeyT,
}

type chord struct {
	hk    *hotkey.Hotkey
	flags Flag
}

type xSource struct {
	chords []chord
	cancel *hotkey.Hotkey
	events chan Event

	mu   sync.Mutex
	held Flag
}

func New(cfg Config) Source {
	mods := []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}
	s := &xSource{
		cancel: hotkey.New(mods, hotkey.KeyEscape),
		events: make(chan Event, 64),
	}
	for _, b := range []Binding{cfg.Primary, cfg.Secondary, cfg.Translate} {
		s.chords = append(s.chords, chord{hk: hotkey.New(mods, chordKeys[b.Mode]), flags: b.Flags})
	}
	return s
}

func (s *xSource) Register() error {
	for _, c := range s.chords {
		if err := c.hk.Register(); err != nil {
			return fmt.Errorf("registering %v: %w", c.hk, err)
		}
		go s.watch(c)
	}
	if err := s.cancel.Register(); err != nil {
		return fmt.Errorf("registering cancel: %w", err)
	}
	go func() {
		for range s.cancel.Keydown() {
			s.mu.Lock()
			held := s.held
			s.mu.Unlock()
			s.events <- Event{Flags: held, Key: KeyEscape}
		}
	}()
	return nil
}

func (s *xSource) watch(c chord) {
	for {
		if _, ok := <-c.hk.Keydown(); !ok {
			return
		}
		s.set(c.flags)
		if _, ok := <-c.hk.Keyup(); !ok {
			return
		}
		s.set(0)
	}
}

func (s *xSource) set(flags Flag) {
	s.mu.Lock()
	s.held = flags
	s.mu.Unlock()
	s.events <- Event{Flags: flags}
}

func (s *xSource) Unregister() {
	for _, c := range s.chords {
		c.hk.Unregister()
	}
	s.cancel.Unregister()
}

func (s *xSource) Events() <-chan Event {
	return s.events
}

func Diagnose() (string, error) {
	return "hotkey support available (Ctrl+Shift+Space / E / T, Ctrl+Shift+Esc cancels)", nil
}
