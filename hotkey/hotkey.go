// Package hotkey turns raw modifier/key events from the keyboard into
// recording signals.
package hotkey

import (
	"fmt"
	"strings"
)

// Flag is one logical modifier bit as observed on a raw input event.
type Flag uint16

const (
	FlagCtrl Flag = 1 << iota
	FlagShift
	FlagAlt
	FlagSuper
	FlagRightCtrl
	FlagRightShift
	FlagRightAlt
	FlagRightSuper
	FlagFn
)

var flagNames = map[string]Flag{
	"ctrl":   FlagCtrl,
	"shift":  FlagShift,
	"alt":    FlagAlt,
	"super":  FlagSuper,
	"cmd":    FlagSuper,
	"rctrl":  FlagRightCtrl,
	"rshift": FlagRightShift,
	"ralt":   FlagRightAlt,
	"rsuper": FlagRightSuper,
	"rcmd":   FlagRightSuper,
	"fn":     FlagFn,
}

// ParseFlags parses a "+"-separated modifier list such as "ctrl+shift" or "fn".
func ParseFlags(s string) (Flag, error) {
	var f Flag
	for _, part := range strings.Split(strings.ToLower(strings.TrimSpace(s)), "+") {
		part = strings.TrimSpace(part)
		bit, ok := flagNames[part]
		if !ok {
			return 0, fmt.Errorf("unknown modifier %q", part)
		}
		f |= bit
	}
	if f == 0 {
		return 0, fmt.Errorf("empty modifier list")
	}
	return f, nil
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, name := range []string{"ctrl", "shift", "alt", "super", "rctrl", "rshift", "ralt", "rsuper", "fn"} {
		if f&flagNames[name] != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "+")
}

// KeyEscape is the evdev code of the Escape key; sources on other platforms
// report the cancel chord with the same code.
const KeyEscape uint16 = 1

// Event is a snapshot taken after one raw input event.
type Event struct {
	Flags Flag   // modifiers physically held after the event
	Key   uint16 // non-modifier key pressed by the event, 0 for flag changes
}

// Source delivers raw input events in the order they were observed.
type Source interface {
	Register() error
	Unregister()
	Events() <-chan Event
}
