//go:build linux

package hotkey

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// linux/input-event-codes.h
const (
	evKey = 1

	keyRelease = 0
	keyPress   = 1

	keyQ     = 16
	keyA     = 30
	keyZ     = 44
	keySpace = 57
)

var modifierFlags = map[uint16]Flag{
	29:    FlagCtrl,
	97:    FlagRightCtrl,
	42:    FlagShift,
	54:    FlagRightShift,
	56:    FlagAlt,
	100:   FlagRightAlt,
	125:   FlagSuper,
	126:   FlagRightSuper,
	0x1d0: FlagFn,
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const inputRoot = "/dev/input"

var errNoKeyboards = errors.New("no keyboard devices found (is user in 'input' group?)")

type evdevSource struct {
	events chan Event
	files  []*os.File
	stop   chan struct{}
	once   sync.Once
}

// New creates a Source that reads every keyboard through evdev. The user
// must be in the 'input' group.
func New(Config) Source {
	return &evdevSource{events: make(chan Event, 64), stop: make(chan struct{})}
}

func (h *evdevSource) Register() error {
	files, err := openKeyboards()
	if err != nil {
		return err
	}
	h.files = files
	for _, f := range files {
		go h.readEvents(f)
	}
	return nil
}

func (h *evdevSource) readEvents(f *os.File) {
	r := bufio.NewReader(f)
	var held Flag
	for {
		var raw inputEvent
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return
		}
		ev, ok := translate(&held, raw)
		if !ok {
			continue
		}
		select {
		case h.events <- ev:
		case <-h.stop:
			return
		}
	}
}

// translate folds one evdev record into the held modifier set. Modifier
// changes and non-modifier presses produce an Event; repeats and other
// records do not.
func translate(held *Flag, raw inputEvent) (Event, bool) {
	if raw.Type != evKey {
		return Event{}, false
	}
	if bit, ok := modifierFlags[raw.Code]; ok {
		switch raw.Value {
		case keyPress:
			*held |= bit
		case keyRelease:
			*held &^= bit
		default:
			return Event{}, false
		}
		return Event{Flags: *held}, true
	}
	if raw.Value != keyPress {
		return Event{}, false
	}
	return Event{Flags: *held, Key: raw.Code}, true
}

func (h *evdevSource) Unregister() {
	h.once.Do(func() {
		close(h.stop)
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevSource) Events() <-chan Event {
	return h.events
}

func openKeyboards() ([]*os.File, error) {
	paths, err := findKeyboards()
	if err != nil {
		return nil, fmt.Errorf("finding keyboards: %w", err)
	}
	if len(paths) == 0 {
		return nil, errNoKeyboards
	}
	var files []*os.File
	for _, p := range paths {
		if f, err := os.Open(p); err == nil {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER, then re-login)", len(paths))
	}
	return files, nil
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir(inputRoot)
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		caps, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "capabilities", "key"))
		if err == nil && hasKeys(string(caps), keyQ, keyA, keyZ, keySpace) {
			keyboards = append(keyboards, filepath.Join(inputRoot, e.Name()))
		}
	}
	return keyboards, nil
}

// hasKeys reports whether a sysfs key capability bitmap has every code set.
// The bitmap is hex words, most significant first.
func hasKeys(caps string, codes ...int) bool {
	words := strings.Fields(caps)
	for _, code := range codes {
		i := len(words) - 1 - code/64
		if i < 0 {
			return false
		}
		w, err := strconv.ParseUint(words[i], 16, 64)
		if err != nil || w&(1<<(code%64)) == 0 {
			return false
		}
	}
	return true
}

// Diagnose checks evdev access and returns a status message.
func Diagnose() (string, error) {
	files, err := openKeyboards()
	if err != nil {
		return "", err
	}
	for _, f := range files {
		f.Close()
	}
	return fmt.Sprintf("%d keyboard(s) readable, first %s", len(files), files[0].Name()), nil
}
