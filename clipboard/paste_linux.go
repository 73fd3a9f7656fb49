//go:build linux

package clipboard

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// linux/uinput.h
const (
	uiSetEvbit  = 0x40045564
	uiSetKeybit = 0x40045565
	uiDevCreate = 0x5501
)

const (
	evSyn  = 0x00
	evKey  = 0x01
	busUSB = 0x03

	keyLCtrl = 29
	keyV     = 47
)

const (
	virtualName = "talkkey-paste"
	// compositors drop keys sent before they see the modifier
	keyGap = 5 * time.Millisecond
	// time for the compositor to pick up a freshly created device
	settleDelay = 200 * time.Millisecond
)

var uinputPaths = []string{"/dev/uinput", "/dev/input/uinput"}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

type uinputSetup struct {
	Name    [80]byte
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
	FFMax   uint32
	Abs     [4][64]int32
}

// virtualKeyboard is a uinput device that can type the paste chord into
// whatever window has focus, on X11 and Wayland alike.
type virtualKeyboard struct {
	f *os.File
}

var (
	vkbd     *virtualKeyboard
	vkbdOnce sync.Once
	vkbdErr  error
)

// Init creates the virtual keyboard. Later calls return the first result.
func Init() error {
	vkbdOnce.Do(func() {
		vkbd, vkbdErr = openVirtualKeyboard()
	})
	return vkbdErr
}

func openVirtualKeyboard() (*virtualKeyboard, error) {
	var path string
	for _, p := range uinputPaths {
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return nil, errors.New("uinput device not found, try: sudo modprobe uinput")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	if err := setupDevice(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("creating %s: %w", virtualName, err)
	}
	time.Sleep(settleDelay)
	return &virtualKeyboard{f: f}, nil
}

func setupDevice(f *os.File) error {
	fd := int(f.Fd())
	for _, ev := range []int{evKey, evSyn} {
		if err := unix.IoctlSetInt(fd, uiSetEvbit, ev); err != nil {
			return err
		}
	}
	// the full key range makes udev classify the device as a keyboard
	for code := 0; code < 256; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeybit, code); err != nil {
			return err
		}
	}
	setup := uinputSetup{Bustype: busUSB, Vendor: 0x1234, Product: 0x5678, Version: 1}
	copy(setup.Name[:], virtualName)
	if err := binary.Write(f, binary.LittleEndian, &setup); err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, uiDevCreate, 0)
}

func (k *virtualKeyboard) emit(typ, code uint16, value int32) error {
	return binary.Write(k.f, binary.LittleEndian, &inputEvent{Type: typ, Code: code, Value: value})
}

// chord presses mod+key and releases both, syncing after every event.
func (k *virtualKeyboard) chord(mod, key uint16) error {
	steps := []struct {
		code  uint16
		value int32
	}{{mod, 1}, {key, 1}, {key, 0}, {mod, 0}}
	for i, st := range steps {
		if i > 0 {
			time.Sleep(keyGap)
		}
		if err := k.emit(evKey, st.code, st.value); err != nil {
			return err
		}
		if err := k.emit(evSyn, 0, 0); err != nil {
			return err
		}
	}
	return nil
}

// Paste sends Ctrl+V to the focused window.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	return vkbd.chord(keyLCtrl, keyV)
}

// Verify sends the paste chord and reads it back from the evdev node of
// the virtual keyboard.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}
	node, err := findVirtualNode()
	if err != nil {
		return "", err
	}
	evdev, err := os.Open(node)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", node, err)
	}
	defer evdev.Close()

	if err := Paste(); err != nil {
		return "", fmt.Errorf("paste send: %w", err)
	}

	type readback struct {
		codes map[uint16]bool
		err   error
	}
	ch := make(chan readback, 1)
	go func() {
		buf := make([]byte, inputEventSize*32)
		n, err := evdev.Read(buf)
		if err != nil {
			ch <- readback{err: err}
			return
		}
		ch <- readback{codes: keyCodes(buf[:n])}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("reading events: %w", r.err)
		}
		if !r.codes[keyLCtrl] || !r.codes[keyV] {
			return "", fmt.Errorf("missing events (ctrl=%v, v=%v)", r.codes[keyLCtrl], r.codes[keyV])
		}
		return fmt.Sprintf("Ctrl+V keystroke verified via %s", node), nil
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("timed out waiting for keystroke events")
	}
}

func findVirtualNode() (string, error) {
	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		name, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err == nil && strings.TrimSpace(string(name)) == virtualName {
			return filepath.Join("/dev/input", e.Name()), nil
		}
	}
	return "", errors.New("paste evdev device not found")
}

// keyCodes returns the key codes present in a buffer of raw input events.
func keyCodes(raw []byte) map[uint16]bool {
	codes := make(map[uint16]bool)
	r := bytes.NewReader(raw)
	for {
		var ev inputEvent
		if err := binary.Read(r, binary.LittleEndian, &ev); err != nil {
			return codes
		}
		if ev.Type == evKey {
			codes[ev.Code] = true
		}
	}
}
