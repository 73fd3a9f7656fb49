package audio

import (
	"errors"
	"sync"
	"testing"
)

type fakeDirectory struct {
	mu      sync.Mutex
	def     string
	sets    []string
	failSet error
	failGet error
}

func (d *fakeDirectory) InputDevices() ([]DeviceInfo, error) { return nil, nil }

func (d *fakeDirectory) DefaultInputDevice() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.def, d.failGet
}

func (d *fakeDirectory) SetDefaultInputDevice(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSet != nil {
		return d.failSet
	}
	d.sets = append(d.sets, id)
	d.def = id
	return nil
}

func (d *fakeDirectory) current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.def
}

func TestOverrideRestores(t *testing.T) {
	dir := &fakeDirectory{def: "builtin"}
	restore, err := Override(dir, "usb")
	if err != nil {
		t.Fatal(err)
	}
	if dir.current() != "usb" {
		t.Fatalf("default = %s, want usb", dir.current())
	}
	restore()
	restore()
	if dir.current() != "builtin" {
		t.Fatalf("default = %s after restore, want builtin", dir.current())
	}
	if len(dir.sets) != 2 {
		t.Errorf("expected 2 SetDefaultInputDevice calls, got %v", dir.sets)
	}
}

func TestOverrideSameDeviceIsNoop(t *testing.T) {
	dir := &fakeDirectory{def: "usb"}
	restore, err := Override(dir, "usb")
	if err != nil {
		t.Fatal(err)
	}
	restore()
	if len(dir.sets) != 0 {
		t.Errorf("unexpected set calls: %v", dir.sets)
	}
}

func TestOverrideErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := Override(&fakeDirectory{failGet: boom}, "usb"); !errors.Is(err, boom) {
		t.Errorf("get failure: %v", err)
	}
	if _, err := Override(&fakeDirectory{def: "a", failSet: boom}, "usb"); !errors.Is(err, boom) {
		t.Errorf("set failure: %v", err)
	}
}

func TestFindDevice(t *testing.T) {
	devices := []DeviceInfo{{ID: "alsa_input.usb", Name: "USB Mic"}, {ID: "alsa_input.pci", Name: "Built-in"}}
	if d, ok := FindDevice(devices, "USB Mic"); !ok || d.ID != "alsa_input.usb" {
		t.Errorf("by name: %+v %v", d, ok)
	}
	if d, ok := FindDevice(devices, "alsa_input.pci"); !ok || d.Name != "Built-in" {
		t.Errorf("by id: %+v %v", d, ok)
	}
	if _, ok := FindDevice(devices, "Headset"); ok {
		t.Error("unexpected match")
	}
}

func TestNewDirectory(t *testing.T) {
	if NewDirectory(NewFakeContextPCM(nil, false)) != nil {
		t.Error("fake context should not expose a directory")
	}
}
