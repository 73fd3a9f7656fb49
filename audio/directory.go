package audio

import (
	"fmt"
	"sync"

	"github.com/manikosto/talkkey/log"
)

// Directory is the system's list of input devices and its default input.
type Directory interface {
	InputDevices() ([]DeviceInfo, error)
	DefaultInputDevice() (string, error)
	SetDefaultInputDevice(id string) error
}

// Override makes id the default input device until restore is called.
// restore puts the previous default back; calling it more than once is
// harmless.
func Override(dir Directory, id string) (restore func(), err error) {
	prev, err := dir.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("reading default input: %w", err)
	}
	if prev == id {
		return func() {}, nil
	}
	if err := dir.SetDefaultInputDevice(id); err != nil {
		return nil, fmt.Errorf("setting default input to %s: %w", id, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := dir.SetDefaultInputDevice(prev); err != nil {
				log.Errorf("restoring default input %s: %v", prev, err)
			}
		})
	}, nil
}

// FindDevice looks a device up by ID or by name.
func FindDevice(devices []DeviceInfo, key string) (DeviceInfo, bool) {
	for _, d := range devices {
		if d.ID == key || d.Name == key {
			return d, true
		}
	}
	return DeviceInfo{}, false
}

// NewDirectory returns the directory behind ctx, or nil when the platform
// cannot change its default input. Capture then opens the selected device
// directly.
func NewDirectory(ctx Context) Directory {
	if d, ok := ctx.(Directory); ok {
		return d
	}
	return nil
}
