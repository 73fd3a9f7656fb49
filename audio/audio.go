// Package audio captures microphone input into WAV artifacts and measures
// its level while recording. Backends are pulse on Linux and malgo
// elsewhere.
package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether it is a headset
// microphone, which drops the output profile to low-quality while capturing.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID      string // opaque platform-specific identifier
	Name    string
	Default bool // current system default input
}

// Label is the name shown to users, tagged when the device is the default
// or looks like a Bluetooth headset.
func (d DeviceInfo) Label() string {
	var tags []string
	if d.Default {
		tags = append(tags, "default")
	}
	if IsBluetooth(d.Name) {
		tags = append(tags, "bluetooth")
	}
	if len(tags) == 0 {
		return d.Name
	}
	return d.Name + " (" + strings.Join(tags, ", ") + ")"
}

// Context enumerates capture devices and opens streams on them.
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice is one opened input stream. The callback runs on the
// backend's audio thread.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}
