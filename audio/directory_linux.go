//go:build linux

package audio

import (
	"fmt"

	"github.com/jfreymuth/pulse/proto"
)

// rawRequester is the part of *pulse.Client used to change server state.
type rawRequester interface {
	RawRequest(cmd proto.RequestArgs, rpl proto.Reply) error
}

func (p *pulseContext) InputDevices() ([]DeviceInfo, error) {
	return p.Devices()
}

func (p *pulseContext) DefaultInputDevice() (string, error) {
	src, err := p.client.DefaultSource()
	if err != nil {
		return "", fmt.Errorf("pulse default source: %w", err)
	}
	return src.ID(), nil
}

// SetDefaultInputDevice works against both PulseAudio and pipewire-pulse.
func (p *pulseContext) SetDefaultInputDevice(id string) error {
	return setDefaultSource(p.client, id)
}

func setDefaultSource(c rawRequester, id string) error {
	if err := c.RawRequest(&proto.SetDefaultSource{SourceName: id}, nil); err != nil {
		return fmt.Errorf("pulse set default source %s: %w", id, err)
	}
	return nil
}
