//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const (
	startDuration = 0.03
	endDuration   = 0.05
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	// read from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initPlayback() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	buf := playing.Load()
	var n uint32
	if buf != nil {
		pos := playPos.Load()
		if pos < uint32(len(*buf)) {
			n = uint32(copy(out[:want], (*buf)[pos:]))
			playPos.Store(pos + n)
		} else {
			playing.Store(nil)
		}
	}
	clear(out[n:want])
}

func toBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func play(samples []int16) {
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	data := toBytes(samples)

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}

	device.Stop()
	playPos.Store(0)
	playing.Store(&data)

	if err := device.Start(); err != nil {
		// the device goes stale across sleep/wake; recreate it once
		device.Uninit()
		if err := initDevice(); err != nil {
			device = nil
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}
