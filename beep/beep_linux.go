//go:build linux

package beep

import (
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"github.com/manikosto/talkkey/log"
)

// PulseAudio fills its buffer before starting, so cues carry a 200ms tail.
const (
	startDuration = 0.2
	endDuration   = 0.2
)

// cues holds at most one pending cue; a cue arriving while another plays
// and one waits is dropped.
var cues = make(chan []int16, 1)

func initPlayback() {
	c, err := pulse.NewClient(pulse.ClientApplicationName("talkkey"))
	if err != nil {
		log.Warnf("beep: pulse unavailable: %v", err)
		return
	}
	go playLoop(c)
}

func play(samples []int16) {
	if len(samples) == 0 {
		return
	}
	select {
	case cues <- samples:
	default:
	}
}

func playLoop(c *pulse.Client) {
	for samples := range cues {
		if err := playCue(c, samples); err != nil {
			log.Warnf("beep: %v", err)
		}
	}
}

func playCue(c *pulse.Client, samples []int16) error {
	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackMediaName("talkkey cue"),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return err
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
	return stream.Error()
}
