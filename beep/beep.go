// Package beep plays short feedback cues.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const sampleRate = 44100

// Tone is a feedback cue.
type Tone int

const (
	ToneStart Tone = iota
	// ToneTranslate marks a session that will be translated.
	ToneTranslate
	ToneEnd
	ToneError
)

type toneSpec struct {
	freq     float64
	duration float64 // seconds per tick
	gap      float64 // seconds between ticks; 0 means one tick
	volume   float64
	decay    float64
}

var specs = map[Tone]toneSpec{
	ToneStart:     {freq: 1200, duration: startDuration, volume: 0.5, decay: 60},
	ToneTranslate: {freq: 1500, duration: 0.06, gap: 0.04, volume: 0.45, decay: 60},
	ToneEnd:       {freq: 900, duration: endDuration, volume: 0.5, decay: 40},
	ToneError:     {freq: 350, duration: 0.08, gap: 0.05, volume: 0.6, decay: 30},
}

var (
	samples   map[Tone][]int16
	soundOnce sync.Once
)

func initSound() {
	samples = make(map[Tone][]int16, len(specs))
	for t, s := range specs {
		samples[t] = generate(s)
	}
	initPlayback()
}

// Init prepares the cue samples and the playback backend.
func Init() {
	soundOnce.Do(initSound)
}

// Play starts t without waiting for it to finish.
func Play(t Tone) {
	if disabled.Load() {
		return
	}
	soundOnce.Do(initSound)
	play(samples[t])
}

func PlayStart() { Play(ToneStart) }
func PlayEnd()   { Play(ToneEnd) }
func PlayError() { Play(ToneError) }

// generate renders a mono cue: one decaying sine tick, or two separated by
// spec.gap.
func generate(spec toneSpec) []int16 {
	tick := generateTick(sampleRate, spec.freq, spec.duration, spec.volume, spec.decay)
	if spec.gap <= 0 {
		return tick
	}
	gap := make([]int16, int(float64(sampleRate)*spec.gap))
	out := make([]int16, 0, len(tick)*2+len(gap))
	out = append(out, tick...)
	out = append(out, gap...)
	return append(out, tick...)
}

func generateTick(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}
