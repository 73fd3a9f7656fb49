package main

import (
	"time"

	"github.com/manikosto/talkkey/audio"
)

const (
	silenceWarnEvery = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
	SilenceRepeat                 // still silent, repeat the cue
)

// silenceMonitor watches the level ticks of one recording and warns when the
// microphone hears nothing for a while, usually a muted or wrong device.
type silenceMonitor struct {
	gate   *audio.LevelMonitor
	warnAt int

	ticks    int
	window   []bool
	warned   bool
	lastBeep int
}

func newSilenceMonitor(interval time.Duration) *silenceMonitor {
	if interval <= 0 {
		interval = audio.LevelInterval
	}
	warnAt := int(silenceWarnEvery / interval)
	return &silenceMonitor{
		gate:   audio.NewLevelMonitor(),
		warnAt: warnAt,
		window: make([]bool, warnAt),
	}
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, m.warnAt)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.warnAt)%m.warnAt] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Sample(s audio.LevelSample) SilenceEvent {
	return m.Tick(m.gate.Speech(s))
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.window[m.ticks%m.warnAt] = hasSpeech
	m.ticks++

	r := m.ratio()

	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastBeep = m.ticks
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}
	if m.warned && m.ticks-m.lastBeep >= m.warnAt {
		m.lastBeep = m.ticks
		return SilenceRepeat
	}
	return SilenceNone
}
