package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// Default silence gate thresholds.
const (
	MinSpeechDB  = -45.0
	PeakSpeechDB = -35.0
)

const (
	floorDB = -160.0
	// quietest level that still moves the meter
	meterFloorDB = -60.0
)

// LevelSample is the energy of one sampling window.
type LevelSample struct {
	Level  float64 // normalized meter value in [0,1]
	AvgDB  float64 // RMS power, dBFS
	PeakDB float64 // peak power, dBFS
}

func dbfs(v float64) float64 {
	if v <= 0 {
		return floorDB
	}
	return math.Max(20*math.Log10(v), floorDB)
}

func normalize(db float64) float64 {
	if db <= meterFloorDB {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return (db - meterFloorDB) / -meterFloorDB
}

// window accumulates 16-bit PCM between two sampling ticks.
type window struct {
	sumSq float64
	peak  int
	n     int
}

func (w *window) add(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		w.sumSq += float64(s * s)
		if s < 0 {
			s = -s
		}
		if s > w.peak {
			w.peak = s
		}
		w.n++
	}
}

// take returns the window's sample and resets it. ok is false when no
// frames arrived since the last call.
func (w *window) take() (s LevelSample, ok bool) {
	if w.n == 0 {
		return LevelSample{}, false
	}
	rms := math.Sqrt(w.sumSq/float64(w.n)) / 32768
	s.AvgDB = dbfs(rms)
	s.PeakDB = dbfs(float64(w.peak) / 32768)
	s.Level = normalize(s.AvgDB)
	*w = window{}
	return s, true
}

// SampleFromPCM computes a level sample over a block of 16-bit
// little-endian mono PCM.
func SampleFromPCM(pcm []byte) (LevelSample, bool) {
	var w window
	w.add(pcm)
	return w.take()
}

// LevelMonitor accumulates the samples of one capture session and decides
// whether the session contains speech. It is safe for concurrent use.
type LevelMonitor struct {
	MinSpeechDB  float64
	PeakSpeechDB float64

	mu    sync.Mutex
	sum   float64
	count int
	peak  float64
	last  LevelSample
}

func NewLevelMonitor() *LevelMonitor {
	return &LevelMonitor{
		MinSpeechDB:  MinSpeechDB,
		PeakSpeechDB: PeakSpeechDB,
		peak:         floorDB,
	}
}

func (m *LevelMonitor) Add(s LevelSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum += s.AvgDB
	m.count++
	if s.PeakDB > m.peak {
		m.peak = s.PeakDB
	}
	m.last = s
}

// Level returns the most recent normalized level.
func (m *LevelMonitor) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Level
}

// Speech reports whether a single sample crosses either threshold.
func (m *LevelMonitor) Speech(s LevelSample) bool {
	return s.AvgDB > m.MinSpeechDB || s.PeakDB > m.PeakSpeechDB
}

// Stats returns the session's mean average power, observed peak and sample
// count.
func (m *LevelMonitor) Stats() (avgDB, peakDB float64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return floorDB, floorDB, 0
	}
	return m.sum / float64(m.count), m.peak, m.count
}

// Verdict is true when the session holds enough speech energy: the mean
// average power or the peak crosses its threshold. No samples means no
// speech.
func (m *LevelMonitor) Verdict() bool {
	avg, peak, n := m.Stats()
	if n == 0 {
		return false
	}
	return avg > m.MinSpeechDB || peak > m.PeakSpeechDB
}
