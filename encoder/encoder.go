// Package encoder holds the capture format and compresses recorded
// artifacts for upload.
package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// ReadWAV decodes a capture artifact into 16-bit mono samples. Files in any
// other format are rejected.
func ReadWAV(path string) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if dec.NumChans != Channels || dec.BitDepth != BitsPerSample || dec.SampleRate != SampleRate {
		return nil, fmt.Errorf("%s: unsupported format %d ch / %d bit / %d Hz", path, dec.NumChans, dec.BitDepth, dec.SampleRate)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}
	return samples, nil
}

// Compressed is an upload-ready artifact.
type Compressed struct {
	Data       []byte
	Frames     uint64
	RawBytes   int
	EncodeTime time.Duration
}

func (c Compressed) Duration() time.Duration {
	return time.Duration(c.Frames) * time.Second / SampleRate
}

// FlacFromWAV reads a WAV artifact and returns it FLAC-compressed.
func FlacFromWAV(path string) (Compressed, error) {
	samples, err := ReadWAV(path)
	if err != nil {
		return Compressed{}, err
	}

	start := time.Now()
	data, err := Flac(samples)
	if err != nil {
		return Compressed{}, err
	}
	return Compressed{
		Data:       data,
		Frames:     uint64(len(samples)),
		RawBytes:   len(samples) * 2,
		EncodeTime: time.Since(start),
	}, nil
}
