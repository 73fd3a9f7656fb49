package encoder

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

func writeWAV(t *testing.T, samples []int16, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(f, rate, BitsPerSample, Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func sine(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return samples
}

func TestReadWAV(t *testing.T) {
	want := sine(SampleRate / 2)
	got, err := ReadWAV(writeWAV(t, want, SampleRate))
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestReadWAVRejectsOtherRates(t *testing.T) {
	if _, err := ReadWAV(writeWAV(t, sine(1000), 44100)); err == nil {
		t.Fatal("expected error for 44.1 kHz input")
	}
}

func TestFlacFromWAV(t *testing.T) {
	samples := sine(SampleRate*2 + 123)
	c, err := FlacFromWAV(writeWAV(t, samples, SampleRate))
	if err != nil {
		t.Fatalf("FlacFromWAV: %v", err)
	}
	if c.Frames != uint64(len(samples)) {
		t.Errorf("Frames = %d, want %d", c.Frames, len(samples))
	}
	if len(c.Data) < 4 || string(c.Data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
	if c.RawBytes != len(samples)*2 {
		t.Errorf("RawBytes = %d", c.RawBytes)
	}
	if d := c.Duration(); d < 2*time.Second || d > 2*time.Second+10*time.Millisecond {
		t.Errorf("Duration = %v", d)
	}
}

func decodeFlac(t *testing.T, data []byte) (nsamples uint64, samples []int16) {
	t.Helper()
	stream, err := flac.Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parsing flac: %v", err)
	}
	defer stream.Close()
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("parsing frame: %v", err)
		}
		for _, s := range f.Subframes[0].Samples {
			samples = append(samples, int16(s))
		}
	}
	return stream.Info.NSamples, samples
}

func TestFlacEmpty(t *testing.T) {
	data, err := Flac(nil)
	if err != nil {
		t.Fatalf("Flac: %v", err)
	}
	n, samples := decodeFlac(t, data)
	if n != 0 || len(samples) != 0 {
		t.Errorf("decoded %d samples (header says %d) from empty input", len(samples), n)
	}
}

func TestFlacRoundTrip(t *testing.T) {
	want := sine(BlockSize*3 + BlockSize/4)
	for i := BlockSize; i < 2*BlockSize; i++ {
		want[i] = 0 // a silent block
	}
	data, err := Flac(want)
	if err != nil {
		t.Fatalf("Flac: %v", err)
	}
	if len(data) >= len(want)*2 {
		t.Errorf("no compression: %d bytes for %d samples", len(data), len(want))
	}
	n, got := decodeFlac(t, data)
	if n != uint64(len(want)) {
		t.Errorf("STREAMINFO NSamples = %d, want %d", n, len(want))
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}
