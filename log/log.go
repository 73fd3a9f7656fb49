// Package log writes the two talkkey log files: a structured diagnostics
// log and a plain transcript history. Every function is a no-op until Init
// succeeds and after Close.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagnosticsName = "diagnostics_log.txt"
	transcriptsName = "transcribe_log.txt"
	timeLayout      = "2006-01-02 15:04:05"
)

// files is the open state between Init and Close.
type files struct {
	diag        zerolog.Logger
	diagFile    *os.File
	transcripts *os.File
	pid         int
}

var (
	mu  sync.Mutex // guards open/close and transcript writes
	cur atomic.Pointer[files]
	dir string
)

// Metrics describes one transcription round trip. Network fields stay zero
// for local engines.
type Metrics struct {
	AudioLengthS float64
	UploadKB     float64
	EncodeTimeMs float64
	DNSTimeMs    float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
	ConnReused   bool
	TLSProto     string
}

// ResolveDir picks the log directory: the -logpath flag, then
// TALKKEY_LOG_PATH, then the per-OS default.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv("TALKKEY_LOG_PATH")} {
		if p != "" {
			return filepath.Abs(p)
		}
	}
	return defaultDir()
}

func defaultDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Logs", "talkkey"), nil
	case "windows":
		// %LocalAppData%
		base, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, "talkkey", "logs"), nil
	default:
		// $XDG_CONFIG_HOME or ~/.config
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, "talkkey", "logs"), nil
	}
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func openAppend(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Init opens both log files in the directory set with SetDir.
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	diagFile, err := openAppend(diagnosticsName)
	if err != nil {
		return err
	}
	transcripts, err := openAppend(transcriptsName)
	if err != nil {
		diagFile.Close()
		return err
	}

	f := &files{diagFile: diagFile, transcripts: transcripts, pid: os.Getpid()}
	out := zerolog.ConsoleWriter{Out: diagFile, TimeFormat: timeLayout, NoColor: true}
	f.diag = zerolog.New(out).With().Timestamp().Int("pid", f.pid).Logger()
	cur.Store(f)
	return nil
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	f := cur.Swap(nil)
	if f == nil {
		return
	}
	f.diagFile.Close()
	f.transcripts.Close()
}

// event returns nil before Init; zerolog treats nil events as no-ops.
func event(level zerolog.Level) *zerolog.Event {
	f := cur.Load()
	if f == nil {
		return nil
	}
	return f.diag.WithLevel(level)
}

func Info(msg string) { event(zerolog.InfoLevel).Msg(msg) }
func Infof(format string, args ...any) { event(zerolog.InfoLevel).Msgf(format, args...) }
func Warn(msg string) { event(zerolog.WarnLevel).Msg(msg) }
func Warnf(format string, args ...any) { event(zerolog.WarnLevel).Msgf(format, args...) }
func Error(msg string) { event(zerolog.ErrorLevel).Msg(msg) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

func SessionStart(id, mode, device string) {
	event(zerolog.InfoLevel).
		Str("id", id).
		Str("mode", mode).
		Str("device", device).
		Msg("session_start")
}

func SessionStop(id string, audioS, avgDB, peakDB float64, speech bool) {
	event(zerolog.InfoLevel).
		Str("id", id).
		Float64("audio_s", audioS).
		Float64("avg_db", avgDB).
		Float64("peak_db", peakDB).
		Bool("speech", speech).
		Msg("session_stop")
}

func SessionCancel(id, stage string) {
	event(zerolog.InfoLevel).Str("id", id).Str("stage", stage).Msg("session_cancel")
}

func NoSpeech(id string) {
	event(zerolog.InfoLevel).Str("id", id).Msg("no_speech")
}

func EngineFallback(from, to, reason string) {
	event(zerolog.WarnLevel).
		Str("from", from).
		Str("to", to).
		Str("reason", reason).
		Msg("engine_fallback")
}

func Transcription(engine, mode string, translated, fallback bool, chars int, m Metrics) {
	ev := event(zerolog.InfoLevel)
	if ev == nil {
		return
	}
	ev.Str("engine", engine).
		Str("mode", mode).
		Bool("translated", translated).
		Bool("fallback", fallback).
		Int("chars", chars)
	// only remote uploads see a first response byte
	if m.TTFBMs > 0 {
		conn := "new"
		if m.ConnReused {
			conn = "reused"
		}
		ev.Str("conn", conn)
		if m.TLSProto != "" {
			ev.Str("tls_proto", m.TLSProto)
		}
		ev.Float64("upload_kb", m.UploadKB).
			Float64("encode_ms", m.EncodeTimeMs).
			Float64("dns_ms", m.DNSTimeMs).
			Float64("tls_ms", m.TLSTimeMs).
			Float64("ttfb_ms", m.TTFBMs)
	}
	ev.Float64("audio_s", m.AudioLengthS).
		Float64("total_ms", m.TotalTimeMs).
		Msg("transcription")
}

func Usage(chars int, audioS float64) {
	event(zerolog.InfoLevel).Int("chars", chars).Float64("audio_s", audioS).Msg("usage")
}

// TranscriptionText appends one line to the transcript history:
// timestamp, pid and text separated by tabs.
func TranscriptionText(text string) {
	mu.Lock()
	defer mu.Unlock()
	f := cur.Load()
	if f == nil {
		return
	}
	fmt.Fprintf(f.transcripts, "%s\t[%d]\t%s\n", time.Now().Format(timeLayout), f.pid, text)
}
