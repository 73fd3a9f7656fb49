// Package session owns the recording lifecycle: it turns hotkey signals into
// at most one capture at a time, gates the result on speech energy and hands
// it to the transcriber off the input path.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/manikosto/talkkey/audio"
	"github.com/manikosto/talkkey/hotkey"
	"github.com/manikosto/talkkey/log"
	"github.com/manikosto/talkkey/transcriber"
)

var (
	ErrSessionActive = errors.New("a session is already active")
	ErrNoSession     = errors.New("no active session")
	ErrNoSpeech      = errors.New("no speech detected")
)

// Recorder starts capture sessions. *audio.Recorder implements it.
type Recorder interface {
	Start(device string, onLevel func(audio.LevelSample)) (*audio.Capture, error)
}

// Transcriber is the pipeline a finished recording is handed to.
// *transcriber.Orchestrator implements it.
type Transcriber interface {
	Ready() error
	Transcribe(ctx context.Context, req transcriber.Request) (*transcriber.Transcription, error)
}

// Delivery receives every non-empty result. Review results are expected to
// open an editable surface rather than be inserted.
type Delivery interface {
	Deliver(text string, mode hotkey.Mode) error
}

type Notifier interface {
	Notify(title, body string) error
}

type History interface {
	RecordHistory(text string) error
}

type Usage interface {
	RecordUsage(chars int, audio time.Duration) error
}

// Outcome is how a session ended.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeEmpty
	OutcomeNoSpeech
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeEmpty:
		return "empty"
	case OutcomeNoSpeech:
		return "no_speech"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Observer follows sessions for feedback (cues, level meter). Level is
// called on the sampling goroutine and must not block.
type Observer interface {
	SessionStarted(id string, mode hotkey.Mode)
	Level(s audio.LevelSample)
	SessionStopped(id string)
	SessionEnded(id string, mode hotkey.Mode, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(string, hotkey.Mode)        {}
func (nopObserver) Level(audio.LevelSample)                   {}
func (nopObserver) SessionStopped(string)                     {}
func (nopObserver) SessionEnded(string, hotkey.Mode, Outcome) {}

// Deps are the controller's collaborators. Permissions, History, Usage and
// Observer are optional.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Permissions audio.Permissions
	Delivery    Delivery
	Notifier    Notifier
	History     History
	Usage       Usage
	Observer    Observer
}

type Config struct {
	Device   string // capture device ID or name, "" for the default input
	Language string // source language hint
	Target   string // translate mode target language
}

type phase int

const (
	phaseStarting phase = iota
	phaseRecording
	phaseTranscribing
)

type session struct {
	id      string
	mode    hotkey.Mode
	phase   phase
	capture *audio.Capture

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	// set once the Observer has seen SessionStarted; levels sampled
	// before that are dropped
	started atomic.Bool
}

// Controller is the single owner of the active session. A new session is
// refused until the previous one has been delivered, discarded or
// cancelled.
type Controller struct {
	deps Deps
	cfg  Config
	base context.Context

	mu      sync.Mutex
	current *session

	pipelines sync.WaitGroup
	sinks     sync.WaitGroup
}

func New(ctx context.Context, deps Deps, cfg Config) *Controller {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Controller{deps: deps, cfg: cfg, base: ctx}
}

// Busy reports whether a session is recording or still transcribing.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Wait blocks until in-flight transcriptions and sink calls have finished.
func (c *Controller) Wait() {
	c.pipelines.Wait()
	c.sinks.Wait()
}

// Run handles signals until the channel closes or ctx ends, then cancels
// whatever session is still open.
func (c *Controller) Run(ctx context.Context, signals <-chan hotkey.Signal) {
	defer c.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			c.HandleSignal(sig)
		}
	}
}

func (c *Controller) HandleSignal(sig hotkey.Signal) {
	var err error
	switch sig.Kind {
	case hotkey.SignalStart:
		err = c.Start(sig.Mode)
	case hotkey.SignalStop:
		err = c.Stop()
	case hotkey.SignalCancel:
		err = c.Cancel()
	default:
		return
	}
	switch {
	case err == nil, errors.Is(err, ErrNoSession), errors.Is(err, ErrNoSpeech):
	case errors.Is(err, ErrSessionActive):
		log.Infof("%s ignored: session active", sig.Kind)
	default:
		log.Warnf("%s: %v", sig.Kind, err)
	}
}

// Start opens a capture for mode. Precondition failures are reported
// through the Notifier and leave no session behind.
func (c *Controller) Start(mode hotkey.Mode) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	s := &session{id: uuid.NewString(), mode: mode, phase: phaseStarting}
	s.ctx, s.cancel = context.WithCancel(c.base)
	c.current = s
	c.mu.Unlock()

	if err := c.preconditions(); err != nil {
		c.release(s)
		c.notify("Cannot start recording", userMessage(err))
		return err
	}

	onLevel := func(l audio.LevelSample) {
		if s.started.Load() {
			c.deps.Observer.Level(l)
		}
	}
	capture, err := c.deps.Recorder.Start(c.cfg.Device, onLevel)
	if err != nil {
		c.release(s)
		c.notify("Cannot start recording", userMessage(err))
		return err
	}

	c.mu.Lock()
	s.capture = capture
	cancelled := s.cancelled.Load()
	if !cancelled {
		s.phase = phaseRecording
	}
	c.mu.Unlock()

	if cancelled {
		capture.Cancel()
		log.SessionCancel(s.id, "starting")
		c.finish(s, OutcomeCancelled)
		return nil
	}

	log.SessionStart(s.id, string(mode), capture.DeviceName)
	c.deps.Observer.SessionStarted(s.id, mode)
	s.started.Store(true)
	return nil
}

func (c *Controller) preconditions() error {
	if p := c.deps.Permissions; p != nil && !p.MicrophoneAuthorized() && !p.RequestMicrophone() {
		return audio.ErrPermissionDenied
	}
	return c.deps.Transcriber.Ready()
}

// Stop ends the recording, applies the silence gate and starts the
// transcription in the background. It returns ErrNoSpeech when the
// recording was discarded.
func (c *Controller) Stop() error {
	c.mu.Lock()
	s := c.current
	if s == nil || s.phase != phaseRecording {
		c.mu.Unlock()
		return ErrNoSession
	}
	s.phase = phaseTranscribing
	c.mu.Unlock()

	art, err := s.capture.Stop()
	avg, peak, _ := s.capture.Monitor().Stats()
	speech := s.capture.Verdict()
	log.SessionStop(s.id, art.Duration.Seconds(), avg, peak, speech)
	c.deps.Observer.SessionStopped(s.id)

	switch {
	case s.cancelled.Load():
		art.Remove()
		log.SessionCancel(s.id, "stopping")
		c.finish(s, OutcomeCancelled)
		return nil
	case err != nil:
		c.fail(s, err)
		return err
	case !speech:
		art.Remove()
		log.NoSpeech(s.id)
		c.notify("No speech detected", "Nothing was transcribed.")
		c.finish(s, OutcomeNoSpeech)
		return ErrNoSpeech
	}

	c.pipelines.Add(1)
	go c.transcribe(s, art)
	return nil
}

// Cancel aborts the active session at whatever stage it is in. A cancelled
// session never reaches delivery.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	s.cancelled.Store(true)
	ph := s.phase
	if ph == phaseRecording {
		c.current = nil
	}
	c.mu.Unlock()

	switch ph {
	case phaseRecording:
		s.capture.Cancel()
		log.SessionCancel(s.id, "recording")
		s.cancel()
		c.deps.Observer.SessionEnded(s.id, s.mode, OutcomeCancelled)
	case phaseTranscribing:
		s.cancel()
	}
	return nil
}

func (c *Controller) transcribe(s *session, art audio.Artifact) {
	defer c.pipelines.Done()
	defer art.Remove()

	if s.cancelled.Load() {
		log.SessionCancel(s.id, "queued")
		c.finish(s, OutcomeCancelled)
		return
	}

	req := transcriber.Request{
		Artifact:  art.Path,
		Mode:      string(s.mode),
		Duration:  art.Duration,
		Language:  c.cfg.Language,
		Translate: s.mode == hotkey.ModeTranslate,
		Target:    c.cfg.Target,
	}
	out, err := c.deps.Transcriber.Transcribe(s.ctx, req)
	if s.cancelled.Load() || errors.Is(err, transcriber.ErrCancelled) {
		log.SessionCancel(s.id, "transcribing")
		c.finish(s, OutcomeCancelled)
		return
	}
	if err != nil {
		c.fail(s, err)
		return
	}

	log.Transcription(out.Engine, string(s.mode), out.Translated, out.Fallback, len(out.Text), metrics(out, art))
	if out.Text == "" {
		log.Info("empty transcript")
		c.finish(s, OutcomeEmpty)
		return
	}

	if err := c.deps.Delivery.Deliver(out.Text, s.mode); err != nil {
		c.fail(s, fmt.Errorf("delivering text: %w", err))
		return
	}
	c.record(out.Text, art.Duration)
	c.finish(s, OutcomeDelivered)
}

// record feeds the history and usage sinks without waiting for them.
func (c *Controller) record(text string, dur time.Duration) {
	log.Usage(len(text), dur.Seconds())
	if h := c.deps.History; h != nil {
		c.async(func() error { return h.RecordHistory(text) }, "history")
	}
	if u := c.deps.Usage; u != nil {
		c.async(func() error { return u.RecordUsage(len(text), dur) }, "usage")
	}
}

func (c *Controller) notify(title, body string) {
	if n := c.deps.Notifier; n != nil {
		c.async(func() error { return n.Notify(title, body) }, "notify")
	}
}

func (c *Controller) async(fn func() error, what string) {
	c.sinks.Add(1)
	go func() {
		defer c.sinks.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("%s sink panic: %v", what, r)
			}
		}()
		if err := fn(); err != nil {
			log.Warnf("%s sink: %v", what, err)
		}
	}()
}

func (c *Controller) fail(s *session, err error) {
	log.Errorf("session %s failed: %v", s.id, err)
	c.notify("Transcription failed", userMessage(err))
	c.finish(s, OutcomeFailed)
}

// release drops a session that never started capturing.
func (c *Controller) release(s *session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	s.cancel()
}

func (c *Controller) finish(s *session, outcome Outcome) {
	c.release(s)
	c.deps.Observer.SessionEnded(s.id, s.mode, outcome)
}

func metrics(out *transcriber.Transcription, art audio.Artifact) log.Metrics {
	m := log.Metrics{
		AudioLengthS: art.Duration.Seconds(),
		TotalTimeMs:  float64(out.Elapsed) / float64(time.Millisecond),
	}
	if r := out.Remote; r != nil {
		m.UploadKB = float64(r.UploadBytes) / 1024
		m.EncodeTimeMs = float64(r.EncodeTime) / float64(time.Millisecond)
		if nm := r.Metrics; nm != nil {
			m.DNSTimeMs = float64(nm.DNS) / float64(time.Millisecond)
			m.TLSTimeMs = float64(nm.TLS) / float64(time.Millisecond)
			m.TTFBMs = float64(nm.TTFB) / float64(time.Millisecond)
			m.ConnReused = nm.ConnReused
			m.TLSProto = nm.TLSProtocol
		}
	}
	return m
}

// userMessage turns a pipeline error into notification text.
func userMessage(err error) string {
	var se *transcriber.ServerError
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access is not granted."
	case errors.Is(err, audio.ErrDeviceSetupFailed):
		return "The microphone could not be opened."
	case errors.Is(err, transcriber.ErrModelNotLoaded):
		return "The local model is not loaded."
	case errors.Is(err, transcriber.ErrNoCredential):
		return "No API key configured."
	case errors.Is(err, transcriber.ErrAuth):
		return "The API key was rejected."
	case errors.Is(err, transcriber.ErrConnectivity):
		return "No network connection and no local model to fall back to."
	case errors.Is(err, transcriber.ErrTimeout):
		return "The transcription service did not respond in time."
	case errors.Is(err, transcriber.ErrTranslation):
		return "Translation failed; nothing was inserted."
	case errors.As(err, &se):
		return fmt.Sprintf("%s returned %d: %s", se.Provider, se.Status, se.Message)
	}
	return err.Error()
}
