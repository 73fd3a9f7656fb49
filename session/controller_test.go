package session

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manikosto/talkkey/audio"
	"github.com/manikosto/talkkey/encoder"
	"github.com/manikosto/talkkey/hotkey"
	"github.com/manikosto/talkkey/transcriber"
)

type delivery struct {
	text string
	mode hotkey.Mode
}

// recorder implements every sink and the Observer.
type recorder struct {
	mu        sync.Mutex
	delivered []delivery
	notes     []string
	history   []string
	usage     []int
	outcomes  []Outcome

	levels     atomic.Int32
	ended      chan Outcome
	onStopped  func()
	deliverErr error
	historyErr error
}

func newRecorder() *recorder {
	return &recorder{ended: make(chan Outcome, 16)}
}

func (r *recorder) Deliver(text string, mode hotkey.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deliverErr != nil {
		return r.deliverErr
	}
	r.delivered = append(r.delivered, delivery{text, mode})
	return nil
}

func (r *recorder) Notify(title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, title)
	return nil
}

func (r *recorder) RecordHistory(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, text)
	return r.historyErr
}

func (r *recorder) RecordUsage(chars int, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, chars)
	return nil
}

func (r *recorder) SessionStarted(string, hotkey.Mode) {}
func (r *recorder) Level(audio.LevelSample)            { r.levels.Add(1) }

func (r *recorder) SessionStopped(string) {
	if r.onStopped != nil {
		r.onStopped()
	}
}

func (r *recorder) SessionEnded(_ string, _ hotkey.Mode, o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	r.ended <- o
}

func (r *recorder) snapshot() (delivered []delivery, notes, history []string, usage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.delivered...), append([]string(nil), r.notes...),
		append([]string(nil), r.history...), len(r.usage)
}

type grant bool

func (g grant) MicrophoneAuthorized() bool { return bool(g) }
func (g grant) RequestMicrophone() bool    { return bool(g) }

func speech() []int16 {
	s := make([]int16, encoder.SampleRate/2)
	for i := range s {
		s[i] = int16(8000 * math.Sin(2*math.Pi*300*float64(i)/encoder.SampleRate))
	}
	return s
}

func silence() []int16 { return make([]int16, encoder.SampleRate/2) }

type harness struct {
	t       *testing.T
	ctx     *audio.FakeContext
	tmp     string
	remote  *transcriber.FakeRemote
	local   *transcriber.FakeLocal
	tr      *transcriber.FakeTranslator
	network *transcriber.FakeNetwork
	sinks   *recorder
	c       *Controller
	base    int32 // level samples seen before the current session
}

type option func(*harness, *Deps, *transcriber.Config, *Config)

func withPCM(samples []int16) option {
	return func(h *harness, _ *Deps, _ *transcriber.Config, _ *Config) {
		h.ctx = audio.NewFakeContextPCM(samples, false)
	}
}

func withRemoteText(text string) option {
	return func(h *harness, _ *Deps, tc *transcriber.Config, _ *Config) {
		h.remote = transcriber.NewFake(text, nil)
		tc.Remote = h.remote
	}
}

func withTranslatorError(err error) option {
	return func(h *harness, _ *Deps, tc *transcriber.Config, _ *Config) {
		h.tr = transcriber.NewFakeTranslator(err)
		tc.Translator = h.tr
	}
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		ctx:     audio.NewFakeContextPCM(speech(), false),
		tmp:     t.TempDir(),
		remote:  transcriber.NewFake(" hello world ", nil),
		local:   transcriber.NewFakeLocal("local text", nil),
		tr:      transcriber.NewFakeTranslator(nil),
		network: transcriber.NewFakeNetwork(true),
		sinks:   newRecorder(),
	}
	h.local.Loaded = false
	deps := Deps{Permissions: grant(true)}
	tcfg := transcriber.Config{
		Preference:  transcriber.PreferCloud,
		Remote:      h.remote,
		Local:       h.local,
		Translator:  h.tr,
		Network:     h.network,
		Credentials: transcriber.StaticCredential("key"),
	}
	cfg := Config{Target: "de"}
	for _, o := range opts {
		o(h, &deps, &tcfg, &cfg)
	}

	rec := audio.NewRecorder(h.ctx, nil, nil)
	rec.TempDir = h.tmp
	rec.Interval = 5 * time.Millisecond

	deps.Recorder = rec
	deps.Transcriber = transcriber.NewOrchestrator(tcfg)
	deps.Delivery = h.sinks
	deps.Notifier = h.sinks
	deps.History = h.sinks
	deps.Usage = h.sinks
	deps.Observer = h.sinks
	h.c = New(context.Background(), deps, cfg)
	return h
}

func (h *harness) waitLevels() {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.sinks.levels.Load() <= h.base {
		if time.Now().After(deadline) {
			h.t.Fatal("no level samples")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitEnded() Outcome {
	h.t.Helper()
	select {
	case o := <-h.sinks.ended:
		h.c.Wait()
		return o
	case <-time.After(3 * time.Second):
		h.t.Fatal("session never ended")
	}
	return 0
}

// record runs a full start/stop cycle and returns the outcome.
func (h *harness) record(mode hotkey.Mode) Outcome {
	h.t.Helper()
	h.base = h.sinks.levels.Load()
	if err := h.c.Start(mode); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.waitLevels()
	if err := h.c.Stop(); err != nil && !errors.Is(err, ErrNoSpeech) {
		h.t.Fatalf("Stop: %v", err)
	}
	return h.waitEnded()
}

func (h *harness) artifacts() int {
	h.t.Helper()
	entries, err := os.ReadDir(h.tmp)
	if err != nil {
		h.t.Fatal(err)
	}
	return len(entries)
}

func TestDirectDelivery(t *testing.T) {
	h := newHarness(t)
	if o := h.record(hotkey.ModeDirect); o != OutcomeDelivered {
		t.Fatalf("outcome = %s", o)
	}
	delivered, notes, history, usage := h.sinks.snapshot()
	if len(delivered) != 1 || delivered[0] != (delivery{"hello world", hotkey.ModeDirect}) {
		t.Fatalf("delivered = %+v", delivered)
	}
	if len(history) != 1 || usage != 1 || len(notes) != 0 {
		t.Errorf("history %v, usage %d, notes %v", history, usage, notes)
	}
	if h.c.Busy() {
		t.Error("controller still busy")
	}
	if n := h.artifacts(); n != 0 {
		t.Errorf("%d artifacts left behind", n)
	}
}

func TestReviewAndTranslateRouting(t *testing.T) {
	h := newHarness(t)
	h.record(hotkey.ModeReview)
	h.record(hotkey.ModeTranslate)

	delivered, _, _, _ := h.sinks.snapshot()
	want := []delivery{
		{"hello world", hotkey.ModeReview},
		{"[de] hello world", hotkey.ModeTranslate},
	}
	if len(delivered) != len(want) {
		t.Fatalf("delivered = %+v", delivered)
	}
	for i := range want {
		if delivered[i] != want[i] {
			t.Errorf("delivery %d = %+v, want %+v", i, delivered[i], want[i])
		}
	}
	if h.tr.Calls() != 1 {
		t.Errorf("translator calls = %d", h.tr.Calls())
	}
}

func TestSilenceSkipsTranscription(t *testing.T) {
	h := newHarness(t, withPCM(silence()))
	if err := h.c.Start(hotkey.ModeDirect); err != nil {
		t.Fatal(err)
	}
	h.waitLevels()
	if err := h.c.Stop(); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("Stop = %v, want ErrNoSpeech", err)
	}
	if o := h.waitEnded(); o != OutcomeNoSpeech {
		t.Fatalf("outcome = %s", o)
	}
	delivered, notes, history, _ := h.sinks.snapshot()
	if h.remote.Calls() != 0 || len(delivered) != 0 || len(history) != 0 {
		t.Fatal("silent recording was transcribed")
	}
	if len(notes) != 1 || notes[0] != "No speech detected" {
		t.Fatalf("notes = %v", notes)
	}
	if h.artifacts() != 0 {
		t.Error("silent artifact not removed")
	}
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(hotkey.ModeDirect); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := h.c.Start(hotkey.ModeReview); !errors.Is(err, ErrSessionActive) {
			t.Fatalf("second Start = %v", err)
		}
	}
	if n := len(h.ctx.Captures()); n != 1 {
		t.Fatalf("%d captures opened", n)
	}
	h.waitLevels()
	h.c.Stop()
	h.waitEnded()
	delivered, _, _, _ := h.sinks.snapshot()
	if len(delivered) != 1 || delivered[0].mode != hotkey.ModeDirect {
		t.Fatalf("delivered = %+v", delivered)
	}
}

func TestStartRefusedWhileTranscribing(t *testing.T) {
	h := newHarness(t)
	h.remote.Block = true

	if err := h.c.Start(hotkey.ModeDirect); err != nil {
		t.Fatal(err)
	}
	h.waitLevels()
	if err := h.c.Stop(); err != nil {
		t.Fatal(err)
	}
	if !h.c.Busy() {
		t.Fatal("not busy while transcribing")
	}
	if err := h.c.Start(hotkey.ModeDirect); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("Start during transcription = %v", err)
	}
	if err := h.c.Stop(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Stop during transcription = %v", err)
	}

	h.c.Cancel()
	if o := h.waitEnded(); o != OutcomeCancelled {
		t.Fatalf("outcome = %s", o)
	}
	delivered, notes, _, _ := h.sinks.snapshot()
	if len(delivered) != 0 || len(notes) != 0 {
		t.Fatalf("cancelled session delivered %v / notified %v", delivered, notes)
	}

	h.remote.Block = false
	if o := h.record(hotkey.ModeDirect); o != OutcomeDelivered {
		t.Fatalf("next session outcome = %s", o)
	}
}

func TestCancelWhileRecording(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(hotkey.ModeTranslate); err != nil {
		t.Fatal(err)
	}
	h.waitLevels()
	if err := h.c.Cancel(); err != nil {
		t.Fatal(err)
	}
	if o := h.waitEnded(); o != OutcomeCancelled {
		t.Fatalf("outcome = %s", o)
	}
	if err := h.c.Stop(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Stop after cancel = %v", err)
	}
	h.c.Wait()
	delivered, notes, history, usage := h.sinks.snapshot()
	if h.remote.Calls() != 0 || h.tr.Calls() != 0 || len(delivered)+len(history)+usage+len(notes) != 0 {
		t.Fatal("cancelled session reached the pipeline")
	}
	if h.artifacts() != 0 {
		t.Error("artifact not deleted")
	}
	if !h.ctx.LastCapture().Closed() {
		t.Error("device left open")
	}
}

func TestCancelRacingStop(t *testing.T) {
	h := newHarness(t)
	h.sinks.onStopped = func() { h.c.Cancel() }

	if err := h.c.Start(hotkey.ModeDirect); err != nil {
		t.Fatal(err)
	}
	h.waitLevels()
	if err := h.c.Stop(); err != nil {
		t.Fatal(err)
	}
	if o := h.waitEnded(); o != OutcomeCancelled {
		t.Fatalf("outcome = %s", o)
	}
	delivered, _, _, _ := h.sinks.snapshot()
	if h.remote.Calls() != 0 || len(delivered) != 0 {
		t.Fatal("cancel between stop and transcription still transcribed")
	}
	if h.artifacts() != 0 {
		t.Error("artifact not deleted")
	}
}

func TestCancelAbortsInFlightTranscription(t *testing.T) {
	h := newHarness(t)
	h.remote.Block = true
	if err := h.c.Start(hotkey.ModeTranslate); err != nil {
		t.Fatal(err)
	}
	h.waitLevels()
	h.c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for h.remote.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	start := time.Now()
	h.c.Cancel()
	if o := h.waitEnded(); o != OutcomeCancelled {
		t.Fatalf("outcome = %s", o)
	}
	if time.Since(start) > time.Second {
		t.Error("cancel did not abort the request")
	}
	delivered, notes, history, _ := h.sinks.snapshot()
	if h.tr.Calls() != 0 || len(delivered)+len(history)+len(notes) != 0 {
		t.Fatal("cancelled transcription reached delivery")
	}
}

func TestPreconditionFailures(t *testing.T) {
	tests := []struct {
		name string
		opt  option
		want error
	}{
		{"permission", func(_ *harness, d *Deps, _ *transcriber.Config, _ *Config) {
			d.Permissions = grant(false)
		}, audio.ErrPermissionDenied},
		{"credential", func(_ *harness, _ *Deps, tc *transcriber.Config, _ *Config) {
			tc.Credentials = transcriber.StaticCredential("")
		}, transcriber.ErrNoCredential},
		{"local model", func(_ *harness, _ *Deps, tc *transcriber.Config, _ *Config) {
			tc.Preference = transcriber.PreferLocal
		}, transcriber.ErrModelNotLoaded},
		{"device", func(h *harness, _ *Deps, _ *transcriber.Config, _ *Config) {
			h.ctx.FailOpen = errors.New("no such device")
		}, audio.ErrDeviceSetupFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opt)
			if err := h.c.Start(hotkey.ModeDirect); !errors.Is(err, tt.want) {
				t.Fatalf("Start = %v, want %v", err, tt.want)
			}
			h.c.Wait()
			if h.c.Busy() {
				t.Fatal("failed start left a session")
			}
			_, notes, _, _ := h.sinks.snapshot()
			if len(notes) != 1 {
				t.Fatalf("notes = %v", notes)
			}
			if h.artifacts() != 0 {
				t.Error("artifact left behind")
			}
		})
	}
}

func TestOfflineFallbackDelivers(t *testing.T) {
	h := newHarness(t)
	h.network.Set(false)
	h.local.Loaded = true

	if o := h.record(hotkey.ModeDirect); o != OutcomeDelivered {
		t.Fatalf("outcome = %s", o)
	}
	delivered, notes, _, _ := h.sinks.snapshot()
	if len(delivered) != 1 || delivered[0].text != "local text" {
		t.Fatalf("delivered = %+v", delivered)
	}
	if len(notes) != 0 || h.remote.Calls() != 0 {
		t.Errorf("notes %v, remote calls %d", notes, h.remote.Calls())
	}
}

func TestFailureNotifiesOnceAndResets(t *testing.T) {
	tests := []struct {
		name string
		opt  option
	}{
		{"offline without local", func(h *harness, _ *Deps, _ *transcriber.Config, _ *Config) {
			h.network.Set(false)
		}},
		{"translation", withTranslatorError(errors.New("upstream 503"))},
		{"delivery", func(h *harness, _ *Deps, _ *transcriber.Config, _ *Config) {
			h.sinks.deliverErr = errors.New("no focused window")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opt)
			if o := h.record(hotkey.ModeTranslate); o != OutcomeFailed {
				t.Fatalf("outcome = %s", o)
			}
			delivered, notes, history, _ := h.sinks.snapshot()
			if len(delivered) != 0 || len(history) != 0 {
				t.Fatalf("failed session delivered %v", delivered)
			}
			if len(notes) != 1 || notes[0] != "Transcription failed" {
				t.Fatalf("notes = %v", notes)
			}
			if h.c.Busy() {
				t.Fatal("controller stuck after failure")
			}
			if err := h.c.Start(hotkey.ModeDirect); err != nil {
				t.Fatalf("Start after failure: %v", err)
			}
			h.c.Cancel()
			h.waitEnded()
		})
	}
}

func TestEmptyTranscriptIsNotDelivered(t *testing.T) {
	h := newHarness(t, withRemoteText("  \n "))
	if o := h.record(hotkey.ModeTranslate); o != OutcomeEmpty {
		t.Fatalf("outcome = %s", o)
	}
	delivered, _, history, usage := h.sinks.snapshot()
	if len(delivered)+len(history)+usage != 0 || h.tr.Calls() != 0 {
		t.Fatal("empty transcript reached sinks")
	}
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	h := newHarness(t)
	h.sinks.historyErr = errors.New("disk full")
	if o := h.record(hotkey.ModeDirect); o != OutcomeDelivered {
		t.Fatalf("outcome = %s", o)
	}
	_, notes, _, _ := h.sinks.snapshot()
	if len(notes) != 0 {
		t.Fatalf("history failure surfaced: %v", notes)
	}
}

// runHotkeys wires a fake key source through the detector into the
// controller, the way main does.
func runHotkeys(t *testing.T, h *harness) *hotkey.FakeSource {
	t.Helper()
	src := hotkey.NewFake()
	l := hotkey.NewListener(src, hotkey.NewDetector(hotkey.DefaultConfig()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.c.Run(ctx, l.Signals())
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		l.Close()
		<-done
		h.c.Wait()
	})
	return src
}

func TestHoldPrimaryScenario(t *testing.T) {
	h := newHarness(t)
	src := runHotkeys(t, h)

	src.SimFlags(hotkey.FlagRightCtrl)
	h.waitLevels()
	src.SimRelease()
	if o := h.waitEnded(); o != OutcomeDelivered {
		t.Fatalf("outcome = %s", o)
	}

	if n := len(h.ctx.Captures()); n != 1 {
		t.Fatalf("%d captures, want 1", n)
	}
	if h.remote.Calls() != 1 {
		t.Fatalf("%d transcription requests, want 1", h.remote.Calls())
	}
	delivered, _, _, _ := h.sinks.snapshot()
	if len(delivered) != 1 || delivered[0].mode != hotkey.ModeDirect {
		t.Fatalf("delivered = %+v", delivered)
	}
}

func TestHoldFnStartsOnce(t *testing.T) {
	h := newHarness(t)
	src := runHotkeys(t, h)

	src.SimFlags(hotkey.FlagFn)
	h.waitLevels()
	for range 100 {
		src.SimFlags(hotkey.FlagFn)
	}
	src.SimRelease()
	if o := h.waitEnded(); o != OutcomeDelivered {
		t.Fatalf("outcome = %s", o)
	}
	if n := len(h.ctx.Captures()); n != 1 {
		t.Fatalf("%d captures, want 1", n)
	}
	delivered, _, _, _ := h.sinks.snapshot()
	if len(delivered) != 1 || delivered[0].mode != hotkey.ModeTranslate {
		t.Fatalf("delivered = %+v", delivered)
	}
}

func TestEscapeCancelsScenario(t *testing.T) {
	h := newHarness(t)
	src := runHotkeys(t, h)

	src.SimFlags(hotkey.FlagRightAlt)
	h.waitLevels()
	src.SimKey(hotkey.KeyEscape)
	if o := h.waitEnded(); o != OutcomeCancelled {
		t.Fatalf("outcome = %s", o)
	}
	src.SimRelease()
	if h.remote.Calls() != 0 {
		t.Fatal("cancelled session was transcribed")
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeNoSpeech.String() != "no_speech" || OutcomeFailed.String() != "failed" {
		t.Fatal("unexpected outcome names")
	}
}

// eagerRecorder samples a level before the capture is even handed back.
type eagerRecorder struct{ Recorder }

func (r eagerRecorder) Start(device string, onLevel func(audio.LevelSample)) (*audio.Capture, error) {
	onLevel(audio.LevelSample{})
	return r.Recorder.Start(device, onLevel)
}

type orderObserver struct {
	*recorder
	mu     sync.Mutex
	events []string
}

func (o *orderObserver) SessionStarted(string, hotkey.Mode) {
	o.mu.Lock()
	o.events = append(o.events, "started")
	o.mu.Unlock()
}

func (o *orderObserver) Level(s audio.LevelSample) {
	o.mu.Lock()
	o.events = append(o.events, "level")
	o.mu.Unlock()
	o.recorder.Level(s)
}

func TestLevelsFollowSessionStarted(t *testing.T) {
	h := newHarness(t)
	obs := &orderObserver{recorder: h.sinks}
	deps := h.c.deps
	deps.Recorder = eagerRecorder{deps.Recorder}
	deps.Observer = obs
	h.c = New(context.Background(), deps, h.c.cfg)

	if got := h.record(hotkey.ModeDirect); got != OutcomeDelivered {
		t.Fatalf("outcome = %v", got)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.events) < 2 || obs.events[0] != "started" {
		t.Fatalf("events = %v, want started before any level", obs.events)
	}
}
