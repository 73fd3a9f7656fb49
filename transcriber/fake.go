package transcriber

import (
	"context"
	"sync"
	"sync/atomic"
)

// FakeRemote is a Remote returning canned output. With Block set it waits
// for ctx to end and returns its error, which models a hung request.
type FakeRemote struct {
	text  string
	err   error
	Block bool

	calls atomic.Int32
	mu    sync.Mutex
	langs []string
}

func NewFake(text string, err error) *FakeRemote {
	return &FakeRemote{text: text, err: err}
}

func (f *FakeRemote) Name() string { return "fake" }
func (f *FakeRemote) Calls() int   { return int(f.calls.Load()) }

func (f *FakeRemote) Langs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.langs...)
}

func (f *FakeRemote) Transcribe(ctx context.Context, _, lang string) (*Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.langs = append(f.langs, lang)
	f.mu.Unlock()
	if f.Block {
		<-ctx.Done()
		return nil, transportError(f.Name(), ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Text: f.text}, nil
}

// FakeLocal is a Local engine. Translated text is prefixed with "[en] ".
type FakeLocal struct {
	Loaded bool
	text   string
	err    error
	Block  bool

	calls      atomic.Int32
	translates atomic.Int32
}

func NewFakeLocal(text string, err error) *FakeLocal {
	return &FakeLocal{Loaded: true, text: text, err: err}
}

func (f *FakeLocal) Name() string    { return "fake-local" }
func (f *FakeLocal) IsLoaded() bool  { return f.Loaded }
func (f *FakeLocal) Calls() int      { return int(f.calls.Load()) }
func (f *FakeLocal) Translates() int { return int(f.translates.Load()) }

func (f *FakeLocal) Transcribe(ctx context.Context, _, _ string, translate bool) (string, error) {
	f.calls.Add(1)
	if translate {
		f.translates.Add(1)
	}
	if f.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if translate {
		return "[en] " + f.text, nil
	}
	return f.text, nil
}

// FakeTranslator prefixes text with "[target] ".
type FakeTranslator struct {
	err   error
	Block bool

	calls atomic.Int32
}

func NewFakeTranslator(err error) *FakeTranslator {
	return &FakeTranslator{err: err}
}

func (f *FakeTranslator) Calls() int { return int(f.calls.Load()) }

func (f *FakeTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	f.calls.Add(1)
	if f.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return "[" + target + "] " + text, nil
}

// FakeNetwork is a settable Reachability.
type FakeNetwork struct {
	up atomic.Bool
}

func NewFakeNetwork(up bool) *FakeNetwork {
	n := &FakeNetwork{}
	n.up.Store(up)
	return n
}

func (n *FakeNetwork) IsReachable() bool { return n.up.Load() }
func (n *FakeNetwork) Set(up bool)       { n.up.Store(up) }
