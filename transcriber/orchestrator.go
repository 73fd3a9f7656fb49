package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manikosto/talkkey/log"
)

// Preference is the engine the user asked for.
type Preference string

const (
	PreferLocal Preference = "local"
	PreferCloud Preference = "cloud"
)

const DefaultRemoteTimeout = 60 * time.Second

// Config wires the Orchestrator's collaborators. Local, Remote and
// Translator may be nil when not configured.
type Config struct {
	Preference    Preference
	Local         Local
	Remote        Remote
	Translator    Translator
	Network       Reachability
	Credentials   CredentialStore
	RemoteTimeout time.Duration
}

// Request is one finished recording to transcribe.
type Request struct {
	Artifact string
	Mode     string // recording mode, for logs
	Duration time.Duration
	Language string // source language hint, "" to auto-detect
	// Translate asks for the text in Target instead of the spoken language.
	Translate bool
	Target    string
}

// Transcription is the outcome of a successful request.
type Transcription struct {
	Text       string
	Engine     string // engine that produced the transcript
	Translated bool
	// TranslatedLocally is set when the local engine's own translate task
	// replaced the separate translation call.
	TranslatedLocally bool
	Fallback          bool
	Elapsed           time.Duration
	Remote            *Result // nil for local transcriptions
}

// Path describes which engines produced the text, e.g. "groq+translation".
func (t *Transcription) Path() string {
	p := t.Engine
	if t.Translated && !t.TranslatedLocally {
		p += "+translation"
	}
	if t.Fallback {
		p += " (fallback)"
	}
	return p
}

// Availability is the set of runtime facts consulted for a request.
type Availability struct {
	LocalLoaded bool
	Reachable   bool
	Credential  bool
}

// Orchestrator picks an engine for each request, falls back to the local
// engine when the network is gone, and applies translation.
type Orchestrator struct {
	cfg Config
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	if cfg.Preference == "" {
		cfg.Preference = PreferCloud
	}
	return &Orchestrator{cfg: cfg}
}

func (o *Orchestrator) Preference() Preference { return o.cfg.Preference }

// Availability is recomputed on every call.
func (o *Orchestrator) Availability() Availability {
	a := Availability{
		LocalLoaded: o.localReady(),
		Reachable:   o.cfg.Network == nil || o.cfg.Network.IsReachable(),
	}
	if o.cfg.Credentials != nil {
		_, a.Credential = o.cfg.Credentials.Credential()
	}
	return a
}

// Ready reports whether a recording could be transcribed with the selected
// preference: a loaded local engine for local, a credential for cloud.
func (o *Orchestrator) Ready() error {
	a := o.Availability()
	switch o.cfg.Preference {
	case PreferLocal:
		if !a.LocalLoaded {
			return ErrModelNotLoaded
		}
	default:
		if o.cfg.Remote == nil || !a.Credential {
			return ErrNoCredential
		}
	}
	return nil
}

func (o *Orchestrator) localReady() bool {
	return o.cfg.Local != nil && o.cfg.Local.IsLoaded()
}

// localTranslates reports whether the local engine's built-in translate task
// produces target.
func localTranslates(target string) bool {
	switch strings.ToLower(target) {
	case "en", "english":
		return true
	}
	return false
}

// Transcribe runs one request. Cancelling ctx aborts the engine call in
// flight and returns an error wrapping ErrCancelled; no partial result is
// ever returned. An empty Text means nothing was recognized.
func (o *Orchestrator) Transcribe(ctx context.Context, req Request) (*Transcription, error) {
	start := time.Now()
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	var (
		out *Transcription
		err error
	)
	if o.cfg.Preference == PreferLocal {
		out, err = o.viaLocal(ctx, req)
	} else {
		out, err = o.viaCloud(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	out.Text = strings.TrimSpace(out.Text)
	if req.Translate && !out.Translated && out.Text != "" {
		text, err := o.translate(ctx, out.Text, req.Target)
		if err != nil {
			return nil, err
		}
		out.Text = text
		out.Translated = true
	}

	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	out.Elapsed = time.Since(start)
	return out, nil
}

func (o *Orchestrator) viaLocal(ctx context.Context, req Request) (*Transcription, error) {
	if !o.localReady() {
		return nil, ErrModelNotLoaded
	}
	combined := req.Translate && localTranslates(req.Target)
	text, err := o.cfg.Local.Transcribe(ctx, req.Artifact, req.Language, combined)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, err
	}
	return &Transcription{
		Text:              text,
		Engine:            o.cfg.Local.Name(),
		Translated:        combined,
		TranslatedLocally: combined,
	}, nil
}

func (o *Orchestrator) viaCloud(ctx context.Context, req Request) (*Transcription, error) {
	if o.cfg.Remote == nil {
		return nil, ErrNoCredential
	}
	if o.cfg.Network != nil && !o.cfg.Network.IsReachable() {
		if o.localReady() {
			return o.fallback(ctx, req, "unreachable")
		}
		return nil, fmt.Errorf("%s: %w", o.cfg.Remote.Name(), ErrConnectivity)
	}

	rctx, cancel := context.WithTimeout(ctx, o.cfg.RemoteTimeout)
	res, err := o.cfg.Remote.Transcribe(rctx, req.Artifact, req.Language)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		if errors.Is(err, ErrConnectivity) && o.localReady() {
			return o.fallback(ctx, req, err.Error())
		}
		return nil, err
	}
	return &Transcription{
		Text:   res.Text,
		Engine: o.cfg.Remote.Name(),
		Remote: res,
	}, nil
}

func (o *Orchestrator) fallback(ctx context.Context, req Request, reason string) (*Transcription, error) {
	log.EngineFallback(o.cfg.Remote.Name(), o.cfg.Local.Name(), reason)
	out, err := o.viaLocal(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Fallback = true
	return out, nil
}

// translate never returns the untranslated text: any failure is an error
// wrapping ErrTranslation, or ErrCancelled.
func (o *Orchestrator) translate(ctx context.Context, text, target string) (string, error) {
	if o.cfg.Translator == nil {
		return "", fmt.Errorf("%w: no translator configured", ErrTranslation)
	}
	tctx, cancel := context.WithTimeout(ctx, o.cfg.RemoteTimeout)
	defer cancel()
	out, err := o.cfg.Translator.Translate(tctx, text, target)
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		if !errors.Is(err, ErrTranslation) {
			err = fmt.Errorf("%w: %w", ErrTranslation, err)
		}
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty translation", ErrTranslation)
	}
	return out, nil
}
