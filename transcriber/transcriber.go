// Package transcriber turns recorded artifacts into text. It holds the
// remote and local engines, the translator, and the Orchestrator that
// chooses between them.
package transcriber

import (
	"context"
	"net/http"
	"time"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// Result is what a remote engine returns for one upload.
type Result struct {
	Text         string
	Metrics      *NetworkMetrics
	RateLimit    string
	NoSpeechProb float64
	Duration     float64
	UploadBytes  int
	EncodeTime   time.Duration
}

// Remote is a cloud speech-to-text API. Errors wrap ErrConnectivity,
// ErrTimeout, ErrAuth or ErrCancelled, or are a *ServerError.
type Remote interface {
	Name() string
	Transcribe(ctx context.Context, artifact, lang string) (*Result, error)
}

// Local is an on-device inference engine.
type Local interface {
	Name() string
	IsLoaded() bool
	Transcribe(ctx context.Context, artifact, lang string, translateToEnglish bool) (string, error)
}

// Translator translates finished text into a target language.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Reachability is read synchronously before every remote request.
type Reachability interface {
	IsReachable() bool
}

// CredentialStore supplies the cloud API key. It is consulted on every
// request so a key added at runtime is picked up.
type CredentialStore interface {
	Credential() (string, bool)
}

// StaticCredential is a CredentialStore holding a fixed key.
type StaticCredential string

func (c StaticCredential) Credential() (string, bool) {
	return string(c), c != ""
}
