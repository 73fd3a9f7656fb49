package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
)

const groqURL = "https://api.groq.com/openai/v1/audio/transcriptions"

type Groq struct {
	client *TracedClient
	apiURL string
	creds  CredentialStore
}

func NewGroq(creds CredentialStore) *Groq {
	return &Groq{
		client: NewTracedClient(groqURL),
		apiURL: groqURL,
		creds:  creds,
	}
}

func (g *Groq) Name() string { return "groq" }

// Warm pre-opens the TLS connection; call it when recording starts.
func (g *Groq) Warm() { g.client.Warm() }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, artifact, lang string) (*Result, error) {
	resp, audio, err := upload{
		provider: g.Name(),
		client:   g.client,
		apiURL:   g.apiURL,
		creds:    g.creds,
		fields: map[string]string{
			"model":           "whisper-large-v3-turbo",
			"response_format": "verbose_json",
			"language":        lang,
		},
	}.do(ctx, artifact)
	if err != nil {
		return nil, err
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	var noSpeechProb float64
	for _, seg := range gResp.Segments {
		if seg.NoSpeechProb > noSpeechProb {
			noSpeechProb = seg.NoSpeechProb
		}
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:         gResp.Text,
		Metrics:      resp.Metrics,
		RateLimit:    remaining + "/" + limit,
		NoSpeechProb: noSpeechProb,
		Duration:     gResp.Duration,
		UploadBytes:  len(audio.Data),
		EncodeTime:   audio.EncodeTime,
	}, nil
}
