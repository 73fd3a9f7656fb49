package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
)

const openAIURL = "https://api.openai.com/v1/audio/transcriptions"

type OpenAI struct {
	client *TracedClient
	apiURL string
	creds  CredentialStore
}

func NewOpenAI(creds CredentialStore) *OpenAI {
	return &OpenAI{
		client: NewTracedClient(openAIURL),
		apiURL: openAIURL,
		creds:  creds,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Warm() { o.client.Warm() }

func (o *OpenAI) Transcribe(ctx context.Context, artifact, lang string) (*Result, error) {
	resp, audio, err := upload{
		provider: o.Name(),
		client:   o.client,
		apiURL:   o.apiURL,
		creds:    o.creds,
		fields: map[string]string{
			"model":           "gpt-4o-transcribe",
			"response_format": "json",
			"language":        lang,
		},
	}.do(ctx, artifact)
	if err != nil {
		return nil, err
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("openai response parse error: %w", err)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:        oResp.Text,
		Metrics:     resp.Metrics,
		RateLimit:   remaining + "/" + limit,
		UploadBytes: len(audio.Data),
		EncodeTime:  audio.EncodeTime,
	}, nil
}
