package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const groqChatURL = "https://api.groq.com/openai/v1"

// ChatTranslator translates through an OpenAI-compatible chat completion
// endpoint.
type ChatTranslator struct {
	creds   CredentialStore
	baseURL string
	model   string
	http    *http.Client
}

// NewChatTranslator returns a translator for provider ("groq" or "openai").
// model overrides the provider's default model when set.
func NewChatTranslator(provider string, creds CredentialStore, model string) *ChatTranslator {
	t := &ChatTranslator{creds: creds, model: model, http: &http.Client{}}
	switch provider {
	case "groq":
		t.baseURL = groqChatURL
		if t.model == "" {
			t.model = "llama-3.3-70b-versatile"
		}
	default:
		if t.model == "" {
			t.model = openai.GPT4oMini
		}
	}
	return t
}

func (t *ChatTranslator) client(key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if t.baseURL != "" {
		cfg.BaseURL = t.baseURL
	}
	cfg.HTTPClient = t.http
	return openai.NewClientWithConfig(cfg)
}

func (t *ChatTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	key, ok := t.creds.Credential()
	if !ok {
		return "", fmt.Errorf("%w: %w", ErrTranslation, ErrNoCredential)
	}

	resp, err := t.client(key).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "Translate the user's text into " + languageName(target) +
					". Reply with the translation only, no quotes or commentary.",
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranslation, chatError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrTranslation)
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("%w: empty response", ErrTranslation)
	}
	return out, nil
}

func chatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		}
		return &ServerError{Provider: "translate", Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", ErrAuth, reqErr.Err)
		}
		return &ServerError{Provider: "translate", Status: reqErr.HTTPStatusCode, Message: fmt.Sprint(reqErr.Err)}
	}
	return transportError("translate", err)
}

var languageNames = map[string]string{
	"en": "English", "de": "German", "fr": "French", "es": "Spanish",
	"it": "Italian", "pt": "Portuguese", "ru": "Russian", "uk": "Ukrainian",
	"pl": "Polish", "nl": "Dutch", "tr": "Turkish", "ja": "Japanese",
	"zh": "Chinese", "ko": "Korean",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
