package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

var (
	ErrModelNotLoaded = errors.New("local model not loaded")
	ErrConnectivity   = errors.New("no network connection")
	ErrTimeout        = errors.New("request timed out")
	ErrAuth           = errors.New("authentication failed")
	ErrNoCredential   = errors.New("no API key configured")
	ErrTranslation    = errors.New("translation failed")
	ErrCancelled      = errors.New("cancelled")
)

// ServerError is a non-auth HTTP error returned by an API. Quota and rate
// limit responses land here too.
type ServerError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Message)
}

// transportError maps a failed round trip onto the error taxonomy.
func transportError(provider string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", provider, ErrCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", provider, ErrTimeout)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w", provider, ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", provider, ErrConnectivity, err)
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(provider string, status int, body []byte) error {
	msg := apiMessage(body)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s: %w: %s", provider, ErrAuth, msg)
	}
	return &ServerError{Provider: provider, Status: status, Message: msg}
}

// apiMessage extracts {"error":{"message":...}} from an OpenAI-style error
// body, falling back to the raw body.
const maxMessage = 200

func apiMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessage {
		cut := maxMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}

// ctxError reports the cancellation state of ctx in taxonomy terms, or nil.
func ctxError(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return ErrTimeout
	default:
		return ErrCancelled
	}
}
