package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/manikosto/talkkey/encoder"
)

// upload is one multipart audio request to an OpenAI-compatible
// transcription endpoint.
type upload struct {
	provider string
	client   *TracedClient
	apiURL   string
	creds    CredentialStore
	fields   map[string]string
}

// do compresses the artifact to FLAC, posts it and returns the raw
// response. Non-2xx statuses are returned as taxonomy errors.
func (u upload) do(ctx context.Context, artifact string) (*TracedResponse, encoder.Compressed, error) {
	key, ok := u.creds.Credential()
	if !ok {
		return nil, encoder.Compressed{}, fmt.Errorf("%s: %w", u.provider, ErrNoCredential)
	}

	audio, err := encoder.FlacFromWAV(artifact)
	if err != nil {
		return nil, encoder.Compressed{}, fmt.Errorf("%s: encoding audio: %w", u.provider, err)
	}

	var body bytes.Buffer
	contentType, err := writeForm(&body, audio.Data, u.fields)
	if err != nil {
		return nil, audio, fmt.Errorf("%s: building upload: %w", u.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.apiURL, &body)
	if err != nil {
		return nil, audio, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, audio, transportError(u.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, audio, statusError(u.provider, resp.StatusCode, resp.Body)
	}
	return resp, audio, nil
}

// writeForm writes the multipart upload: the FLAC file part followed by
// the non-empty fields. It returns the form's content type.
func writeForm(w io.Writer, flac []byte, fields map[string]string) (string, error) {
	mw := multipart.NewWriter(w)
	part, err := mw.CreateFormFile("file", "audio.flac")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(flac); err != nil {
		return "", err
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}
