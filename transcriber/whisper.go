package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Whisper runs a local whisper.cpp build (whisper-cli) against a ggml model
// file. It translates to English only.
type Whisper struct {
	bin   string
	model string
}

func NewWhisper(bin, model string) *Whisper {
	if bin == "" {
		bin = "whisper-cli"
	}
	return &Whisper{bin: bin, model: model}
}

func (w *Whisper) Name() string { return "whisper" }

// IsLoaded reports whether both the binary and the model are present.
func (w *Whisper) IsLoaded() bool {
	if w.model == "" {
		return false
	}
	if _, err := exec.LookPath(w.bin); err != nil {
		return false
	}
	fi, err := os.Stat(w.model)
	return err == nil && !fi.IsDir()
}

func (w *Whisper) Transcribe(ctx context.Context, artifact, lang string, translateToEnglish bool) (string, error) {
	if !w.IsLoaded() {
		return "", ErrModelNotLoaded
	}
	if lang == "" {
		lang = "auto"
	}
	args := []string{"-m", w.model, "-f", artifact, "-l", lang, "-nt", "-np"}
	if translateToEnglish {
		args = append(args, "-tr")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if cerr := ctxError(ctx); cerr != nil {
		return "", fmt.Errorf("whisper: %w", cerr)
	}
	if err != nil {
		return "", fmt.Errorf("whisper: %w: %s", err, lastLine(stderr.String()))
	}

	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, " "), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
