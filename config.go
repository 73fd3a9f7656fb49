package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/manikosto/talkkey/hotkey"
	"github.com/manikosto/talkkey/transcriber"
)

// Config is everything read from flags and the environment at startup.
type Config struct {
	Engine         transcriber.Preference
	Provider       string
	Language       string
	Target         string
	Device         string
	Setup          bool
	LogPath        string
	Timeout        time.Duration
	AutoPaste      bool
	Notifications  bool
	Beep           bool
	Doctor         bool
	DoctorRecord   time.Duration
	Test           string
	Version        bool
	Hotkeys        hotkey.Config
	WhisperBin     string
	WhisperModel   string
	TranslateModel string
}

var providerKeys = map[string]string{
	"groq":   "GROQ_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// parseConfig reads args (without the program name) and getenv. A .env file
// must already be loaded into the environment.
func parseConfig(args []string, getenv func(string) string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("talkkey", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &Config{}
	engine := fs.String("engine", "cloud", "Transcription engine: cloud or local")
	fs.StringVar(&cfg.Provider, "provider", "", "Cloud provider: groq or openai (default: whichever has an API key)")
	fs.StringVar(&cfg.Language, "lang", "", "Spoken language code (e.g. en, de). Empty = auto-detect")
	fs.StringVar(&cfg.Target, "target", "en", "Target language for translate mode")
	fs.StringVar(&cfg.Device, "device", "", "Use named microphone device")
	fs.BoolVar(&cfg.Setup, "setup", false, "Select microphone device interactively")
	fs.StringVar(&cfg.LogPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.DurationVar(&cfg.Timeout, "timeout", transcriber.DefaultRemoteTimeout, "Remote transcription timeout")
	fs.BoolVar(&cfg.AutoPaste, "autopaste", true, "Auto-paste to focused window after transcription")
	fs.BoolVar(&cfg.Notifications, "notify", true, "Show desktop notifications")
	fs.BoolVar(&cfg.Beep, "beep", true, "Play start/stop cues")
	fs.BoolVar(&cfg.Doctor, "doctor", false, "Run system diagnostics and exit")
	fs.DurationVar(&cfg.DoctorRecord, "doctor-record", 3*time.Second, "Microphone check length for -doctor (0 skips it)")
	fs.StringVar(&cfg.Test, "test", "", "Test mode: replay `wav` as the microphone, driven by stdin")
	fs.BoolVar(&cfg.Version, "version", false, "Print version and exit")

	def := hotkey.DefaultConfig()
	primary := fs.String("primary", def.Primary.Flags.String(), "Modifiers held for direct insert")
	secondary := fs.String("secondary", def.Secondary.Flags.String(), "Modifiers held for review")
	translate := fs.String("translate", def.Translate.Flags.String(), "Modifiers pressed to start translate mode")
	cancel := fs.String("cancel", "esc", "Cancel key (only esc is supported)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	switch p := transcriber.Preference(strings.ToLower(*engine)); p {
	case transcriber.PreferCloud, transcriber.PreferLocal:
		cfg.Engine = p
	default:
		return nil, fmt.Errorf("unknown engine %q (use cloud or local)", *engine)
	}

	cfg.Hotkeys = def
	for _, b := range []struct {
		name string
		dst  *hotkey.Binding
		val  string
	}{
		{"primary", &cfg.Hotkeys.Primary, *primary},
		{"secondary", &cfg.Hotkeys.Secondary, *secondary},
		{"translate", &cfg.Hotkeys.Translate, *translate},
	} {
		f, err := hotkey.ParseFlags(b.val)
		if err != nil {
			return nil, fmt.Errorf("-%s: %w", b.name, err)
		}
		b.dst.Flags = f
	}
	if err := cfg.Hotkeys.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(*cancel) {
	case "esc", "escape":
		cfg.Hotkeys.CancelKey = hotkey.KeyEscape
	default:
		return nil, fmt.Errorf("unsupported cancel key %q", *cancel)
	}

	if cfg.Provider == "" {
		cfg.Provider = "groq"
		if getenv("GROQ_API_KEY") == "" && getenv("OPENAI_API_KEY") != "" {
			cfg.Provider = "openai"
		}
	}
	if _, ok := providerKeys[cfg.Provider]; !ok {
		return nil, fmt.Errorf("unknown provider %q (use groq or openai)", cfg.Provider)
	}

	cfg.WhisperBin = getenv("TALKKEY_WHISPER_BIN")
	cfg.WhisperModel = getenv("TALKKEY_WHISPER_MODEL")
	cfg.TranslateModel = getenv("TALKKEY_TRANSLATE_MODEL")
	return cfg, nil
}

// envCredential reads the provider key on every request.
type envCredential struct {
	key    string
	getenv func(string) string
}

func (c envCredential) Credential() (string, bool) {
	v := strings.TrimSpace(c.getenv(c.key))
	return v, v != ""
}

func (c *Config) credentials(getenv func(string) string) transcriber.CredentialStore {
	return envCredential{key: providerKeys[c.Provider], getenv: getenv}
}
