package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"time"

	"github.com/joho/godotenv"

	"github.com/manikosto/talkkey/audio"
	"github.com/manikosto/talkkey/beep"
	"github.com/manikosto/talkkey/clipboard"
	"github.com/manikosto/talkkey/doctor"
	"github.com/manikosto/talkkey/hotkey"
	"github.com/manikosto/talkkey/log"
	"github.com/manikosto/talkkey/notify"
	"github.com/manikosto/talkkey/session"
	"github.com/manikosto/talkkey/shutdown"
	"github.com/manikosto/talkkey/transcriber"
)

var version = "dev"

const (
	probeInterval      = 5 * time.Second
	devicePollInterval = 3 * time.Second
)

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// engines is the transcription stack built from Config.
type engines struct {
	orch   *transcriber.Orchestrator
	local  transcriber.Local
	remote transcriber.Remote
	prober *transcriber.Prober
}

func newEngines(cfg *Config) *engines {
	creds := cfg.credentials(os.Getenv)
	e := &engines{local: transcriber.NewWhisper(cfg.WhisperBin, cfg.WhisperModel)}

	host := "api.groq.com:443"
	switch cfg.Provider {
	case "openai":
		e.remote = transcriber.NewOpenAI(creds)
		host = "api.openai.com:443"
	default:
		e.remote = transcriber.NewGroq(creds)
	}
	e.prober = transcriber.NewProber(host, probeInterval)

	e.orch = transcriber.NewOrchestrator(transcriber.Config{
		Preference:    cfg.Engine,
		Local:         e.local,
		Remote:        e.remote,
		Translator:    transcriber.NewChatTranslator(cfg.Provider, creds, cfg.TranslateModel),
		Network:       e.prober,
		Credentials:   creds,
		RemoteTimeout: cfg.Timeout,
	})
	return e
}

// start runs the reachability probe and pre-warms the API connection.
func (e *engines) start(ctx context.Context) {
	go e.prober.Run(ctx)
	if w, ok := e.remote.(interface{ Warm() }); ok && e.orch.Availability().Credential {
		go w.Warm()
	}
}

type app struct {
	controller *session.Controller
	usage      *usageCounter
	feedback   *feedback
}

func newApp(ctx context.Context, cfg *Config, rec session.Recorder, perms audio.Permissions, tr session.Transcriber, d *delivery) *app {
	a := &app{usage: &usageCounter{}, feedback: newFeedback(audio.LevelInterval)}
	a.controller = session.New(ctx, session.Deps{
		Recorder:    rec,
		Transcriber: tr,
		Permissions: perms,
		Delivery:    d,
		Notifier:    d.notifier,
		History:     history{},
		Usage:       a.usage,
		Observer:    a.feedback,
	}, session.Config{
		Device:   cfg.Device,
		Language: cfg.Language,
		Target:   cfg.Target,
	})
	return a
}

// serve feeds hotkey signals to the controller until ctx ends and waits for
// the last session to wind down.
func (a *app) serve(ctx context.Context, src hotkey.Source, hk hotkey.Config) {
	l := hotkey.NewListener(src, hotkey.NewDetector(hk))
	defer l.Close()
	a.controller.Run(ctx, l.Signals())
	a.controller.Wait()
	a.usage.logSummary()
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	cfg, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.Version {
		fmt.Printf("talkkey %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if cfg.Doctor {
		return runDoctor(cfg)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.Infof("talkkey %s starting: engine=%s provider=%s lang=%q target=%s", version, cfg.Engine, cfg.Provider, cfg.Language, cfg.Target)

	if cfg.Test != "" {
		return runTestMode(cfg)
	}

	if !cfg.Beep {
		beep.Disable()
	}
	go beep.Init()

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		return 1
	}
	defer actx.Close()

	if cfg.Setup && cfg.Device == "" {
		dev, err := audio.SelectDevice(actx)
		if errors.Is(err, audio.ErrSelectionAborted) {
			return 130
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\nFalling back to default device\n", err)
		} else if dev != nil {
			cfg.Device = dev.ID
			log.Info("device_selected: " + dev.Label())
		}
	}

	if cfg.AutoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Printf("Warning: paste init failed: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		}
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	eng := newEngines(cfg)
	eng.start(ctx)
	if err := eng.orch.Ready(); err != nil {
		fmt.Printf("Warning: %v (recording is refused until this is fixed)\n", err)
	}

	perms := audio.ProbePermissions{Ctx: actx}
	rec := audio.NewRecorder(actx, audio.NewDirectory(actx), perms)
	n := notify.Desktop{Disabled: !cfg.Notifications}
	a := newApp(ctx, cfg, rec, perms, eng.orch, newDelivery(ctx, clipboard.NewInserter(cfg.AutoPaste), n))

	src := hotkey.New(cfg.Hotkeys)
	if err := src.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hotkey: %v\n", err)
		return 1
	}
	defer src.Unregister()

	go watchDevices(ctx, actx, cfg.Device, n)

	fmt.Printf("talkkey %s ready: hold %s to dictate, %s to review, press %s to translate, esc cancels\n",
		version, cfg.Hotkeys.Primary.Flags, cfg.Hotkeys.Secondary.Flags, cfg.Hotkeys.Translate.Flags)
	a.serve(ctx, src, cfg.Hotkeys)
	log.Info("shutdown")
	return 0
}

// watchDevices polls the device list and reports when the selected device
// goes away or comes back. Capture itself falls back to the default input
// while the device is missing.
func watchDevices(ctx context.Context, actx audio.Context, preferred string, n session.Notifier) {
	if preferred == "" {
		return
	}
	present := true
	ticker := time.NewTicker(devicePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		devices, err := actx.Devices()
		if err != nil {
			continue
		}
		_, found := audio.FindDevice(devices, preferred)
		if found == present {
			continue
		}
		present = found
		if found {
			log.Info("device_reconnected: " + preferred)
			continue
		}
		log.Warnf("device_disconnected: %s (available: %v)", preferred, deviceNames(devices))
		n.Notify("Microphone disconnected", preferred+" is gone; using the default input.")
	}
}

func runDoctor(cfg *Config) int {
	doctor.HandleInterrupt()

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("Error initializing audio context: %v\n", err)
		return 1
	}
	defer actx.Close()

	eng := newEngines(cfg)
	eng.prober.Probe(context.Background())

	rec := audio.NewRecorder(actx, audio.NewDirectory(actx), audio.ProbePermissions{Ctx: actx})
	return doctor.Run(os.Stdout, doctor.Checks(doctor.Env{
		Audio:       actx,
		Recorder:    rec,
		Device:      cfg.Device,
		Transcriber: eng.orch,
		Local:       eng.local,
		RecordFor:   cfg.DoctorRecord,
		Paste:       cfg.AutoPaste,
	}))
}

func deviceNames(devices []audio.DeviceInfo) []string {
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		if !slices.Contains(names, d.Name) {
			names = append(names, d.Name)
		}
	}
	return names
}
