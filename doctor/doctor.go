// Package doctor runs the -doctor diagnostics.
package doctor

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/manikosto/talkkey/audio"
	"github.com/manikosto/talkkey/clipboard"
	"github.com/manikosto/talkkey/hotkey"
	"github.com/manikosto/talkkey/shutdown"
	"github.com/manikosto/talkkey/transcriber"
	"golang.org/x/term"
)

// Check is one diagnostic step. Fix, if set, is printed after a failure.
type Check struct {
	Name string
	Run  func() (string, error)
	Fix  string
}

// Env is what the standard checks inspect.
type Env struct {
	Audio       audio.Context
	Recorder    *audio.Recorder
	Device      string
	Transcriber *transcriber.Orchestrator
	Local       transcriber.Local
	// RecordFor is the length of the live microphone check; 0 skips it.
	RecordFor time.Duration
	// Paste sends a real paste keystroke.
	Paste bool
}

// Checks returns the standard diagnostics for env.
func Checks(env Env) []Check {
	checks := []Check{
		{Name: "Hotkey access", Run: checkHotkey, Fix: hotkeyFix()},
		{Name: "Capture devices", Run: func() (string, error) { return checkDevices(env.Audio) }},
	}
	if env.RecordFor > 0 {
		checks = append(checks, Check{
			Name: "Microphone level",
			Run:  func() (string, error) { return checkLevel(env) },
			Fix:  "speak during the check or pick another device with -setup",
		})
	}
	checks = append(checks,
		Check{Name: "Transcription engine", Run: func() (string, error) { return checkEngine(env) }},
	)
	if env.Paste {
		checks = append(checks, Check{Name: "Paste keystroke", Run: clipboard.Verify, Fix: pasteFix()})
	}
	return checks
}

// Run executes checks in order and returns an exit code (0=all pass, 1=any fail).
func Run(w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "talkkey doctor - system diagnostics")
	fmt.Fprintln(w, "===================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		msg, err := c.Run()
		if err != nil {
			failed++
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			if c.Fix != "" {
				fmt.Fprintf(w, "  Fix: %s\n", c.Fix)
			}
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", msg)
	}

	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintf(w, "%d of %d checks failed. See details above.\n", failed, len(checks))
		return 1
	}
	fmt.Fprintln(w, "All checks passed!")
	return 0
}

// termState is the terminal mode before any check ran. Hotkey backends can
// leave the terminal in raw mode.
var termState *term.State

func resetTerminal() {
	if termState != nil {
		term.Restore(int(os.Stdin.Fd()), termState)
	}
}

// HandleInterrupt saves the terminal mode and exits on Ctrl+C, which would
// otherwise be swallowed by a check blocked on the microphone.
func HandleInterrupt() {
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		termState, _ = term.GetState(fd)
	}
	ch := make(chan os.Signal, 1)
	shutdown.Notify(ch)
	go func() {
		<-ch
		resetTerminal()
		fmt.Fprintln(os.Stderr, "\nInterrupted")
		os.Exit(1)
	}()
}

func checkHotkey() (string, error) {
	defer resetTerminal()
	return hotkey.Diagnose()
}

func hotkeyFix() string {
	if runtime.GOOS == "linux" {
		return "sudo usermod -aG input $USER, then log in again"
	}
	return "grant accessibility / input monitoring permission to the terminal"
}

func pasteFix() string {
	if runtime.GOOS == "linux" {
		return "sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput"
	}
	return "grant accessibility permission to the terminal"
}

func checkDevices(ctx audio.Context) (string, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return "", fmt.Errorf("cannot list devices: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no capture devices found")
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Label()
	}
	return fmt.Sprintf("%d device(s): %s", len(devices), strings.Join(names, ", ")), nil
}

// checkLevel records through the same path a hotkey session uses and
// applies the silence gate to it.
func checkLevel(env Env) (string, error) {
	c, err := env.Recorder.Start(env.Device, nil)
	if err != nil {
		return "", err
	}
	time.Sleep(env.RecordFor)
	art, err := c.Stop()
	if err != nil {
		return "", err
	}
	defer art.Remove()

	avg, peak, n := c.Monitor().Stats()
	stats := fmt.Sprintf("%s, %.1fs, avg %.1f dB, peak %.1f dB over %d samples",
		c.DeviceName, art.Duration.Seconds(), avg, peak, n)
	if !c.Verdict() {
		return "", fmt.Errorf("no speech energy (%s)", stats)
	}
	return "speech detected (" + stats + ")", nil
}

func checkEngine(env Env) (string, error) {
	o := env.Transcriber
	a := o.Availability()

	var parts []string
	if env.Local != nil {
		state := "not loaded"
		if a.LocalLoaded {
			state = "loaded"
		}
		parts = append(parts, fmt.Sprintf("local %s %s", env.Local.Name(), state))
	}
	if a.Reachable {
		parts = append(parts, "network reachable")
	} else {
		parts = append(parts, "network unreachable")
	}
	if a.Credential {
		parts = append(parts, "API key present")
	} else {
		parts = append(parts, "no API key")
	}
	summary := fmt.Sprintf("%s mode: %s", o.Preference(), strings.Join(parts, ", "))

	if err := o.Ready(); err != nil {
		return "", fmt.Errorf("%w (%s)", err, summary)
	}
	return summary, nil
}
