package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/manikosto/talkkey/audio"
	"github.com/manikosto/talkkey/beep"
	"github.com/manikosto/talkkey/clipboard"
	"github.com/manikosto/talkkey/hotkey"
	"github.com/manikosto/talkkey/log"
	"github.com/manikosto/talkkey/notify"
	"github.com/manikosto/talkkey/session"
	"github.com/manikosto/talkkey/transcriber"
)

const testWaitTimeout = 30 * time.Second

// testTranscriber returns canned engines when TALKKEY_FAKE_TRANSCRIPT is set
// and the configured ones otherwise.
func testTranscriber(ctx context.Context, cfg *Config) session.Transcriber {
	if text, ok := os.LookupEnv("TALKKEY_FAKE_TRANSCRIPT"); ok {
		return transcriber.NewOrchestrator(transcriber.Config{
			Preference:    cfg.Engine,
			Local:         transcriber.NewFakeLocal(text, nil),
			Remote:        transcriber.NewFake(text, nil),
			Translator:    transcriber.NewFakeTranslator(nil),
			Network:       transcriber.NewFakeNetwork(true),
			Credentials:   transcriber.StaticCredential("fake"),
			RemoteTimeout: cfg.Timeout,
		})
	}
	eng := newEngines(cfg)
	eng.start(ctx)
	return eng.orch
}

// runTestMode replays cfg.Test as the microphone and drives the hotkeys from
// stdin, one command per line:
//
//	PRIMARY | SECONDARY | TRANSLATE   press the binding's modifiers
//	RELEASE                           release all modifiers
//	CANCEL                            press the cancel key
//	WAIT                              block until a session ends
//	WAIT_AUDIO_DONE                   block until the clip has been replayed
//	SLEEP <ms>
//	QUIT
func runTestMode(cfg *Config) int {
	beep.Disable()

	if cfg.AutoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: paste init failed: %v\n", err)
		}
	}

	fake, err := audio.NewFakeContext(cfg.Test, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newDelivery(ctx, clipboard.NewInserter(cfg.AutoPaste), notify.Desktop{Disabled: true})
	// stdin drives the test, so review accepts the transcript unedited
	d.edit = func(_ context.Context, _, text string) (string, error) { return text, nil }

	a := newApp(ctx, cfg, audio.NewRecorder(fake, nil, nil), nil, testTranscriber(ctx, cfg), d)
	ended := make(chan session.Outcome, 64)
	a.feedback.onEnd = func(o session.Outcome) {
		select {
		case ended <- o:
		default:
		}
	}

	src := hotkey.NewFake()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.serve(ctx, src, cfg.Hotkeys)
	}()

	drive(os.Stdin, os.Stdout, cfg.Hotkeys, src, fake, ended)
	cancel()
	<-done
	return 0
}

func drive(in io.Reader, out io.Writer, hk hotkey.Config, src *hotkey.FakeSource, fake *audio.FakeContext, ended <-chan session.Outcome) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "":
		case "PRIMARY":
			src.SimFlags(hk.Primary.Flags)
		case "SECONDARY":
			src.SimFlags(hk.Secondary.Flags)
		case "TRANSLATE":
			src.SimFlags(hk.Translate.Flags)
		case "RELEASE":
			src.SimRelease()
		case "CANCEL":
			src.SimKey(hk.CancelKey)
		case "WAIT":
			select {
			case o := <-ended:
				fmt.Fprintf(out, "session: %s\n", o)
			case <-time.After(testWaitTimeout):
				fmt.Fprintln(out, "session: timeout")
			}
		case "WAIT_AUDIO_DONE":
			waitAudioDone(fake)
		case "QUIT":
			return
		default:
			if ms, ok := strings.CutPrefix(cmd, "SLEEP "); ok {
				if n, err := strconv.Atoi(ms); err == nil {
					time.Sleep(time.Duration(n) * time.Millisecond)
					continue
				}
			}
			log.Warnf("test mode: unknown command %q", cmd)
		}
	}
}

func waitAudioDone(fake *audio.FakeContext) {
	deadline := time.Now().Add(testWaitTimeout)
	for time.Now().Before(deadline) {
		if c := fake.LastCapture(); c != nil {
			select {
			case <-c.AudioDone():
			case <-time.After(time.Until(deadline)):
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
