package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/manikosto/talkkey/audio"
	"github.com/manikosto/talkkey/beep"
	"github.com/manikosto/talkkey/clipboard"
	"github.com/manikosto/talkkey/hotkey"
	"github.com/manikosto/talkkey/log"
	"github.com/manikosto/talkkey/review"
	"github.com/manikosto/talkkey/session"
)

type inserter interface {
	Insert(text string) error
}

// delivery inserts direct and translated results at the cursor. Review
// results open the editor first and land on the clipboard, since the
// editor has taken focus from the target window.
type delivery struct {
	ctx      context.Context
	inserter inserter
	notifier session.Notifier

	edit func(ctx context.Context, title, text string) (string, error)
	copy func(text string) error
}

func newDelivery(ctx context.Context, in *clipboard.Inserter, n session.Notifier) *delivery {
	return &delivery{
		ctx:      ctx,
		inserter: in,
		notifier: n,
		edit: func(ctx context.Context, title, text string) (string, error) {
			return review.Edit(ctx, title, text)
		},
		copy: clipboard.Copy,
	}
}

func (d *delivery) Deliver(text string, mode hotkey.Mode) error {
	if mode != hotkey.ModeReview {
		return d.inserter.Insert(text)
	}

	edited, err := d.edit(d.ctx, "Review transcript", text)
	if errors.Is(err, review.ErrDiscarded) {
		log.Info("review_discarded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}
	if edited == "" {
		log.Info("review_empty")
		return nil
	}
	if err := d.copy(edited); err != nil {
		return fmt.Errorf("copying reviewed text: %w", err)
	}
	log.Info("review_copied")
	if d.notifier != nil {
		if err := d.notifier.Notify("Copied to clipboard", edited); err != nil {
			log.Warnf("notify: %v", err)
		}
	}
	return nil
}

// history appends every delivered transcript to transcribe_log.txt.
type history struct{}

func (history) RecordHistory(text string) error {
	log.TranscriptionText(text)
	return nil
}

// usageCounter keeps running totals for the process lifetime.
type usageCounter struct {
	mu       sync.Mutex
	sessions int
	chars    int
	audio    time.Duration
}

func (u *usageCounter) RecordUsage(chars int, audio time.Duration) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sessions++
	u.chars += chars
	u.audio += audio
	return nil
}

func (u *usageCounter) Totals() (sessions, chars int, audio time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sessions, u.chars, u.audio
}

func (u *usageCounter) logSummary() {
	n, chars, dur := u.Totals()
	if n == 0 {
		return
	}
	log.Infof("usage_total: sessions=%d chars=%d audio=%.1fs", n, chars, dur.Seconds())
}

// feedback plays the session cues and runs the no-voice warning over the
// level ticks of the active recording.
type feedback struct {
	interval time.Duration
	play     func(beep.Tone)

	mu      sync.Mutex
	silence *silenceMonitor
	events  func(SilenceEvent)

	// onEnd, if set, is called after every finished session.
	onEnd func(session.Outcome)
}

func newFeedback(interval time.Duration) *feedback {
	return &feedback{
		interval: interval,
		play:     func(t beep.Tone) { go beep.Play(t) },
	}
}

func (f *feedback) SessionStarted(id string, mode hotkey.Mode) {
	tone := beep.ToneStart
	if mode == hotkey.ModeTranslate {
		tone = beep.ToneTranslate
	}
	f.play(tone)

	f.mu.Lock()
	f.silence = newSilenceMonitor(f.interval)
	f.mu.Unlock()
}

func (f *feedback) Level(s audio.LevelSample) {
	f.mu.Lock()
	var ev SilenceEvent
	if f.silence != nil {
		ev = f.silence.Sample(s)
	}
	hook := f.events
	f.mu.Unlock()

	switch ev {
	case SilenceNone:
		return
	case SilenceWarn:
		log.Info("no_voice_warning")
		f.play(beep.ToneError)
	case SilenceRepeat:
		log.Info("silence_during_warning")
		f.play(beep.ToneError)
	case SilenceWarnClear:
		log.Info("voice_resumed")
	}
	if hook != nil {
		hook(ev)
	}
}

func (f *feedback) SessionStopped(id string) {
	f.play(beep.ToneEnd)
	f.reset()
}

func (f *feedback) SessionEnded(id string, mode hotkey.Mode, outcome session.Outcome) {
	f.reset()
	log.Infof("session_end: id=%s mode=%s outcome=%s", id, mode, outcome)
	if outcome == session.OutcomeFailed {
		f.play(beep.ToneError)
	}
	if f.onEnd != nil {
		f.onEnd(outcome)
	}
}

func (f *feedback) reset() {
	f.mu.Lock()
	f.silence = nil
	f.mu.Unlock()
}
