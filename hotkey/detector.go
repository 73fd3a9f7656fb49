package hotkey

import "fmt"

// Mode is the recording mode chosen when a hotkey arms. It is fixed for the
// lifetime of a session.
type Mode string

const (
	ModeDirect    Mode = "direct"
	ModeReview    Mode = "review"
	ModeTranslate Mode = "translate"
)

// Binding maps a modifier combination to a Mode. Edge bindings arm on the
// rising transition of their flags instead of on hold.
type Binding struct {
	Mode  Mode
	Flags Flag
	Edge  bool
}

// Config holds the three hotkey bindings and the cancel key.
type Config struct {
	Primary   Binding // DirectInsert
	Secondary Binding // Review
	Translate Binding
	CancelKey uint16
}

// DefaultConfig returns right-ctrl for direct insert, right-alt for review
// and fn (edge) for translate, with Escape as cancel.
func DefaultConfig() Config {
	return Config{
		Primary:   Binding{Mode: ModeDirect, Flags: FlagRightCtrl},
		Secondary: Binding{Mode: ModeReview, Flags: FlagRightAlt},
		Translate: Binding{Mode: ModeTranslate, Flags: FlagFn, Edge: true},
		CancelKey: KeyEscape,
	}
}

func (c Config) Validate() error {
	for _, b := range []Binding{c.Primary, c.Secondary, c.Translate} {
		if b.Flags == 0 {
			return fmt.Errorf("hotkey for %s mode has no modifiers", b.Mode)
		}
	}
	return nil
}

type State int

const (
	StateIdle State = iota
	StateRecording
)

type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalStart
	SignalStop
	SignalCancel
)

func (k SignalKind) String() string {
	switch k {
	case SignalStart:
		return "start"
	case SignalStop:
		return "stop"
	case SignalCancel:
		return "cancel"
	default:
		return "none"
	}
}

// Signal is what the detector emits for one event. Mode is set for
// SignalStart and SignalStop.
type Signal struct {
	Kind SignalKind
	Mode Mode
}

// Detector is the hotkey state machine. It performs no I/O and never
// blocks; Handle must be called from a single goroutine.
//
// Simultaneous matches are resolved as follows: a single match arms; two
// matches arm DirectInsert if it is one of them; anything else is ignored.
type Detector struct {
	bindings  [3]Binding
	tracked   Flag
	cancelKey uint16

	state State
	mode  Mode
	prev  Flag
	// set by a cancel issued while modifiers are still down; no arming
	// until everything is released
	latched bool
}

func NewDetector(cfg Config) *Detector {
	d := &Detector{
		bindings:  [3]Binding{cfg.Primary, cfg.Secondary, cfg.Translate},
		cancelKey: cfg.CancelKey,
	}
	for _, b := range d.bindings {
		d.tracked |= b.Flags
	}
	return d
}

func (d *Detector) State() State { return d.state }

// Mode returns the armed mode, or "" when idle.
func (d *Detector) Mode() Mode { return d.mode }

// Reset returns the detector to idle without emitting a signal.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.mode = ""
	d.latched = d.prev != 0
}

func (d *Detector) Handle(ev Event) Signal {
	flags := ev.Flags & d.tracked
	prev := d.prev
	d.prev = flags

	// Cancel is forwarded in idle too so an in-flight transcription can be
	// aborted after the keys were released.
	if ev.Key != 0 && ev.Key == d.cancelKey {
		d.state = StateIdle
		d.mode = ""
		d.latched = flags != 0
		return Signal{Kind: SignalCancel}
	}

	if d.state == StateRecording {
		if flags != 0 {
			return Signal{}
		}
		mode := d.mode
		d.state = StateIdle
		d.mode = ""
		return Signal{Kind: SignalStop, Mode: mode}
	}

	if d.latched {
		if flags == 0 {
			d.latched = false
		}
		return Signal{}
	}

	mode, ok := d.arm(flags, prev)
	if !ok {
		return Signal{}
	}
	d.state = StateRecording
	d.mode = mode
	return Signal{Kind: SignalStart, Mode: mode}
}

func (d *Detector) arm(flags, prev Flag) (Mode, bool) {
	if flags == 0 {
		return "", false
	}
	var hit [3]bool
	n := 0
	for i, b := range d.bindings {
		if b.Flags == 0 || flags != b.Flags {
			continue
		}
		if b.Edge && prev&b.Flags == b.Flags {
			continue
		}
		hit[i] = true
		n++
	}
	switch {
	case n == 1:
		for i := range hit {
			if hit[i] {
				return d.bindings[i].Mode, true
			}
		}
	case n == 2 && hit[0]:
		return d.bindings[0].Mode, true
	}
	return "", false
}
