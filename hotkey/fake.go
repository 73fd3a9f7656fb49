package hotkey

// FakeSource is a Source driven by the caller, used in tests and -test mode.
type FakeSource struct {
	events chan Event
	flags  Flag
}

func NewFake() *FakeSource {
	return &FakeSource{events: make(chan Event, 16)}
}

func (f *FakeSource) Register() error      { return nil }
func (f *FakeSource) Unregister()          {}
func (f *FakeSource) Events() <-chan Event { return f.events }

// SimFlags reports a modifier change to flags.
func (f *FakeSource) SimFlags(flags Flag) {
	f.flags = flags
	f.events <- Event{Flags: flags}
}

// SimKey reports a key press while the current modifiers are held.
func (f *FakeSource) SimKey(code uint16) {
	f.events <- Event{Flags: f.flags, Key: code}
}

func (f *FakeSource) SimRelease() { f.SimFlags(0) }
