// Package clipboard inserts text into the focused application by swapping
// it through the system clipboard and sending a paste keystroke.
package clipboard

import (
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
)

// RestoreDelay is how long the inserted text stays on the clipboard before
// the previous contents are put back. The target app reads the clipboard
// asynchronously after the keystroke.
const RestoreDelay = 600 * time.Millisecond

var (
	readAll  = cb.ReadAll
	writeAll = cb.WriteAll
	paste    = Paste
)

func Read() (string, error) {
	return readAll()
}

func Copy(text string) error {
	return writeAll(text)
}

// Inserter delivers text to the focused window. With AutoPaste off the text
// is only copied.
type Inserter struct {
	AutoPaste bool
	Restore   time.Duration

	mu      sync.Mutex
	pending *time.Timer
	saved   string
	hasSave bool
}

func NewInserter(autoPaste bool) *Inserter {
	return &Inserter{AutoPaste: autoPaste, Restore: RestoreDelay}
}

// Insert copies text and pastes it. The previous clipboard contents come
// back after Restore even when the paste fails; a second Insert before
// then keeps the original contents as the ones to restore.
func (in *Inserter) Insert(text string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.AutoPaste && !in.hasSave {
		if prev, err := readAll(); err == nil && prev != "" {
			in.saved, in.hasSave = prev, true
		}
	}
	if err := writeAll(text); err != nil {
		return err
	}
	if !in.AutoPaste {
		return nil
	}
	err := paste()
	in.scheduleRestore()
	return err
}

func (in *Inserter) scheduleRestore() {
	if !in.hasSave || in.Restore <= 0 {
		return
	}
	if in.pending != nil {
		in.pending.Stop()
	}
	in.pending = time.AfterFunc(in.Restore, func() {
		in.mu.Lock()
		defer in.mu.Unlock()
		if in.hasSave {
			writeAll(in.saved)
			in.saved, in.hasSave = "", false
		}
		in.pending = nil
	})
}
