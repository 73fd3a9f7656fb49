package clipboard

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBoard struct {
	mu     sync.Mutex
	text   string
	pastes []string
}

func (b *fakeBoard) install(t *testing.T, pasteErr error) {
	t.Helper()
	origRead, origWrite, origPaste := readAll, writeAll, paste
	t.Cleanup(func() { readAll, writeAll, paste = origRead, origWrite, origPaste })
	readAll = func() (string, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.text, nil
	}
	writeAll = func(s string) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.text = s
		return nil
	}
	paste = func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if pasteErr != nil {
			return pasteErr
		}
		b.pastes = append(b.pastes, b.text)
		return nil
	}
}

func (b *fakeBoard) get() (string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, append([]string(nil), b.pastes...)
}

func waitText(t *testing.T, b *fakeBoard, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got, _ := b.get(); got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := b.get()
	t.Fatalf("clipboard = %q, want %q", got, want)
}

func TestInsertPastesAndRestores(t *testing.T) {
	b := &fakeBoard{text: "previous"}
	b.install(t, nil)

	in := NewInserter(true)
	in.Restore = 20 * time.Millisecond
	if err := in.Insert("hello"); err != nil {
		t.Fatal(err)
	}
	if _, pastes := b.get(); len(pastes) != 1 || pastes[0] != "hello" {
		t.Fatalf("pastes = %v", pastes)
	}
	waitText(t, b, "previous")
}

func TestBackToBackInsertsRestoreOriginal(t *testing.T) {
	b := &fakeBoard{text: "original"}
	b.install(t, nil)

	in := NewInserter(true)
	in.Restore = 30 * time.Millisecond
	in.Insert("one")
	in.Insert("two")
	waitText(t, b, "original")
	if _, pastes := b.get(); len(pastes) != 2 || pastes[1] != "two" {
		t.Fatalf("pastes = %v", pastes)
	}
}

func TestInsertWithoutAutoPasteOnlyCopies(t *testing.T) {
	b := &fakeBoard{text: "previous"}
	b.install(t, nil)

	if err := NewInserter(false).Insert("hello"); err != nil {
		t.Fatal(err)
	}
	text, pastes := b.get()
	if text != "hello" || len(pastes) != 0 {
		t.Fatalf("text %q, pastes %v", text, pastes)
	}
}

func TestInsertPasteErrorRestores(t *testing.T) {
	b := &fakeBoard{text: "mine"}
	b.install(t, errors.New("no uinput"))
	in := NewInserter(true)
	in.Restore = 10 * time.Millisecond
	if err := in.Insert("x"); err == nil {
		t.Fatal("expected paste error")
	}
	waitText(t, b, "mine")
}
