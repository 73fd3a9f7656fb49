package notify

import (
	"errors"
	"testing"
)

func stub(t *testing.T, err error) *[]string {
	t.Helper()
	var got []string
	orig := show
	show = func(title, body string) error {
		got = append(got, title+": "+body)
		return err
	}
	t.Cleanup(func() { show = orig })
	return &got
}

func TestNotify(t *testing.T) {
	got := stub(t, nil)
	if err := (Desktop{}).Notify("Transcription failed", "Offline"); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 1 || (*got)[0] != "Transcription failed: Offline" {
		t.Fatalf("shown = %v", *got)
	}
}

func TestNotifyDisabled(t *testing.T) {
	got := stub(t, nil)
	if err := (Desktop{Disabled: true}).Notify("a", "b"); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 0 {
		t.Fatalf("disabled notifier showed %v", *got)
	}
}

func TestNotifyError(t *testing.T) {
	want := errors.New("no dbus")
	stub(t, want)
	if err := (Desktop{}).Notify("a", "b"); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}
