package audio

import (
	"bytes"
	"strings"
	"testing"
)

var pickerDevices = []DeviceInfo{
	{ID: "a", Name: "Built-in"},
	{ID: "b", Name: "USB Mic", Default: true},
	{ID: "c", Name: "AirPods Pro"},
}

func TestPickerStartsOnDefault(t *testing.T) {
	if p := newPicker(pickerDevices); p.cursor != 1 {
		t.Fatalf("cursor = %d, want default device", p.cursor)
	}
	if p := newPicker(pickerDevices[:1]); p.cursor != 0 {
		t.Fatalf("cursor = %d without default", p.cursor)
	}
}

func TestPickerKeys(t *testing.T) {
	tests := []struct {
		name   string
		keys   [][]byte
		cursor int
		result pickResult
	}{
		{"down arrow", [][]byte{{0x1b, '[', 'B'}}, 2, pickContinue},
		{"down clamps", [][]byte{{'j'}, {'j'}, {'j'}}, 2, pickContinue},
		{"up clamps", [][]byte{{'k'}, {0x1b, '[', 'A'}, {'k'}}, 0, pickContinue},
		{"enter", [][]byte{{'k'}, {'\r'}}, 0, pickDone},
		{"ctrl+c", [][]byte{{3}}, 1, pickAbort},
		{"q", [][]byte{{'q'}}, 1, pickAbort},
		{"other bytes", [][]byte{{'x'}, {0x1b, 'O', 'P'}}, 1, pickContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPicker(pickerDevices)
			var res pickResult
			for _, k := range tt.keys {
				res = p.key(k)
			}
			if p.cursor != tt.cursor || res != tt.result {
				t.Fatalf("cursor = %d, result = %d; want %d, %d", p.cursor, res, tt.cursor, tt.result)
			}
		})
	}
}

func TestPickerRender(t *testing.T) {
	var buf bytes.Buffer
	newPicker(pickerDevices).render(&buf)
	out := buf.String()
	if !strings.Contains(out, "▶ USB Mic (default)") {
		t.Errorf("cursor not on default device:\n%q", out)
	}
	if !strings.Contains(out, "AirPods Pro (bluetooth)") || !strings.Contains(out, "lower audio quality") {
		t.Errorf("bluetooth device not flagged:\n%q", out)
	}
}

func TestDeviceLabel(t *testing.T) {
	tests := []struct {
		d    DeviceInfo
		want string
	}{
		{DeviceInfo{Name: "USB Mic"}, "USB Mic"},
		{DeviceInfo{Name: "USB Mic", Default: true}, "USB Mic (default)"},
		{DeviceInfo{Name: "Jabra Evolve", Default: true}, "Jabra Evolve (default, bluetooth)"},
	}
	for _, tt := range tests {
		if got := tt.d.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}
