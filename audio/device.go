package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionAborted = errors.New("device selection aborted")

// picker is the state of the interactive device list.
type picker struct {
	devices []DeviceInfo
	cursor  int
}

func newPicker(devices []DeviceInfo) *picker {
	p := &picker{devices: devices}
	for i, d := range devices {
		if d.Default {
			p.cursor = i
			break
		}
	}
	return p
}

type pickResult int

const (
	pickContinue pickResult = iota
	pickDone
	pickAbort
)

// key applies one read from the raw terminal.
func (p *picker) key(buf []byte) pickResult {
	up := func() {
		if p.cursor > 0 {
			p.cursor--
		}
	}
	down := func() {
		if p.cursor < len(p.devices)-1 {
			p.cursor++
		}
	}
	switch {
	case len(buf) == 1:
		switch buf[0] {
		case '\r', '\n':
			return pickDone
		case 3, 'q': // ctrl+c
			return pickAbort
		case 'j':
			down()
		case 'k':
			up()
		}
	case len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[':
		switch buf[2] {
		case 'A':
			up()
		case 'B':
			down()
		}
	}
	return pickContinue
}

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select input device (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range p.devices {
		label := d.Label()
		if IsBluetooth(d.Name) {
			label += " \x1b[33m[lower audio quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s\x1b[0m\r\n", label)
		} else {
			fmt.Fprintf(w, "    %s\r\n", label)
		}
	}
}

func (p *picker) lines() int { return len(p.devices) + 2 }

// SelectDevice presents an interactive device picker on the terminal and
// returns the chosen device. A single device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := newPicker(devices)
	p.render(os.Stdout)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.key(buf[:n]) {
		case pickDone:
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case pickAbort:
			fmt.Print("\r\n")
			return nil, ErrSelectionAborted
		}
		fmt.Printf("\x1b[%dA", p.lines())
		p.render(os.Stdout)
	}
}
