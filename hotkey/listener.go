package hotkey

import "sync"

// Listener pumps a Source through a Detector and publishes the resulting
// signals. The event loop only runs the detector; signal consumers do the
// slow work on their own goroutine.
type Listener struct {
	signals chan Signal
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewListener(src Source, d *Detector) *Listener {
	l := &Listener{
		signals: make(chan Signal, 8),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.run(src, d)
	return l
}

// Signals returns start/stop/cancel signals in the order they were detected.
func (l *Listener) Signals() <-chan Signal { return l.signals }

func (l *Listener) Close() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Listener) run(src Source, d *Detector) {
	defer close(l.done)
	defer close(l.signals)
	for {
		select {
		case <-l.stop:
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			sig := d.Handle(ev)
			if sig.Kind == SignalNone {
				continue
			}
			select {
			case l.signals <- sig:
			case <-l.stop:
				return
			}
		}
	}
}
