package transcriber

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/manikosto/talkkey/log"
)

// Prober tracks whether the API host accepts TCP connections. Run keeps it
// current in the background; IsReachable never blocks.
type Prober struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dialer   net.Dialer

	up atomic.Bool
}

// NewProber probes addr ("host:port"). It reports reachable until the first
// probe says otherwise, so a slow first probe cannot force a fallback.
func NewProber(addr string, interval time.Duration) *Prober {
	p := &Prober{addr: addr, interval: interval, timeout: 3 * time.Second}
	p.up.Store(true)
	return p
}

func (p *Prober) IsReachable() bool { return p.up.Load() }

// Probe dials once and records the outcome.
func (p *Prober) Probe(parent context.Context) bool {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	ok := err == nil
	if ok {
		conn.Close()
	} else if parent.Err() != nil {
		return p.up.Load()
	}
	if was := p.up.Swap(ok); was != ok {
		if ok {
			log.Infof("network reachable (%s)", p.addr)
		} else {
			log.Warnf("network unreachable (%s): %v", p.addr, err)
		}
	}
	return ok
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
