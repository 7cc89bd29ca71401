// Package probe implements TCP readiness probing. A service is ready when
// its declared endpoint accepts a connection; the connection is closed
// immediately because this is a reachability check, not a session.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/icpac-igad/arco-ibf/internal/service"
)

const (
	DefaultInterval    = 750 * time.Millisecond
	DefaultDialTimeout = time.Second
)

// TimeoutError reports that a readiness target never became connectable
// within its timeout. Connection refusals, resets, and resolution failures
// along the way are all folded into this single outcome.
type TimeoutError struct {
	Target  string
	Timeout time.Duration
	Last    error // last dial error observed, may be nil
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("readiness target %s not reachable within %s (last error: %v)", e.Target, e.Timeout, e.Last)
	}
	return fmt.Sprintf("readiness target %s not reachable within %s", e.Target, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// Prober polls a TCP address on a fixed interval until it connects.
type Prober struct {
	Interval    time.Duration
	DialTimeout time.Duration
}

func New() Prober {
	return Prober{Interval: DefaultInterval, DialTimeout: DefaultDialTimeout}
}

// WaitReady blocks until target accepts a TCP connection, the timeout
// elapses, or ctx is canceled. Cancellation interrupts both the dial and
// the retry sleep, so an external stop request is honored sub-second.
func (p Prober) WaitReady(ctx context.Context, target service.ReadinessTarget, timeout time.Duration) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	dialTO := p.DialTimeout
	if dialTO <= 0 {
		dialTO = DefaultDialTimeout
	}
	addr := target.Addr()
	deadline := time.Now().Add(timeout)
	dialer := net.Dialer{Timeout: dialTO}

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		rem := time.Until(deadline)
		if rem <= 0 {
			return &TimeoutError{Target: addr, Timeout: timeout, Last: lastErr}
		}
		wait := interval
		if rem < wait {
			wait = rem
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
