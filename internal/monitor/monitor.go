// Package monitor implements the steady-state liveness loop: once the
// topology is up, every managed process is polled on a fixed interval and
// a death that nobody asked for tears the whole launch down.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/icpac-igad/arco-ibf/internal/metrics"
	"github.com/icpac-igad/arco-ibf/internal/service"
	"github.com/icpac-igad/arco-ibf/internal/supervisor"
)

const DefaultInterval = 3 * time.Second

// UnexpectedExitError reports a Running (or Ready) service that exited
// without a terminate request.
type UnexpectedExitError struct {
	Service  string
	ExitCode int
}

func (e *UnexpectedExitError) Error() string {
	return fmt.Sprintf("service %q exited unexpectedly with code %d", e.Service, e.ExitCode)
}

// Monitor polls the supervisor's process set.
type Monitor struct {
	log      *slog.Logger
	sup      *supervisor.Supervisor
	interval time.Duration
}

func New(log *slog.Logger, sup *supervisor.Supervisor, interval time.Duration) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{log: log, sup: sup, interval: interval}
}

// Run loops until ctx is canceled (returns nil) or an unexpected exit is
// found (returns *UnexpectedExitError). A process seen alive in Ready is
// promoted to Running on that tick; the same tick that first observes a
// death reports it, so detection latency is bounded by one interval.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// one pass up front so Ready services are promoted without waiting a
	// full interval
	if err := m.tick(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.tick(); err != nil {
				return err
			}
		}
	}
}

func (m *Monitor) tick() error {
	for _, mp := range m.sup.Processes() {
		st := mp.State()
		if st != service.StateReady && st != service.StateRunning {
			continue
		}
		if m.sup.IsAlive(mp) {
			if st == service.StateReady {
				m.sup.Transition(mp, service.StateRunning)
			}
			continue
		}
		if mp.StopRequested() {
			continue
		}
		m.sup.Transition(mp, service.StateFailed)
		metrics.IncUnexpectedExit(mp.Name())
		code := mp.ExitCode()
		m.log.Error("service died unexpectedly",
			slog.String("service", mp.Name()),
			slog.Int("exit_code", code))
		return &UnexpectedExitError{Service: mp.Name(), ExitCode: code}
	}
	return nil
}
