// Package launcher wires the startup sequencer, the liveness monitor, and
// the shutdown coordinator into one supervised run. External events —
// termination signals, a failed spawn, a dead child — all converge on the
// same single control flow; nothing manipulates processes from signal
// context.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/icpac-igad/arco-ibf/internal/env"
	"github.com/icpac-igad/arco-ibf/internal/logger"
	"github.com/icpac-igad/arco-ibf/internal/monitor"
	"github.com/icpac-igad/arco-ibf/internal/probe"
	"github.com/icpac-igad/arco-ibf/internal/sequencer"
	"github.com/icpac-igad/arco-ibf/internal/service"
	"github.com/icpac-igad/arco-ibf/internal/supervisor"
)

// PreflightError means a service's preflight command failed, so the
// topology was never started. Equivalent to a configuration error.
type PreflightError struct {
	Service string
	Err     error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight for service %q failed: %v", e.Service, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// Options tune a launch. Zero values fall back to defaults.
type Options struct {
	Logger          *slog.Logger
	LogConfig       logger.Config
	GlobalEnv       []string
	MonitorInterval time.Duration
}

// Launcher owns one supervised run of a service topology.
type Launcher struct {
	log   *slog.Logger
	defs  []service.Definition
	sup   *supervisor.Supervisor
	seq   *sequencer.Sequencer
	mon   *monitor.Monitor
	coord *Coordinator

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(defs []service.Definition, opts Options) *Launcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	envs := env.New()
	envs.SetGlobal(opts.GlobalEnv)

	sup := supervisor.New(log, envs, opts.LogConfig)
	return &Launcher{
		log:    log,
		defs:   defs,
		sup:    sup,
		seq:    sequencer.New(log, sup, probe.New()),
		mon:    monitor.New(log, sup, opts.MonitorInterval),
		coord:  NewCoordinator(log, sup),
		stopCh: make(chan struct{}),
	}
}

// Supervisor exposes the process set for read-only consumers (the status
// server). Callers must not signal processes through it.
func (l *Launcher) Supervisor() *supervisor.Supervisor { return l.sup }

// SequencerState reports the startup state machine.
func (l *Launcher) SequencerState() sequencer.State { return l.seq.State() }

// Snapshot returns the current state table in start order.
func (l *Launcher) Snapshot() []service.Status { return l.sup.Snapshot() }

// StartupState reports the sequencer state as a string, for the status
// server.
func (l *Launcher) StartupState() string { return l.seq.State().String() }

// RequestShutdown posts a stop request onto the control loop. Safe to call
// from a signal handler goroutine, and safe to call more than once.
func (l *Launcher) RequestShutdown() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run starts the topology, monitors it, and tears it down. It returns nil
// for a clean user-requested stop and the fatal cause otherwise; map the
// result with ExitCodeFor.
func (l *Launcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := l.runPreflights(ctx); err != nil {
		return err
	}

	if err := l.seq.Run(ctx, l.defs); err != nil {
		if errors.Is(err, context.Canceled) {
			// stop requested mid-startup: clean teardown, clean exit
			l.coord.Shutdown(nil)
			return l.killFailure(nil)
		}
		l.coord.Shutdown(err)
		return l.killFailure(err)
	}
	l.banner()

	failureCh := make(chan error, 1)
	go func() { failureCh <- l.mon.Run(ctx) }()

	var cause error
	select {
	case <-ctx.Done():
	case cause = <-failureCh:
	}
	cancel()
	l.coord.Shutdown(cause)
	return l.killFailure(cause)
}

// runPreflights executes each declared preflight command to completion, in
// declaration order, before anything is spawned.
func (l *Launcher) runPreflights(ctx context.Context) error {
	for _, def := range l.defs {
		cmd := def.BuildPreflight(ctx)
		if cmd == nil {
			continue
		}
		l.log.Info("running preflight", slog.String("service", def.Name), slog.String("command", def.Preflight))
		if out, err := cmd.CombinedOutput(); err != nil {
			l.log.Error("preflight failed",
				slog.String("service", def.Name),
				slog.String("output", string(out)))
			return &PreflightError{Service: def.Name, Err: err}
		}
	}
	return nil
}

// killFailure promotes an unkillable-child condition to a launcher failure
// when no stronger cause exists.
func (l *Launcher) killFailure(cause error) error {
	if cause == nil && l.coord.KillFailed() {
		return errors.New("shutdown left unkillable processes behind")
	}
	return cause
}

func (l *Launcher) banner() {
	l.log.Info("all services started")
	for _, st := range l.sup.Snapshot() {
		attrs := []any{slog.String("service", st.Name), slog.Int("pid", st.PID)}
		if st.Readiness != "" {
			attrs = append(attrs, slog.String("endpoint", st.Readiness))
		}
		l.log.Info("service up", attrs...)
	}
}
