// Package sequencer drives ordered startup: spawn each service after its
// dependencies are Ready, then gate on its readiness probe before moving
// on. Any failure aborts the whole sequence; partial startups are never
// left running silently.
package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/icpac-igad/arco-ibf/internal/metrics"
	"github.com/icpac-igad/arco-ibf/internal/probe"
	"github.com/icpac-igad/arco-ibf/internal/service"
	"github.com/icpac-igad/arco-ibf/internal/supervisor"
)

// State of the sequencing run as a whole.
type State int32

const (
	StateNotStarted State = iota
	StateSequencing
	StateAllReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateSequencing:
		return "sequencing"
	case StateAllReady:
		return "all_ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Sequencer struct {
	log    *slog.Logger
	sup    *supervisor.Supervisor
	prober probe.Prober
	state  atomic.Int32
}

func New(log *slog.Logger, sup *supervisor.Supervisor, prober probe.Prober) *Sequencer {
	if log == nil {
		log = slog.Default()
	}
	return &Sequencer{log: log, sup: sup, prober: prober}
}

func (q *Sequencer) State() State { return State(q.state.Load()) }

func (q *Sequencer) setState(s State) { q.state.Store(int32(s)) }

// Run starts every definition in dependency order. On any error the caller
// owns cleanup of whatever was already spawned; Run reports the offending
// service in the returned error. Context cancellation aborts promptly,
// including mid-probe, and surfaces as context.Canceled.
func (q *Sequencer) Run(ctx context.Context, defs []service.Definition) error {
	ordered, err := Order(defs)
	if err != nil {
		q.setState(StateFailed)
		return err
	}
	q.setState(StateSequencing)

	for _, def := range ordered {
		if err := ctx.Err(); err != nil {
			q.setState(StateFailed)
			return err
		}
		if err := q.checkDependencies(def); err != nil {
			q.setState(StateFailed)
			return err
		}

		mp, err := q.sup.Spawn(def)
		if err != nil {
			q.setState(StateFailed)
			return err
		}

		if err := q.awaitReady(ctx, mp); err != nil {
			q.setState(StateFailed)
			return err
		}
		q.sup.Transition(mp, service.StateReady)
		metrics.IncReady(def.Name)
		q.log.Info("service ready", slog.String("service", def.Name))
	}

	q.setState(StateAllReady)
	return nil
}

// checkDependencies verifies every dependency has reached Ready (or has
// already been promoted to Running). The topological order guarantees this
// unless a dependency died between its probe and now.
func (q *Sequencer) checkDependencies(def service.Definition) error {
	for _, dep := range def.DependsOn {
		mp := q.sup.Get(dep)
		if mp == nil {
			return &UnknownDependencyError{Service: def.Name, Dependency: dep}
		}
		if st := mp.State(); st != service.StateReady && st != service.StateRunning {
			return fmt.Errorf("service %q: dependency %q is %s, expected ready", def.Name, dep, st)
		}
	}
	return nil
}

// awaitReady blocks until the service's readiness condition holds: TCP
// reachability for services with a target, a confirmed-alive process for
// the rest.
func (q *Sequencer) awaitReady(ctx context.Context, mp *service.ManagedProcess) error {
	def := mp.Definition()
	if def.Readiness == nil {
		if !q.sup.IsAlive(mp) {
			q.sup.Transition(mp, service.StateFailed)
			return &supervisor.SpawnError{
				Service: def.Name,
				Err:     fmt.Errorf("process exited immediately with code %d", mp.ExitCode()),
			}
		}
		return nil
	}

	timeout := def.EffectiveReadinessTimeout()
	q.log.Info("waiting for readiness",
		slog.String("service", def.Name),
		slog.String("target", def.Readiness.Addr()),
		slog.Duration("timeout", timeout))
	started := time.Now()
	err := q.prober.WaitReady(ctx, *def.Readiness, timeout)
	metrics.ObserveReadinessWait(def.Name, time.Since(started).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the process is still alive; leave it in Starting so the
		// coordinator can terminate it during cleanup
		return fmt.Errorf("service %q: %w", def.Name, err)
	}
	return nil
}
