package launcher

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/icpac-igad/arco-ibf/internal/supervisor"
)

// Coordinator tears the topology down in reverse start order, so a proxy
// that depends on a backend is stopped before the backend. Idempotent: the
// first trigger performs the shutdown, later triggers block until it has
// finished and change nothing.
type Coordinator struct {
	log *slog.Logger
	sup *supervisor.Supervisor

	mu         sync.Mutex
	inProgress bool
	done       chan struct{}
	killFailed bool
}

func NewCoordinator(log *slog.Logger, sup *supervisor.Supervisor) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{log: log, sup: sup}
}

// Shutdown terminates every managed process. cause is nil for a
// user-requested stop, non-nil when failure-triggered; it is only logged —
// the caller owns error propagation.
func (c *Coordinator) Shutdown(cause error) {
	c.mu.Lock()
	if c.inProgress {
		ch := c.done
		c.mu.Unlock()
		<-ch
		return
	}
	c.inProgress = true
	c.done = make(chan struct{})
	c.mu.Unlock()
	defer close(c.done)

	if cause != nil {
		c.log.Error("shutting down services", slog.String("cause", cause.Error()))
	} else {
		c.log.Info("shutting down services")
	}

	procs := c.sup.Processes()
	for i := len(procs) - 1; i >= 0; i-- {
		mp := procs[i]
		def := mp.Definition()
		err := c.sup.Terminate(mp, def.EffectiveGracePeriod())
		var tte *supervisor.TerminationTimeoutError
		if errors.As(err, &tte) {
			c.log.Warn("termination escalated", slog.String("service", tte.Service), slog.String("detail", tte.Error()))
			if tte.KillFailed {
				c.mu.Lock()
				c.killFailed = true
				c.mu.Unlock()
			}
		} else if err != nil {
			c.log.Warn("terminate failed", slog.String("service", mp.Name()), slog.String("error", err.Error()))
		}
	}

	for _, st := range c.sup.Snapshot() {
		c.log.Info("final state",
			slog.String("service", st.Name),
			slog.String("state", st.State),
			slog.Int("exit_code", st.ExitCode))
	}
}

// KillFailed reports whether any forced kill failed to take. An unkillable
// leaked process is fatal to the launcher so the operator learns about it.
func (c *Coordinator) KillFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killFailed
}
