// Package supervisor owns process handles. It is the only component that
// spawns, signals, or waits on child processes; everyone else works with
// ManagedProcess snapshots.
package supervisor

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/icpac-igad/arco-ibf/internal/env"
	"github.com/icpac-igad/arco-ibf/internal/logger"
	"github.com/icpac-igad/arco-ibf/internal/metrics"
	"github.com/icpac-igad/arco-ibf/internal/service"
)

// killConfirmWait bounds how long Terminate blocks for the reaper after a
// forced kill before declaring the process unkillable.
const killConfirmWait = 2 * time.Second

// Supervisor holds the set of managed processes, indexed by service name
// and remembered in start order for the reverse-order shutdown walk.
type Supervisor struct {
	mu     sync.Mutex
	log    *slog.Logger
	envs   *env.Table
	logCfg logger.Config
	procs  map[string]*service.ManagedProcess
	order  []string
}

func New(log *slog.Logger, envs *env.Table, logCfg logger.Config) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if envs == nil {
		envs = env.New()
	}
	return &Supervisor{
		log:    log,
		envs:   envs,
		logCfg: logCfg,
		procs:  make(map[string]*service.ManagedProcess),
	}
}

// Spawn launches the child for def and registers the ManagedProcess. The
// record is registered even when the spawn fails, in state Failed, so the
// final state table covers every attempted service.
func (s *Supervisor) Spawn(def service.Definition) (*service.ManagedProcess, error) {
	mp := service.NewManagedProcess(def)
	s.register(mp)

	for _, dir := range def.RuntimeDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.fail(mp)
			return mp, &SpawnError{Service: def.Name, Err: err}
		}
	}

	cmd := def.BuildCommand()
	if def.WorkDir != "" {
		cmd.Dir = def.WorkDir
	}
	cmd.Env = s.envs.Merge(def.Env)
	cmd.SysProcAttr = sysProcAttr()

	outW, errW := s.logCfg.ServiceWriters(def.Name)
	if outW == nil {
		outW = logger.NewForwarder(s.log, def.Name)
		errW = logger.NewForwarder(s.log, def.Name)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		closeWriters(outW, errW)
		s.fail(mp)
		return mp, &SpawnError{Service: def.Name, Err: err}
	}
	mp.MarkStarted(cmd)
	metrics.IncSpawn(def.Name)
	metrics.RecordStateTransition(def.Name, service.StatePending.String(), service.StateStarting.String())
	s.log.Info("service spawned", slog.String("service", def.Name), slog.Int("pid", cmd.Process.Pid))

	go s.reap(mp, cmd, outW, errW)
	return mp, nil
}

// reap waits on the child exactly once and records its exit.
func (s *Supervisor) reap(mp *service.ManagedProcess, cmd *exec.Cmd, closers ...io.WriteCloser) {
	err := cmd.Wait()
	mp.MarkExited(exitCode(err), err)
	closeWriters(closers...)
	s.log.Debug("service exited",
		slog.String("service", mp.Name()),
		slog.Int("exit_code", mp.ExitCode()))
}

// IsAlive reports whether the OS process is still running. Non-blocking
// and safe on records that were never spawned or already reaped; the exit
// code was recorded by the reaper at exit time.
func (s *Supervisor) IsAlive(mp *service.ManagedProcess) bool {
	if mp == nil || mp.PID() == 0 {
		return false
	}
	wd := mp.WaitDone()
	if wd == nil {
		return false
	}
	select {
	case <-wd:
		return false
	default:
		return true
	}
}

// Terminate asks the child to exit, escalating to a forced kill after
// grace. Idempotent: terminating an already-terminal record is a no-op.
func (s *Supervisor) Terminate(mp *service.ManagedProcess, grace time.Duration) error {
	if mp == nil || mp.State().Terminal() {
		return nil
	}
	name := mp.Name()
	mp.SetStopRequested(true)
	s.Transition(mp, service.StateStopping)

	pid := mp.PID()
	if pid == 0 || !s.IsAlive(mp) {
		// never spawned, or already exited before we asked
		s.Transition(mp, service.StateStopped)
		return nil
	}

	s.log.Info("terminating service", slog.String("service", name), slog.Duration("grace", grace))
	_ = terminateProcess(pid)
	wd := mp.WaitDone()
	if wd == nil {
		s.Transition(mp, service.StateStopped)
		return nil
	}
	select {
	case <-wd:
		s.Transition(mp, service.StateStopped)
		metrics.IncTermination(name, false)
		return nil
	case <-time.After(grace):
	}

	s.log.Warn("grace period elapsed, force-killing", slog.String("service", name))
	_ = killProcess(pid)
	metrics.IncTermination(name, true)
	select {
	case <-wd:
		s.Transition(mp, service.StateFailed)
		return &TerminationTimeoutError{Service: name, Grace: grace}
	case <-time.After(killConfirmWait):
		s.Transition(mp, service.StateFailed)
		return &TerminationTimeoutError{Service: name, Grace: grace, KillFailed: true}
	}
}

// Transition moves mp to st and records the transition metric. Transitions
// out of terminal states are dropped by the record itself.
func (s *Supervisor) Transition(mp *service.ManagedProcess, st service.State) {
	if prev, ok := mp.SetState(st); ok {
		metrics.RecordStateTransition(mp.Name(), prev.String(), st.String())
	}
}

// Get returns the record for name, or nil.
func (s *Supervisor) Get(name string) *service.ManagedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[name]
}

// Processes returns all records in start order.
func (s *Supervisor) Processes() []*service.ManagedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*service.ManagedProcess, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.procs[name])
	}
	return out
}

// Snapshot returns the status table in start order.
func (s *Supervisor) Snapshot() []service.Status {
	procs := s.Processes()
	out := make([]service.Status, 0, len(procs))
	for _, mp := range procs {
		out = append(out, mp.Snapshot())
	}
	return out
}

func (s *Supervisor) register(mp *service.ManagedProcess) {
	s.mu.Lock()
	name := mp.Name()
	if _, ok := s.procs[name]; !ok {
		s.order = append(s.order, name)
	}
	s.procs[name] = mp
	s.mu.Unlock()
}

func (s *Supervisor) fail(mp *service.ManagedProcess) {
	s.Transition(mp, service.StateFailed)
}

func closeWriters(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

// exitCode maps the error from cmd.Wait onto a numeric exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return service.ExitCodeUnknown
}
