package service

import (
	"os/exec"
	"sync"
	"time"
)

// ExitCodeUnknown is reported while a process is still running or was never
// successfully spawned.
const ExitCodeUnknown = -1

// Status is a point-in-time snapshot of a managed process, captured
// atomically under the process lock. Safe to serialize and log.
type Status struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	ExitCode  int       `json:"exit_code"`
	Readiness string    `json:"readiness,omitempty"`
}

// ManagedProcess pairs one Definition with the live process state. All
// mutating methods are called by the supervisor (and its reaper goroutine);
// everything is serialized through the internal mutex so concurrent readers
// always observe a consistent snapshot.
type ManagedProcess struct {
	mu            sync.Mutex
	def           Definition
	st            State
	cmd           *exec.Cmd
	pid           int
	started       time.Time
	stopped       time.Time
	exitCode      int
	exitErr       error
	stopRequested bool
	waitDone      chan struct{} // closed by the reaper when cmd.Wait returns
}

// NewManagedProcess creates a record in StatePending for the definition.
func NewManagedProcess(def Definition) *ManagedProcess {
	return &ManagedProcess{def: def, st: StatePending, exitCode: ExitCodeUnknown}
}

// Definition returns the immutable definition this record was built from.
func (m *ManagedProcess) Definition() Definition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.def
}

// Name is a convenience accessor for the service name.
func (m *ManagedProcess) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.def.Name
}

// State returns the current lifecycle state.
func (m *ManagedProcess) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// SetState transitions the state machine. Transitions out of a terminal
// state are ignored so a late reaper cannot resurrect a Failed record.
func (m *ManagedProcess) SetState(s State) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.Terminal() {
		return m.st, false
	}
	prev := m.st
	m.st = s
	return prev, true
}

// PID returns the OS pid, or zero when the process was never spawned.
func (m *ManagedProcess) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid
}

// MarkStarted records the spawned command and flips the state to Starting.
func (m *ManagedProcess) MarkStarted(cmd *exec.Cmd) {
	m.mu.Lock()
	m.cmd = cmd
	m.pid = cmd.Process.Pid
	m.started = time.Now()
	m.st = StateStarting
	m.waitDone = make(chan struct{})
	m.mu.Unlock()
}

// MarkExited records the exit result and closes the wait channel. The state
// itself is decided by the caller (supervisor or coordinator), because an
// exit can mean Stopped, Failed, or an unexpected death depending on who
// asked for it. The channel stays set after close so late readers still see
// the exit rather than a never-started record.
func (m *ManagedProcess) MarkExited(code int, err error) {
	m.mu.Lock()
	m.stopped = time.Now()
	m.exitCode = code
	m.exitErr = err
	wd := m.waitDone
	m.mu.Unlock()
	if wd != nil {
		close(wd)
	}
}

// WaitDone returns the channel closed when the reaper has collected the
// process, or nil when the process was never spawned.
func (m *ManagedProcess) WaitDone() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitDone
}

// Cmd returns the underlying command handle. Only the supervisor's reaper
// calls Wait on it.
func (m *ManagedProcess) Cmd() *exec.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd
}

// SetStopRequested marks that an intentional terminate is in progress, so
// the liveness monitor does not classify the exit as unexpected.
func (m *ManagedProcess) SetStopRequested(v bool) {
	m.mu.Lock()
	m.stopRequested = v
	m.mu.Unlock()
}

// StopRequested reports whether terminate has been requested.
func (m *ManagedProcess) StopRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopRequested
}

// ExitCode returns the recorded exit code, ExitCodeUnknown while running.
func (m *ManagedProcess) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode
}

// Snapshot captures the full status atomically.
func (m *ManagedProcess) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Name:      m.def.Name,
		State:     m.st.String(),
		PID:       m.pid,
		StartedAt: m.started,
		StoppedAt: m.stopped,
		ExitCode:  m.exitCode,
	}
	if m.def.Readiness != nil {
		st.Readiness = m.def.Readiness.Addr()
	}
	return st
}
