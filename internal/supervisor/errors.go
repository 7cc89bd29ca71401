package supervisor

import (
	"fmt"
	"time"
)

// SpawnError means the OS refused to create the child process (missing
// executable, permission denied, resource exhaustion). Fatal to the launch.
type SpawnError struct {
	Service string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn service %q: %v", e.Service, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TerminationTimeoutError means a child ignored the graceful stop for its
// whole grace period and had to be force-killed. Recovered locally unless
// KillFailed is set, in which case even SIGKILL did not take and the
// operator is leaking a process.
type TerminationTimeoutError struct {
	Service    string
	Grace      time.Duration
	KillFailed bool
}

func (e *TerminationTimeoutError) Error() string {
	if e.KillFailed {
		return fmt.Sprintf("service %q ignored termination for %s and survived forced kill", e.Service, e.Grace)
	}
	return fmt.Sprintf("service %q did not exit within %s grace period, force-killed", e.Service, e.Grace)
}
