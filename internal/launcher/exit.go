package launcher

import (
	"errors"

	"github.com/icpac-igad/arco-ibf/internal/monitor"
	"github.com/icpac-igad/arco-ibf/internal/probe"
	"github.com/icpac-igad/arco-ibf/internal/supervisor"
)

// Launcher process exit codes. Each fatal category gets a distinct value
// so wrappers can tell a bad command from a hung readiness check from a
// steady-state death.
const (
	ExitOK               = 0
	ExitConfigError      = 1
	ExitSpawnFailure     = 2
	ExitReadinessTimeout = 3
	ExitUnexpectedExit   = 4
)

// ExitCodeFor maps the error returned by Launcher.Run onto the process
// exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		spawnErr *supervisor.SpawnError
		probeErr *probe.TimeoutError
		deadErr  *monitor.UnexpectedExitError
	)
	switch {
	case errors.As(err, &spawnErr):
		return ExitSpawnFailure
	case errors.As(err, &probeErr):
		return ExitReadinessTimeout
	case errors.As(err, &deadErr):
		return ExitUnexpectedExit
	default:
		return ExitConfigError
	}
}
