//go:build windows

package supervisor

import (
	"os"
	"syscall"
)

// Windows has no process groups or SIGTERM; both paths are a hard kill.

func terminateProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func killProcess(pid int) error {
	return terminateProcess(pid)
}

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}
