package service

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Default timing parameters applied when a definition leaves them unset.
const (
	DefaultReadinessTimeout = 30 * time.Second
	DefaultGracePeriod      = 8 * time.Second
)

// ReadinessTarget is the TCP endpoint a service must accept connections on
// before it is considered ready. A nil target means the service is ready as
// soon as its process is confirmed alive.
type ReadinessTarget struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// Addr returns the target in host:port form suitable for net.Dial.
func (t ReadinessTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t ReadinessTarget) String() string { return t.Addr() }

// Definition describes one service in the launch topology. It is immutable
// after load; ManagedProcess keeps a copy for the lifetime of the run.
type Definition struct {
	Name             string           `json:"name"`
	Command          string           `json:"command"`
	Args             []string         `json:"args"`
	WorkDir          string           `json:"work_dir"`
	Env              []string         `json:"env"` // KEY=VALUE overrides on top of the launcher environment
	Readiness        *ReadinessTarget `json:"readiness,omitempty"`
	ReadinessTimeout time.Duration    `json:"readiness_timeout"`
	GracePeriod      time.Duration    `json:"grace_period"`
	DependsOn        []string         `json:"depends_on"`
	Preflight        string           `json:"preflight,omitempty"`    // command run to completion before the topology starts
	RuntimeDirs      []string         `json:"runtime_dirs,omitempty"` // directories created before spawn
}

// Validate checks the fields that can be judged in isolation. Topology-level
// checks (unknown references, cycles) belong to the sequencer.
func (d *Definition) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("service requires a name")
	}
	if strings.ContainsAny(name, " \t/\\") {
		return fmt.Errorf("service %q: name must not contain spaces or path separators", name)
	}
	if strings.TrimSpace(d.Command) == "" {
		return fmt.Errorf("service %q requires a command", name)
	}
	if d.Readiness != nil {
		if d.Readiness.Host == "" {
			return fmt.Errorf("service %q: readiness target requires a host", name)
		}
		if d.Readiness.Port <= 0 || d.Readiness.Port > 65535 {
			return fmt.Errorf("service %q: readiness port %d out of range", name, d.Readiness.Port)
		}
	}
	if d.ReadinessTimeout < 0 {
		return fmt.Errorf("service %q: readiness_timeout cannot be negative", name)
	}
	if d.GracePeriod < 0 {
		return fmt.Errorf("service %q: grace_period cannot be negative", name)
	}
	for _, dep := range d.DependsOn {
		if dep == name {
			return fmt.Errorf("service %q cannot depend on itself", name)
		}
	}
	for _, kv := range d.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("service %q: env entry %q must be KEY=VALUE", name, kv)
		}
	}
	return nil
}

// EffectiveReadinessTimeout returns the configured timeout or the default.
func (d *Definition) EffectiveReadinessTimeout() time.Duration {
	if d.ReadinessTimeout > 0 {
		return d.ReadinessTimeout
	}
	return DefaultReadinessTimeout
}

// EffectiveGracePeriod returns the configured grace period or the default.
func (d *Definition) EffectiveGracePeriod() time.Duration {
	if d.GracePeriod > 0 {
		return d.GracePeriod
	}
	return DefaultGracePeriod
}

// BuildCommand constructs the *exec.Cmd for this definition. When Args is
// empty and the command string carries shell metacharacters or an explicit
// "sh -c" prefix, it is handed to /bin/sh so operators can write one-line
// pipelines in the config the same way they did in shell scripts.
func (d *Definition) BuildCommand() *exec.Cmd {
	if len(d.Args) > 0 {
		// #nosec G204 -- command comes from the operator's own config
		return exec.Command(d.Command, d.Args...)
	}
	return commandFromLine(d.Command)
}

// BuildPreflight constructs the preflight check command, or nil when none
// is declared. Preflights run to completion before the topology starts, in
// the service's working directory.
func (d *Definition) BuildPreflight(ctx context.Context) *exec.Cmd {
	if strings.TrimSpace(d.Preflight) == "" {
		return nil
	}
	base := commandFromLine(d.Preflight)
	// #nosec G204
	cmd := exec.CommandContext(ctx, base.Path, base.Args[1:]...)
	if d.WorkDir != "" {
		cmd.Dir = d.WorkDir
	}
	return cmd
}

// commandFromLine turns a single command line into an *exec.Cmd.
func commandFromLine(line string) *exec.Cmd {
	cmdStr := strings.TrimSpace(line)
	if after, ok := stripExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", after)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	if len(parts) == 0 {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// stripExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// script after -c, with one pair of surrounding quotes removed so the shell
// sees the actual script rather than a quoted literal.
func stripExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}
