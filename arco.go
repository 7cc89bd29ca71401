// Package arco is the embedding facade for the service launcher: load a
// topology, run it supervised, and map the outcome to an exit code.
package arco

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/icpac-igad/arco-ibf/internal/config"
	"github.com/icpac-igad/arco-ibf/internal/launcher"
	"github.com/icpac-igad/arco-ibf/internal/metrics"
	"github.com/icpac-igad/arco-ibf/internal/sequencer"
	"github.com/icpac-igad/arco-ibf/internal/server"
	"github.com/icpac-igad/arco-ibf/internal/service"
)

// Re-exported core types; aliases keep conversions zero-cost for embedders.

type Definition = service.Definition

type ReadinessTarget = service.ReadinessTarget

type Status = service.Status

type Config = config.Config

type Launcher = launcher.Launcher

type Options = launcher.Options

// Launcher exit codes.
const (
	ExitOK               = launcher.ExitOK
	ExitConfigError      = launcher.ExitConfigError
	ExitSpawnFailure     = launcher.ExitSpawnFailure
	ExitReadinessTimeout = launcher.ExitReadinessTimeout
	ExitUnexpectedExit   = launcher.ExitUnexpectedExit
)

// LoadConfig reads and validates a TOML topology file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// New builds a Launcher for the given definitions.
func New(defs []Definition, opts Options) *Launcher { return launcher.New(defs, opts) }

// NewFromConfig builds a Launcher wired per a loaded config file.
func NewFromConfig(cfg *Config, opts Options) *Launcher {
	if opts.Logger == nil {
		opts.Logger = cfg.Log.NewSlogger()
	}
	opts.LogConfig = cfg.Log
	opts.GlobalEnv = append(cfg.GlobalEnv, opts.GlobalEnv...)
	if opts.MonitorInterval == 0 {
		opts.MonitorInterval = cfg.MonitorInterval
	}
	return launcher.New(cfg.Services, opts)
}

// StartOrder resolves the topological start order without spawning
// anything; it fails fast on cycles and unknown dependencies.
func StartOrder(defs []Definition) ([]Definition, error) { return sequencer.Order(defs) }

// ExitCodeFor maps the error returned by Launcher.Run onto the launcher's
// process exit code.
func ExitCodeFor(err error) int { return launcher.ExitCodeFor(err) }

// RegisterMetrics registers the launcher's Prometheus collectors.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers against the default registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// NewStatusServer starts the read-only status HTTP server for a running
// launcher.
func NewStatusServer(addr, basePath string, l *Launcher) *http.Server {
	return server.NewServer(addr, basePath, l)
}
