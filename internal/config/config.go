// Package config loads the service topology from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/icpac-igad/arco-ibf/internal/logger"
	"github.com/icpac-igad/arco-ibf/internal/service"
)

// FileConfig mirrors the top-level TOML structure.
type FileConfig struct {
	Env      []string        `toml:"env" mapstructure:"env"`
	EnvFiles []string        `toml:"env_files" mapstructure:"env_files"`
	Log      *LogConfig      `toml:"log" mapstructure:"log"`
	Server   *ServerConfig   `toml:"server" mapstructure:"server"`
	Monitor  *MonitorConfig  `toml:"monitor" mapstructure:"monitor"`
	Services []ServiceConfig `toml:"services" mapstructure:"services"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// ServerConfig enables the read-only status endpoint.
type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MonitorConfig struct {
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
}

// ServiceConfig is one [[services]] entry.
type ServiceConfig struct {
	Name             string          `toml:"name" mapstructure:"name"`
	Command          string          `toml:"command" mapstructure:"command"`
	Args             []string        `toml:"args" mapstructure:"args"`
	WorkDir          string          `toml:"workdir" mapstructure:"workdir"`
	Env              []string        `toml:"env" mapstructure:"env"`
	Readiness        *ReadinessEntry `toml:"readiness" mapstructure:"readiness"`
	ReadinessTimeout time.Duration   `toml:"readiness_timeout" mapstructure:"readiness_timeout"`
	GracePeriod      time.Duration   `toml:"grace_period" mapstructure:"grace_period"`
	DependsOn        []string        `toml:"depends_on" mapstructure:"depends_on"`
	Preflight        string          `toml:"preflight" mapstructure:"preflight"`
	RuntimeDirs      []string        `toml:"runtime_dirs" mapstructure:"runtime_dirs"`
}

type ReadinessEntry struct {
	Host string `toml:"host" mapstructure:"host"`
	Port int    `toml:"port" mapstructure:"port"`
}

// Config is the loaded, validated configuration.
type Config struct {
	GlobalEnv       []string
	Log             logger.Config
	Server          ServerConfig
	MonitorInterval time.Duration
	Services        []service.Definition
}

// Load reads and validates a TOML topology file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return build(&fc)
}

func build(fc *FileConfig) (*Config, error) {
	cfg := &Config{}

	genv, err := mergeGlobalEnv(fc)
	if err != nil {
		return nil, err
	}
	cfg.GlobalEnv = genv

	if fc.Log != nil {
		cfg.Log = logger.Config{
			Slog: logger.SlogConfig{
				Level:  logger.Level(fc.Log.Level),
				Format: logger.Format(fc.Log.Format),
				Color:  fc.Log.Color,
			},
			File: logger.FileConfig{
				Dir:        fc.Log.Dir,
				MaxSizeMB:  fc.Log.MaxSizeMB,
				MaxBackups: fc.Log.MaxBackups,
				MaxAgeDays: fc.Log.MaxAgeDays,
				Compress:   fc.Log.Compress,
			},
		}
	}
	if fc.Server != nil {
		cfg.Server = *fc.Server
		if cfg.Server.Enabled && cfg.Server.Listen == "" {
			return nil, fmt.Errorf("server.listen is required when the status server is enabled")
		}
	}
	if fc.Monitor != nil {
		if fc.Monitor.Interval < 0 {
			return nil, fmt.Errorf("monitor.interval cannot be negative")
		}
		cfg.MonitorInterval = fc.Monitor.Interval
	}

	if len(fc.Services) == 0 {
		return nil, fmt.Errorf("config declares no services")
	}
	names := make(map[string]struct{}, len(fc.Services))
	for _, sc := range fc.Services {
		def := service.Definition{
			Name:             sc.Name,
			Command:          sc.Command,
			Args:             sc.Args,
			WorkDir:          sc.WorkDir,
			Env:              sc.Env,
			ReadinessTimeout: sc.ReadinessTimeout,
			GracePeriod:      sc.GracePeriod,
			DependsOn:        sc.DependsOn,
			Preflight:        sc.Preflight,
			RuntimeDirs:      sc.RuntimeDirs,
		}
		if sc.Readiness != nil {
			def.Readiness = &service.ReadinessTarget{Host: sc.Readiness.Host, Port: sc.Readiness.Port}
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := names[def.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", def.Name)
		}
		names[def.Name] = struct{}{}
		cfg.Services = append(cfg.Services, def)
	}
	for _, def := range cfg.Services {
		for _, dep := range def.DependsOn {
			if _, ok := names[dep]; !ok {
				return nil, fmt.Errorf("service %q depends on unknown service %q", def.Name, dep)
			}
		}
	}
	return cfg, nil
}

// mergeGlobalEnv composes the launcher-level environment overrides:
// env_files in order, then the inline env list last. The OS environment is
// always the base; these entries override it per key.
func mergeGlobalEnv(fc *FileConfig) ([]string, error) {
	m := make(map[string]string)
	order := make([]string, 0)
	set := func(k, v string) {
		if _, seen := m[k]; !seen {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for _, kv := range pairs {
			if i := strings.IndexByte(kv, '='); i > 0 {
				set(kv[:i], kv[i+1:])
			}
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			set(kv[:i], kv[i+1:])
		}
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile parses a simple KEY=VALUE env file. Blank lines and lines
// starting with # are ignored.
func loadEnvFile(path string) ([]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out = append(out, k+"="+v)
		}
	}
	return out, nil
}
