package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullTopology(t *testing.T) {
	path := writeConfig(t, `
env = ["WEB_CONCURRENCY=2"]

[log]
level = "debug"
format = "text"
color = true
dir = "/tmp/svc-logs"
max_size_mb = 16
max_backups = 3

[server]
enabled = true
listen = "127.0.0.1:9822"
base_path = "/launcher"

[monitor]
interval = "5s"

[[services]]
name = "tiler"
command = "gunicorn app:app"
workdir = "/srv/tiler"
env = ["PORT=8000"]
readiness = { host = "127.0.0.1", port = 8000 }
readiness_timeout = "45s"
grace_period = "10s"

[[services]]
name = "nginx"
command = "nginx -g 'daemon off;'"
depends_on = ["tiler"]
preflight = "nginx -t"
runtime_dirs = ["/tmp/nginx_client_temp"]
readiness = { host = "127.0.0.1", port = 5000 }
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"WEB_CONCURRENCY=2"}, cfg.GlobalEnv)
	require.Equal(t, "debug", string(cfg.Log.Slog.Level))
	require.Equal(t, "/tmp/svc-logs", cfg.Log.File.Dir)
	require.True(t, cfg.Server.Enabled)
	require.Equal(t, "127.0.0.1:9822", cfg.Server.Listen)
	require.Equal(t, "/launcher", cfg.Server.BasePath)
	require.Equal(t, 5*time.Second, cfg.MonitorInterval)

	require.Len(t, cfg.Services, 2)
	tiler := cfg.Services[0]
	require.Equal(t, "tiler", tiler.Name)
	require.Equal(t, "/srv/tiler", tiler.WorkDir)
	require.NotNil(t, tiler.Readiness)
	require.Equal(t, "127.0.0.1:8000", tiler.Readiness.Addr())
	require.Equal(t, 45*time.Second, tiler.ReadinessTimeout)
	require.Equal(t, 10*time.Second, tiler.GracePeriod)

	nginx := cfg.Services[1]
	require.Equal(t, []string{"tiler"}, nginx.DependsOn)
	require.Equal(t, "nginx -t", nginx.Preflight)
	require.Equal(t, []string{"/tmp/nginx_client_temp"}, nginx.RuntimeDirs)
}

func TestLoadMinimalService(t *testing.T) {
	path := writeConfig(t, `
[[services]]
name = "worker"
command = "sleep 30"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Services, 1)
	require.Nil(t, cfg.Services[0].Readiness)
	require.Zero(t, cfg.Services[0].ReadinessTimeout)
	require.False(t, cfg.Server.Enabled)
}

func TestLoadEnvFilesComposeInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "base.env")
	second := filepath.Join(dir, "override.env")
	require.NoError(t, os.WriteFile(first, []byte("# base settings\nA=1\nB=2\n\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("B=3\nC=4\n"), 0o644))

	path := writeConfig(t, `
env = ["C=5"]
env_files = ["`+first+`", "`+second+`"]

[[services]]
name = "x"
command = "true"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// later sources win per key, first-seen order is preserved
	require.Equal(t, []string{"A=1", "B=3", "C=5"}, cfg.GlobalEnv)
}

func TestLoadMissingEnvFile(t *testing.T) {
	path := writeConfig(t, `
env_files = ["/no/such/file.env"]

[[services]]
name = "x"
command = "true"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNoServices(t *testing.T) {
	path := writeConfig(t, `env = ["A=1"]`)
	_, err := Load(path)
	require.ErrorContains(t, err, "no services")
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeConfig(t, `
[[services]]
name = "x"
command = "true"

[[services]]
name = "x"
command = "true"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "duplicate service name")
}

func TestLoadRejectsUnknownDependency(t *testing.T) {
	path := writeConfig(t, `
[[services]]
name = "x"
command = "true"
depends_on = ["phantom"]
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown service")
}

func TestLoadRejectsInvalidService(t *testing.T) {
	path := writeConfig(t, `
[[services]]
name = "bad svc"
command = "true"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsServerWithoutListen(t *testing.T) {
	path := writeConfig(t, `
[server]
enabled = true

[[services]]
name = "x"
command = "true"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "server.listen")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
