package launcher

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/icpac-igad/arco-ibf/internal/monitor"
	"github.com/icpac-igad/arco-ibf/internal/probe"
	"github.com/icpac-igad/arco-ibf/internal/service"
	"github.com/icpac-igad/arco-ibf/internal/supervisor"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires unix process semantics")
	}
}

func testOptions() Options {
	return Options{
		Logger:          slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		MonitorInterval: 50 * time.Millisecond,
	}
}

func sleeper(name string, deps ...string) service.Definition {
	return service.Definition{
		Name:        name,
		Command:     "sleep",
		Args:        []string{"30"},
		GracePeriod: 2 * time.Second,
		DependsOn:   deps,
	}
}

// waitForStartup polls until the launcher reports state, failing the test on
// timeout.
func waitForStartup(t *testing.T, l *Launcher, state string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if l.StartupState() == state {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("launcher never reached %s, currently %s", state, l.StartupState())
}

func statusByName(snap []service.Status, name string) (service.Status, bool) {
	for _, st := range snap {
		if st.Name == name {
			return st, true
		}
	}
	return service.Status{}, false
}

func TestRunCleanStopReverseOrder(t *testing.T) {
	requireUnix(t)
	l := New([]service.Definition{
		sleeper("db"),
		sleeper("api", "db"),
		sleeper("proxy", "api"),
	}, testOptions())

	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(context.Background()) }()

	waitForStartup(t, l, "all_ready")
	l.RequestShutdown()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if code := ExitCodeFor(err); code != ExitOK {
			t.Fatalf("exit code = %d, want %d", code, ExitOK)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after shutdown request")
	}

	snap := l.Snapshot()
	for _, name := range []string{"db", "api", "proxy"} {
		st, ok := statusByName(snap, name)
		if !ok {
			t.Fatalf("service %s missing from snapshot", name)
		}
		if st.State != service.StateStopped.String() {
			t.Fatalf("service %s state = %s, want stopped", name, st.State)
		}
	}

	// teardown walks the topology backwards: proxy first, db last
	proxy, _ := statusByName(snap, "proxy")
	api, _ := statusByName(snap, "api")
	db, _ := statusByName(snap, "db")
	if proxy.StoppedAt.After(api.StoppedAt) {
		t.Fatal("proxy stopped after api")
	}
	if api.StoppedAt.After(db.StoppedAt) {
		t.Fatal("api stopped after db")
	}
}

func TestRunSpawnFailureTearsDownStartedServices(t *testing.T) {
	requireUnix(t)
	defs := []service.Definition{
		sleeper("db"),
		{Name: "api", Command: "/no/such/binary-xyzzy", DependsOn: []string{"db"}, GracePeriod: 2 * time.Second},
		sleeper("proxy", "api"),
	}
	l := New(defs, testOptions())

	err := l.Run(context.Background())
	var se *supervisor.SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("want SpawnError, got %v", err)
	}
	if code := ExitCodeFor(err); code != ExitSpawnFailure {
		t.Fatalf("exit code = %d, want %d", code, ExitSpawnFailure)
	}

	snap := l.Snapshot()
	if _, ok := statusByName(snap, "proxy"); ok {
		t.Fatal("proxy spawned despite upstream failure")
	}
	db, _ := statusByName(snap, "db")
	if db.State != service.StateStopped.String() {
		t.Fatalf("db state = %s, want stopped", db.State)
	}
}

func TestRunUnexpectedExitCascades(t *testing.T) {
	requireUnix(t)
	defs := []service.Definition{
		sleeper("db"),
		{Name: "flaky", Command: "sh -c 'sleep 0.3; exit 9'", DependsOn: []string{"db"}, GracePeriod: 2 * time.Second},
	}
	l := New(defs, testOptions())

	err := l.Run(context.Background())
	var ue *monitor.UnexpectedExitError
	if !errors.As(err, &ue) {
		t.Fatalf("want UnexpectedExitError, got %v", err)
	}
	if ue.Service != "flaky" || ue.ExitCode != 9 {
		t.Fatalf("error fields: %+v", ue)
	}
	if code := ExitCodeFor(err); code != ExitUnexpectedExit {
		t.Fatalf("exit code = %d, want %d", code, ExitUnexpectedExit)
	}

	db, _ := statusByName(l.Snapshot(), "db")
	if db.State != service.StateStopped.String() {
		t.Fatalf("db state = %s, want stopped", db.State)
	}
}

func TestRunReadinessTimeoutCleansUp(t *testing.T) {
	requireUnix(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	defs := []service.Definition{{
		Name:             "deaf",
		Command:          "sleep",
		Args:             []string{"30"},
		Readiness:        &service.ReadinessTarget{Host: "127.0.0.1", Port: port},
		ReadinessTimeout: 400 * time.Millisecond,
		GracePeriod:      2 * time.Second,
	}}
	l := New(defs, testOptions())

	err = l.Run(context.Background())
	var te *probe.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("want TimeoutError, got %v", err)
	}
	if code := ExitCodeFor(err); code != ExitReadinessTimeout {
		t.Fatalf("exit code = %d, want %d", code, ExitReadinessTimeout)
	}

	// the never-ready child must not be leaked
	deaf := l.Supervisor().Get("deaf")
	if l.Supervisor().IsAlive(deaf) {
		t.Fatal("child still alive after readiness-timeout teardown")
	}
}

func TestRunPreflightFailureSpawnsNothing(t *testing.T) {
	requireUnix(t)
	defs := []service.Definition{
		sleeper("db"),
		{
			Name:      "proxy",
			Command:   "sleep 30",
			DependsOn: []string{"db"},
			Preflight: "sh -c 'exit 1'",
		},
	}
	l := New(defs, testOptions())

	err := l.Run(context.Background())
	var pe *PreflightError
	if !errors.As(err, &pe) {
		t.Fatalf("want PreflightError, got %v", err)
	}
	if pe.Service != "proxy" {
		t.Fatalf("service = %q", pe.Service)
	}
	if code := ExitCodeFor(err); code != ExitConfigError {
		t.Fatalf("exit code = %d, want %d", code, ExitConfigError)
	}
	if len(l.Snapshot()) != 0 {
		t.Fatal("services spawned despite failed preflight")
	}
}

func TestRunStopRequestDuringStartupIsClean(t *testing.T) {
	requireUnix(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	// readiness never satisfied, so startup blocks in the probe
	defs := []service.Definition{{
		Name:             "slow",
		Command:          "sleep",
		Args:             []string{"30"},
		Readiness:        &service.ReadinessTarget{Host: "127.0.0.1", Port: port},
		ReadinessTimeout: 30 * time.Second,
		GracePeriod:      2 * time.Second,
	}}
	l := New(defs, testOptions())

	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(context.Background()) }()

	time.Sleep(300 * time.Millisecond)
	l.RequestShutdown()
	l.RequestShutdown() // second request is a no-op

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v, want nil for a requested stop", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after shutdown during startup")
	}

	slow := l.Supervisor().Get("slow")
	if l.Supervisor().IsAlive(slow) {
		t.Fatal("child leaked after mid-startup stop")
	}
}

func TestCoordinatorUsesPerServiceGracePeriod(t *testing.T) {
	requireUnix(t)
	// one explicit grace period, one relying on the definition default
	defs := []service.Definition{
		sleeper("db"),
		{Name: "api", Command: "sleep", Args: []string{"30"}, DependsOn: []string{"db"}},
	}
	l := New(defs, testOptions())

	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(context.Background()) }()
	waitForStartup(t, l, "all_ready")
	l.RequestShutdown()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return")
	}
	for _, st := range l.Snapshot() {
		if st.State != service.StateStopped.String() {
			t.Fatalf("service %s state = %s, want stopped", st.Name, st.State)
		}
	}
}

func TestExitCodeForPassthrough(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&supervisor.SpawnError{Service: "x", Err: errors.New("boom")}, ExitSpawnFailure},
		{&probe.TimeoutError{Target: "127.0.0.1:1", Timeout: time.Second}, ExitReadinessTimeout},
		{&monitor.UnexpectedExitError{Service: "x", ExitCode: 1}, ExitUnexpectedExit},
		{errors.New("bad config"), ExitConfigError},
		{&PreflightError{Service: "x", Err: errors.New("boom")}, ExitConfigError},
	}
	for _, tc := range cases {
		if got := ExitCodeFor(tc.err); got != tc.want {
			t.Fatalf("ExitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
