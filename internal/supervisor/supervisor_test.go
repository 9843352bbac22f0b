package supervisor

import (
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/internal/config"
	"github.com/jamesonBradfield/local-ai-manager/internal/procutil"
	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

// cfgForURL builds a ServerConfig pointing at a test server URL.
func cfgForURL(t *testing.T, rawURL string) config.ServerConfig {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return config.ServerConfig{
		Host:         u.Hostname(),
		Port:         port,
		BinaryPath:   "/bin/sleep",
		CacheDir:     t.TempDir(),
		LogDir:       t.TempDir(),
		StartTimeout: config.Duration(time.Second),
	}
}

// deadCfg points at a port with no listener.
func deadCfg(t *testing.T) config.ServerConfig {
	t.Helper()
	return config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         1, // nothing listens here
		BinaryPath:   "/bin/sleep",
		CacheDir:     t.TempDir(),
		LogDir:       t.TempDir(),
		StartTimeout: config.Duration(time.Second),
	}
}

// spawnSleep starts a throwaway process and reaps it on exit so the process
// table reflects kills promptly.
func spawnSleep(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("spawn sleep: %v", err)
	}
	go func() { _ = cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}

func writePidFile(t *testing.T, s *Supervisor, pid int) {
	t.Helper()
	if err := s.writePID(pid); err != nil {
		t.Fatalf("write pid: %v", err)
	}
}

func waitExited(t *testing.T, pid int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for procutil.Exists(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("pid %d never exited", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestIsRunningNoRecordNoServer(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	if s.IsRunning() {
		t.Fatalf("expected not running")
	}
}

func TestIsRunningValidPidRecord(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	cmd := spawnSleep(t)
	writePidFile(t, s, cmd.Process.Pid)
	if !s.IsRunning() {
		t.Fatalf("expected running with live matching pid")
	}
}

func TestIsRunningSelfHealsAfterExternalKill(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	cmd := spawnSleep(t)
	writePidFile(t, s, cmd.Process.Pid)
	if !s.IsRunning() {
		t.Fatalf("expected running before kill")
	}

	_ = cmd.Process.Kill()
	waitExited(t, int32(cmd.Process.Pid))

	if s.IsRunning() {
		t.Fatalf("expected not running after external kill")
	}
	if _, err := os.Stat(s.pidFile()); !os.IsNotExist(err) {
		t.Fatalf("stale pid record not cleared")
	}
}

func TestIsRunningClearsForeignProcessRecord(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	// The test binary's name does not contain "sleep".
	writePidFile(t, s, os.Getpid())
	if s.IsRunning() {
		t.Fatalf("foreign process must not be trusted")
	}
	if _, err := os.Stat(s.pidFile()); !os.IsNotExist(err) {
		t.Fatalf("foreign pid record not cleared")
	}
}

func TestIsRunningToleratesGarbledRecord(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	if err := os.WriteFile(s.pidFile(), []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("garbled record must read as not running")
	}
	if _, err := os.Stat(s.pidFile()); !os.IsNotExist(err) {
		t.Fatalf("garbled pid record not cleared")
	}
}

func TestIsRunningHealthFallback(t *testing.T) {
	srv := newFakeServer(t, fakeServerOpts{healthy: true})
	s := New(cfgForURL(t, srv.URL), zerolog.Nop())
	// No pid record, but something answers /health on the configured port.
	if !s.IsRunning() {
		t.Fatalf("expected health fallback to report running")
	}
}

func TestStartMissingModelPath(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	def := types.ModelDefinition{ID: "m1"}
	err := s.Start(def, filepath.Join(t.TempDir(), "missing.gguf"), StartOptions{Background: true}, nil)
	if err == nil || !IsModelFileMissing(err) {
		t.Fatalf("expected model file error, got %v", err)
	}
	if _, statErr := os.Stat(s.pidFile()); !os.IsNotExist(statErr) {
		t.Fatalf("failed start must leave no pid record")
	}
}

func TestStartIdempotentWhenRunning(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	cmd := spawnSleep(t)
	writePidFile(t, s, cmd.Process.Pid)

	// Nonexistent model path proves no new process is spawned: Start returns
	// success before the path check.
	err := s.Start(types.ModelDefinition{ID: "m1"}, "/nonexistent.gguf", StartOptions{Background: true}, nil)
	if err != nil {
		t.Fatalf("start on running instance: %v", err)
	}
	if got, ok := s.readPID(); !ok || got != int32(cmd.Process.Pid) {
		t.Fatalf("pid record changed: %d ok=%v", got, ok)
	}
}

func TestStartForegroundStateReady(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	model := filepath.Join(t.TempDir(), "m1.gguf")
	if err := os.WriteFile(model, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	if err := s.Start(types.ModelDefinition{ID: "m1"}, model, StartOptions{Background: false}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if pid, ok := s.readPID(); ok {
			_ = procutil.TerminateTree(pid, time.Second)
		}
	})
	if s.State() != StateReady {
		t.Fatalf("state = %s, want %s", s.State(), StateReady)
	}
}

func TestStartBackgroundTimeoutTearsDown(t *testing.T) {
	cfg := deadCfg(t)
	cfg.StartTimeout = config.Duration(700 * time.Millisecond)
	s := New(cfg, zerolog.Nop())

	model := filepath.Join(t.TempDir(), "m1.gguf")
	if err := os.WriteFile(model, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	// /bin/sleep never answers /health, so the readiness gate must fail and
	// tear the process down.
	err := s.Start(types.ModelDefinition{ID: "m1"}, model, StartOptions{Background: true}, nil)
	if err == nil || !IsStartTimeout(err) {
		t.Fatalf("expected start timeout, got %v", err)
	}
	if _, statErr := os.Stat(s.pidFile()); !os.IsNotExist(statErr) {
		t.Fatalf("timed-out start must leave no pid record")
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s, want %s", s.State(), StateStopped)
	}
}

func TestStopWithoutRecordOrPortOwner(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	if err := s.Stop(true); err != nil {
		t.Fatalf("stop with nothing to do: %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s", s.State())
	}
}

func TestStopGracefulClearsRecord(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	cmd := spawnSleep(t)
	writePidFile(t, s, cmd.Process.Pid)

	if err := s.Stop(true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitExited(t, int32(cmd.Process.Pid))
	if _, err := os.Stat(s.pidFile()); !os.IsNotExist(err) {
		t.Fatalf("pid record not cleared on confirmed stop")
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s", s.State())
	}
}

func TestStopForcedTakesDownTree(t *testing.T) {
	s := New(deadCfg(t), zerolog.Nop())
	// A shell parent with a sleep child; saveCache=false must kill both.
	cmd := exec.Command("sh", "-c", "sleep 60 & wait")
	if err := cmd.Start(); err != nil {
		t.Fatalf("spawn tree: %v", err)
	}
	go func() { _ = cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	time.Sleep(100 * time.Millisecond) // let the child appear
	writePidFile(t, s, cmd.Process.Pid)

	if err := s.Stop(false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitExited(t, int32(cmd.Process.Pid))
}
