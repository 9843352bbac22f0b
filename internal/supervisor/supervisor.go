// Package supervisor owns the llama-server subprocess end to end: start with
// health-gated readiness, status introspection, graceful or forced stop, and
// pass-through generation calls.
package supervisor

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/internal/config"
	"github.com/jamesonBradfield/local-ai-manager/internal/procutil"
	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

const (
	healthPollInterval  = 500 * time.Millisecond
	healthProbeTimeout  = 2 * time.Second
	statusProbeTimeout  = 5 * time.Second
	stopGrace           = 5 * time.Second
	defaultStartTimeout = 60 * time.Second
)

// StartOptions controls how Start launches the server.
type StartOptions struct {
	Background bool
	UseCache   bool
	ExtraArgs  []string
}

// Supervisor manages the inference-server process. The pidfile is the only
// persisted state; the in-memory State is reconciled against it and a live
// health probe on every trust decision.
type Supervisor struct {
	cfg        config.ServerConfig
	log        zerolog.Logger
	httpClient *http.Client

	mu    sync.Mutex
	state State
}

// New constructs a Supervisor. The HTTP client carries no global timeout;
// every request applies a context deadline.
func New(cfg config.ServerConfig, log zerolog.Logger) *Supervisor {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = config.Duration(defaultStartTimeout)
	}
	return &Supervisor{
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: 0},
		state:      StateStopped,
	}
}

// State returns the current in-memory lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) pidFile() string {
	return filepath.Join(s.cfg.CacheDir, "server.pid")
}

// readPID returns the persisted PID. Missing, empty, or garbled files all
// read as "no record"; garbled files are removed.
func (s *Supervisor) readPID() (int32, bool) {
	b, err := os.ReadFile(s.pidFile())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		s.clearPID()
		return 0, false
	}
	return int32(pid), true
}

func (s *Supervisor) writePID(pid int) error {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.pidFile(), []byte(strconv.Itoa(pid)), 0o644)
}

func (s *Supervisor) clearPID() {
	_ = os.Remove(s.pidFile())
}

// binaryToken is the name fragment a trusted PID's process must carry.
func (s *Supervisor) binaryToken() string {
	base := filepath.Base(s.cfg.BinaryPath)
	return strings.ToLower(strings.TrimSuffix(base, ".exe"))
}

// pidAlive reports whether the persisted PID names a live process matching
// the expected server binary, deleting the record when it does not.
func (s *Supervisor) pidAlive() bool {
	pid, ok := s.readPID()
	if !ok {
		return false
	}
	name, alive := procutil.Name(pid)
	if !alive {
		s.log.Debug().Int32("pid", pid).Msg("stale pid record, clearing")
		s.clearPID()
		return false
	}
	if !strings.Contains(strings.ToLower(name), s.binaryToken()) {
		s.log.Warn().Int32("pid", pid).Str("name", name).Msg("pid record names a foreign process, clearing")
		s.clearPID()
		return false
	}
	return true
}

// IsRunning reports whether the server is up: a validated PID record, or a
// responding health endpoint for instances started outside this supervisor.
func (s *Supervisor) IsRunning() bool {
	if s.pidAlive() {
		return true
	}
	return s.isHealthy(healthProbeTimeout)
}

// Start launches the server for def. Idempotent: a running server is a no-op
// success. In background mode it redirects output to a per-model log file,
// persists the PID, and blocks until the health endpoint reports ready or the
// configured timeout tears the process down. Foreground mode persists the PID
// and returns immediately.
func (s *Supervisor) Start(def types.ModelDefinition, modelPath string, opts StartOptions, available []types.AvailableModel) error {
	if s.IsRunning() {
		s.log.Info().Str("model", def.ID).Msg("server already running")
		return nil
	}
	if _, err := os.Stat(modelPath); err != nil {
		return ErrModelFile(modelPath)
	}

	args := s.buildArgs(def, modelPath, opts.UseCache, opts.ExtraArgs, available)
	cmd := exec.Command(s.cfg.BinaryPath, args...)

	if opts.Background {
		if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		logPath := filepath.Join(s.cfg.LogDir, def.ID+".log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open server log: %w", err)
		}
		cmd.Stdout = f
		cmd.Stderr = f
		defer f.Close()
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	s.setState(StateStarting)
	if err := cmd.Start(); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("start %s: %w", s.cfg.BinaryPath, err)
	}
	pid := cmd.Process.Pid
	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()

	if err := s.writePID(pid); err != nil {
		_ = procutil.TerminateTree(int32(pid), stopGrace)
		s.setState(StateFailed)
		return fmt.Errorf("persist pid: %w", err)
	}
	s.log.Info().Str("model", def.ID).Int("pid", pid).Bool("background", opts.Background).Msg("server started")

	if !opts.Background {
		// No health gate in foreground mode; the process is handed to the
		// caller as ready.
		s.setState(StateReady)
		return nil
	}

	if err := s.WaitForReady(s.cfg.StartTimeout.Std()); err != nil {
		s.log.Error().Str("model", def.ID).Int("pid", pid).Msg("server never became healthy, tearing down")
		_ = procutil.TerminateTree(int32(pid), stopGrace)
		s.clearPID()
		s.setState(StateStopped)
		return err
	}
	s.setState(StateReady)
	s.log.Info().Str("model", def.ID).Int("pid", pid).Msg("server ready")
	return nil
}

// Stop terminates the server. With no PID record it falls back to whichever
// process owns the configured port. saveCache=true sends a graceful terminate
// to the tracked process only; saveCache=false takes down the whole
// descendant tree so no orphans survive. The PID record is cleared on
// confirmed stop.
func (s *Supervisor) Stop(saveCache bool) error {
	s.setState(StateStopping)
	pid, ok := s.readPID()
	if !ok {
		owner, found := procutil.PidListeningOn(uint32(s.cfg.Port))
		if !found {
			s.setState(StateStopped)
			return nil
		}
		s.log.Info().Int32("pid", owner).Int("port", s.cfg.Port).Msg("no pid record, stopping port owner")
		pid = owner
	}

	var err error
	if saveCache {
		err = procutil.Terminate(pid, stopGrace)
	} else {
		err = procutil.TerminateTree(pid, stopGrace)
	}
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("stop server: %w", err)
	}
	s.clearPID()
	s.setState(StateStopped)
	s.log.Info().Int32("pid", pid).Bool("save_cache", saveCache).Msg("server stopped")
	return nil
}

// Shutdown is the process-teardown hook: when auto-shutdown is configured it
// stops a running server with the cache preserved.
func (s *Supervisor) Shutdown() {
	if !s.cfg.AutoShutdown {
		return
	}
	if !s.IsRunning() {
		return
	}
	s.log.Info().Msg("auto-shutdown: stopping server")
	if err := s.Stop(true); err != nil {
		s.log.Error().Err(err).Msg("auto-shutdown stop failed")
	}
}
