// Package watcher correlates log-based game launch detection with OS-level
// exit detection and drives the supervisor through launch/exit hooks.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/internal/config"
	"github.com/jamesonBradfield/local-ai-manager/internal/metrics"
	"github.com/jamesonBradfield/local-ai-manager/internal/procutil"
	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

const exitPollInterval = 500 * time.Millisecond

type eventKind int

const (
	evLaunch eventKind = iota
	evExit
)

type event struct {
	kind eventKind
	pid  int32
}

// Hooks are invoked from the coordinator goroutine, one at a time. OnExit
// receives the number of sessions still alive after this one was removed.
type Hooks struct {
	OnLaunch func(pid int32, name string)
	OnExit   func(pid int32, remaining int)
}

// Monitor tails the activity log and tracks game sessions. All session
// mutations and hook invocations happen on a single coordinator goroutine fed
// by an event queue; launch events come from the tailer, exit events from one
// blocking waiter goroutine per session.
type Monitor struct {
	logPath string
	hooks   Hooks
	log     zerolog.Logger

	events chan event

	mu       sync.Mutex
	sessions map[int32]types.GameSession

	// Process-table seams, overridden in tests.
	procName func(int32) (string, bool)
	waitExit func(context.Context, int32) error
}

func NewMonitor(logPath string, hooks Hooks, log zerolog.Logger) *Monitor {
	return &Monitor{
		logPath:  logPath,
		hooks:    hooks,
		log:      log,
		events:   make(chan event, 64),
		sessions: make(map[int32]types.GameSession),
		procName: procutil.Name,
		waitExit: func(ctx context.Context, pid int32) error {
			return procutil.WaitForExit(ctx, pid, exitPollInterval)
		},
	}
}

// FindLogFile resolves the activity log: the configured directory first, then
// the platform's candidate launcher directories.
func FindLogFile(cfg config.WatcherConfig, paths config.Paths) (string, error) {
	var dirs []string
	if cfg.LogsDir != "" {
		dirs = append(dirs, paths.ExpandHome(cfg.LogsDir))
	}
	dirs = append(dirs, paths.ActivityLogDirs()...)
	for _, dir := range dirs {
		candidate := filepath.Join(dir, cfg.LogFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("activity log %q not found in %d candidate dirs", cfg.LogFile, len(dirs))
}

// Sessions returns a snapshot of the tracked sessions.
func (m *Monitor) Sessions() []types.GameSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.GameSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Run drains pre-existing log content, starts the file watch, and processes
// events until ctx is canceled. Outstanding exit waiters unwind with ctx.
func (m *Monitor) Run(ctx context.Context) error {
	tailer := NewTailer(m.logPath, func(pid int32) {
		m.enqueue(ctx, event{kind: evLaunch, pid: pid})
	}, m.log)
	if err := tailer.Watch(ctx); err != nil {
		return fmt.Errorf("watch %s: %w", m.logPath, err)
	}
	m.log.Info().Str("log", m.logPath).Msg("activity monitor running")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.events:
			m.dispatch(ctx, ev)
		}
	}
}

// enqueue delivers an event to the coordinator. Producers run on their own
// goroutines, so a full queue blocks them rather than losing the event; ctx
// unwinds the wait on shutdown.
func (m *Monitor) enqueue(ctx context.Context, ev event) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}

// dispatch runs one handler. A fault in a handler is logged, never allowed to
// take the monitor down.
func (m *Monitor) dispatch(ctx context.Context, ev event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Int32("pid", ev.pid).Msg("event handler fault")
		}
	}()
	switch ev.kind {
	case evLaunch:
		m.handleLaunch(ctx, ev.pid)
	case evExit:
		m.handleExit(ev.pid)
	}
}

func (m *Monitor) handleLaunch(ctx context.Context, pid int32) {
	m.mu.Lock()
	_, dup := m.sessions[pid]
	m.mu.Unlock()
	if dup {
		return
	}
	name, alive := m.procName(pid)
	if !alive {
		// Launch line raced with process exit; nothing to track.
		m.log.Debug().Int32("pid", pid).Msg("detected pid gone before verification")
		return
	}
	m.mu.Lock()
	m.sessions[pid] = types.GameSession{PID: pid, Name: name}
	active := len(m.sessions)
	m.mu.Unlock()
	metrics.GameLaunchesTotal.Inc()
	metrics.GamesActive.Set(float64(active))
	m.log.Info().Int32("pid", pid).Str("name", name).Int("active", active).Msg("game launched")

	go func() {
		if err := m.waitExit(ctx, pid); err != nil {
			return // shutdown, not a process exit
		}
		m.enqueue(ctx, event{kind: evExit, pid: pid})
	}()

	if m.hooks.OnLaunch != nil {
		m.hooks.OnLaunch(pid, name)
	}
}

func (m *Monitor) handleExit(pid int32) {
	m.mu.Lock()
	_, tracked := m.sessions[pid]
	if tracked {
		delete(m.sessions, pid)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()
	if !tracked {
		return
	}
	metrics.GameExitsTotal.Inc()
	metrics.GamesActive.Set(float64(remaining))
	m.log.Info().Int32("pid", pid).Int("remaining", remaining).Msg("game closed")

	if m.hooks.OnExit != nil {
		m.hooks.OnExit(pid, remaining)
	}
}
