package watcher

import (
	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/internal/config"
	"github.com/jamesonBradfield/local-ai-manager/internal/metrics"
	"github.com/jamesonBradfield/local-ai-manager/internal/procutil"
	"github.com/jamesonBradfield/local-ai-manager/internal/registry"
	"github.com/jamesonBradfield/local-ai-manager/internal/supervisor"
)

// Orchestrator reconciles the supervisor against the active game set: a
// launch hands compute to the game (stop server, clear memory hogs, route
// agents to cloud), the last exit hands it back (restore model, route local).
// Its hooks run only on the monitor's coordinator goroutine, so lastModel
// needs no lock.
type Orchestrator struct {
	cfg          config.WatcherConfig
	defaultModel string
	sup          *supervisor.Supervisor
	reg          *registry.Registry
	agent        *AgentSwitcher
	log          zerolog.Logger

	lastModel string

	// kill is the allow-list process reaper, overridden in tests.
	kill func([]string) []string
}

func NewOrchestrator(cfg config.WatcherConfig, defaultModel string, sup *supervisor.Supervisor, reg *registry.Registry, agent *AgentSwitcher, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		defaultModel: defaultModel,
		sup:          sup,
		reg:          reg,
		agent:        agent,
		log:          log,
		kill:         procutil.KillByNames,
	}
}

// Hooks wires the orchestrator into a Monitor.
func (o *Orchestrator) Hooks() Hooks {
	return Hooks{OnLaunch: o.onGameLaunch, OnExit: o.onGameExit}
}

func (o *Orchestrator) onGameLaunch(pid int32, name string) {
	if !o.cfg.StopOnLaunch {
		return
	}
	if !o.sup.IsRunning() {
		return
	}

	// Capture the active model for restoration before the server goes away.
	// A second launch during an in-flight stop finds the server down and
	// keeps the id captured here.
	st := o.sup.Status()
	if st.Model != "" {
		o.lastModel = st.Model
	} else {
		o.lastModel = o.defaultModel
	}

	o.log.Info().Str("model", o.lastModel).Bool("save_cache", o.cfg.SaveCacheOnStop).Msg("stopping server for game")
	metrics.ServerStopsTotal.Inc()
	if err := o.sup.Stop(o.cfg.SaveCacheOnStop); err != nil {
		o.log.Error().Err(err).Msg("stop for game failed")
	}

	if killed := o.kill(o.cfg.ProcessesToKill); len(killed) > 0 {
		o.log.Info().Strs("killed", killed).Msg("terminated memory-heavy processes")
	}

	if err := o.agent.Switch(AgentCloud); err != nil {
		o.log.Warn().Err(err).Msg("agent switch to cloud failed")
	}
}

func (o *Orchestrator) onGameExit(pid int32, remaining int) {
	if !o.cfg.RestartAfterExit {
		return
	}
	if remaining > 0 {
		o.log.Info().Int("remaining", remaining).Msg("games still running, not restoring")
		return
	}

	o.restore()

	if err := o.agent.Switch(AgentLocal); err != nil {
		o.log.Warn().Err(err).Msg("agent switch to local failed")
	}
}

// restore brings the server back with the captured model when it is still on
// disk, otherwise whatever the registry auto-selects.
func (o *Orchestrator) restore() {
	o.reg.Refresh()

	id := o.lastModel
	if id == "" {
		id = o.cfg.RestoreModel
	}
	if id == "" {
		id = o.defaultModel
	}
	am, ok := o.reg.ByID(id)
	if !ok {
		am, ok = o.reg.AutoSelect()
	}
	if !ok {
		o.log.Warn().Msg("no models available to restore")
		return
	}

	o.log.Info().Str("model", am.ID).Msg("all games closed, restoring server")
	metrics.ServerStartsTotal.Inc()
	opts := supervisor.StartOptions{Background: true, UseCache: true}
	if err := o.sup.Start(am.Def, am.Path, opts, o.reg.Available()); err != nil {
		metrics.ServerStartFailures.Inc()
		o.log.Error().Err(err).Str("model", am.ID).Msg("restore failed")
	}
}
