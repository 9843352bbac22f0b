package watcher

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/internal/config"
)

// AgentKind selects which agent name gets routed as the default.
type AgentKind string

const (
	AgentLocal AgentKind = "local"
	AgentCloud AgentKind = "cloud"
)

// AgentSwitcher rewrites the default_agent field of the external agent-routing
// config. The file is written only when the value actually changes; a missing
// file is a no-op.
type AgentSwitcher struct {
	cfg config.AgentConfig
	log zerolog.Logger
}

func NewAgentSwitcher(cfg config.AgentConfig, log zerolog.Logger) *AgentSwitcher {
	return &AgentSwitcher{cfg: cfg, log: log}
}

func (a *AgentSwitcher) Switch(kind AgentKind) error {
	path := a.cfg.Path()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}

	name := a.cfg.LocalName
	if kind == AgentCloud {
		name = a.cfg.CloudName
	}
	if cur, _ := data["default_agent"].(string); cur == name {
		return nil
	}
	data["default_agent"] = name

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return err
	}
	a.log.Info().Str("agent", name).Msg("switched default agent")
	return nil
}
