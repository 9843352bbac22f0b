package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

// ServerConfig holds everything the supervisor needs to launch and reach the
// inference server.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host" toml:"host"`
	Port         int    `json:"port" yaml:"port" toml:"port"`
	BinaryPath   string `json:"binary_path" yaml:"binary_path" toml:"binary_path"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CacheDir     string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	LogDir       string `json:"log_dir" yaml:"log_dir" toml:"log_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	// AutoShutdown stops the server (cache preserved) on manager exit.
	AutoShutdown bool `json:"auto_shutdown" yaml:"auto_shutdown" toml:"auto_shutdown"`
	// StartTimeout bounds the health-gated readiness wait on background start.
	StartTimeout Duration `json:"start_timeout" yaml:"start_timeout" toml:"start_timeout"`
}

// BaseURL returns the server's HTTP base URL.
func (c ServerConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// WatcherConfig controls the game activity monitor.
type WatcherConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	LogsDir string `json:"logs_dir" yaml:"logs_dir" toml:"logs_dir"`
	LogFile string `json:"log_file" yaml:"log_file" toml:"log_file"`

	StopOnLaunch     bool   `json:"stop_ai_on_game" yaml:"stop_ai_on_game" toml:"stop_ai_on_game"`
	SaveCacheOnStop  bool   `json:"save_cache_on_stop" yaml:"save_cache_on_stop" toml:"save_cache_on_stop"`
	RestartAfterExit bool   `json:"restart_ai_after_game" yaml:"restart_ai_after_game" toml:"restart_ai_after_game"`
	RestoreModel     string `json:"restore_model,omitempty" yaml:"restore_model,omitempty" toml:"restore_model,omitempty"`

	// Allow-list of process names terminated when a game launches, to free
	// memory alongside the server. Matched by name, never free-form.
	ProcessesToKill []string `json:"processes_to_kill" yaml:"processes_to_kill" toml:"processes_to_kill"`
}

// AgentConfig points at the external agent-routing config file whose
// default_agent field is flipped between local and cloud.
type AgentConfig struct {
	Dir       string `json:"config_dir" yaml:"config_dir" toml:"config_dir"`
	File      string `json:"config_file" yaml:"config_file" toml:"config_file"`
	LocalName string `json:"local_agent_name" yaml:"local_agent_name" toml:"local_agent_name"`
	CloudName string `json:"cloud_agent_name" yaml:"cloud_agent_name" toml:"cloud_agent_name"`
}

// Path returns the absolute path of the agent config file.
func (c AgentConfig) Path() string { return filepath.Join(c.Dir, c.File) }

// AdminConfig configures the optional localhost admin HTTP surface.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

// SystemConfig is the root configuration document.
type SystemConfig struct {
	Version string `json:"version" yaml:"version" toml:"version"`

	Server  ServerConfig  `json:"server" yaml:"server" toml:"server"`
	Watcher WatcherConfig `json:"watcher" yaml:"watcher" toml:"watcher"`
	Agent   AgentConfig   `json:"agent" yaml:"agent" toml:"agent"`
	Admin   AdminConfig   `json:"admin" yaml:"admin" toml:"admin"`

	Models []types.ModelDefinition `json:"models" yaml:"models" toml:"models"`

	Verbose bool `json:"verbose" yaml:"verbose" toml:"verbose"`
}

// Duration marshals as a Go duration string in all three config formats.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error { return d.parse(string(b)) }

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default builds a SystemConfig with platform-derived paths and the original
// behavior defaults (watch enabled, stop on launch, restart after exit).
func Default(p Paths) SystemConfig {
	return SystemConfig{
		Version: "2.0.0",
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			BinaryPath:   p.ServerBinary(),
			ModelsDir:    p.ModelsDir(),
			CacheDir:     p.CacheDir(),
			LogDir:       p.LogDir(),
			StartTimeout: Duration(60 * time.Second),
		},
		Watcher: WatcherConfig{
			Enabled:          true,
			LogFile:          "gameprocess_log.txt",
			StopOnLaunch:     true,
			SaveCacheOnStop:  true,
			RestartAfterExit: true,
			ProcessesToKill:  []string{"chrome", "firefox", "msedge", "discord", "slack", "teams"},
		},
		Agent: AgentConfig{
			Dir:       filepath.Join(filepath.Dir(p.ConfigDir()), "opencode"),
			File:      "oh-my-opencode.json",
			LocalName: "local",
			CloudName: "cloud",
		},
		Admin: AdminConfig{Addr: "127.0.0.1:8765"},
	}
}

// Load reads a configuration file based on its extension.
// Supports .yaml/.yml, .json, and .toml.
func Load(path string) (SystemConfig, error) {
	var cfg SystemConfig
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists, otherwise returns Default(p).
func LoadOrDefault(path string, p Paths) (SystemConfig, error) {
	if path == "" {
		path = p.ConfigFile()
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(p), nil
		}
		return SystemConfig{}, err
	}
	return Load(path)
}

// Save persists cfg as indented JSON, creating parent directories.
func Save(cfg SystemConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// Validate enforces the structural rules the rest of the system assumes.
func (c SystemConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Models))
	for _, def := range c.Models {
		if strings.TrimSpace(def.ID) == "" {
			return fmt.Errorf("model definition with empty id")
		}
		if _, dup := seen[def.ID]; dup {
			return fmt.Errorf("duplicate model id: %s", def.ID)
		}
		seen[def.ID] = struct{}{}
		if def.Filename == "" && def.FilenamePattern == "" {
			return fmt.Errorf("model %s: either filename or filename_pattern must be set", def.ID)
		}
	}
	if c.Server.Port != 0 && (c.Server.Port < 1024 || c.Server.Port > 65535) {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return nil
}
