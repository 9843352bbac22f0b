package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Paths resolves the well-known directories the manager works with. It is
// constructed once and passed to whoever needs it, so there is no hidden
// process-wide platform state.
type Paths struct {
	Home string
	OS   string // runtime.GOOS unless overridden in tests
}

// NewPaths builds a Paths rooted at the current user's home directory.
func NewPaths() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, err
	}
	return Paths{Home: home, OS: runtime.GOOS}, nil
}

func (p Paths) ModelsDir() string { return filepath.Join(p.Home, "models") }

func (p Paths) CacheDir() string {
	if p.OS == "darwin" {
		return filepath.Join(p.Home, "Library", "Caches", "local-ai")
	}
	return filepath.Join(p.Home, ".cache", "local-ai")
}

func (p Paths) LogDir() string {
	if p.OS == "darwin" {
		return filepath.Join(p.Home, "Library", "Logs", "local-ai")
	}
	return filepath.Join(p.Home, ".local", "log")
}

func (p Paths) ConfigDir() string {
	if p.OS == "darwin" {
		return filepath.Join(p.Home, "Library", "Application Support", "local-ai")
	}
	return filepath.Join(p.Home, ".config", "local-ai")
}

func (p Paths) ConfigFile() string { return filepath.Join(p.ConfigDir(), "local-ai-config.json") }

// ServerBinary returns the first llama-server binary found in the usual
// install locations, falling back to resolution via PATH.
func (p Paths) ServerBinary() string {
	name := "llama-server"
	if p.OS == "windows" {
		name = "llama-server.exe"
	}
	candidates := []string{
		filepath.Join(p.Home, "bin", name),
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/usr/bin", name),
	}
	if p.OS == "darwin" {
		candidates = append(candidates, filepath.Join("/opt/homebrew/bin", name))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return name
}

// ActivityLogDirs lists candidate directories for the game launcher's log
// files, most specific first.
func (p Paths) ActivityLogDirs() []string {
	switch p.OS {
	case "darwin":
		return []string{filepath.Join(p.Home, "Library", "Application Support", "Steam", "logs")}
	case "windows":
		return []string{
			filepath.Join(p.Home, "scoop", "apps", "steam", "current", "logs"),
			`C:\Program Files (x86)\Steam\logs`,
			`C:\Program Files\Steam\logs`,
		}
	default:
		return []string{
			filepath.Join(p.Home, ".local", "share", "Steam", "logs"),
			filepath.Join(p.Home, ".var", "app", "com.valvesoftware.Steam", ".local", "share", "Steam", "logs"),
		}
	}
}

// ExpandHome expands a leading '~' to the Paths home directory.
func (p Paths) ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if path == "~" {
		return p.Home
	}
	return filepath.Join(p.Home, strings.TrimPrefix(path, "~/"))
}
