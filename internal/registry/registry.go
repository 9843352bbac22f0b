package registry

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

// Registry resolves declared model definitions to GGUF files on disk. A scan
// builds a complete snapshot and swaps it in atomically, so readers never see
// a half-built view.
type Registry struct {
	defs         []types.ModelDefinition
	dir          string
	cacheDir     string
	defaultModel string
	log          zerolog.Logger

	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	byID    map[string]types.AvailableModel
	ordered []types.AvailableModel // declaration order
}

// New builds a Registry and performs the initial scan.
func New(defs []types.ModelDefinition, modelsDir, cacheDir, defaultModel string, log zerolog.Logger) *Registry {
	r := &Registry{
		defs:         defs,
		dir:          modelsDir,
		cacheDir:     cacheDir,
		defaultModel: defaultModel,
		log:          log,
	}
	r.Refresh()
	return r
}

// Refresh rescans the models directory and atomically replaces the snapshot.
func (r *Registry) Refresh() {
	r.snap.Store(r.scan())
}

// scan resolves each definition, in declaration order, to the first matching
// *.gguf file in the models directory (non-recursive). A file claimed by an
// earlier definition is not offered to later ones. A missing directory yields
// an empty snapshot, not an error.
func (r *Registry) scan() *snapshot {
	s := &snapshot{byID: make(map[string]types.AvailableModel)}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn().Err(err).Str("dir", r.dir).Msg("models dir unreadable")
		}
		return s
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			names = append(names, e.Name())
		}
	}
	claimed := make(map[string]struct{}, len(names))
	for _, def := range r.defs {
		name, ok := r.findMatch(def, names, claimed)
		if !ok {
			continue
		}
		claimed[name] = struct{}{}
		abs, err := filepath.Abs(filepath.Join(r.dir, name))
		if err != nil {
			abs = filepath.Join(r.dir, name)
		}
		am := types.AvailableModel{ID: def.ID, Def: def, Path: abs}
		s.byID[def.ID] = am
		s.ordered = append(s.ordered, am)
	}
	return s
}

func (r *Registry) findMatch(def types.ModelDefinition, names []string, claimed map[string]struct{}) (string, bool) {
	if def.Filename != "" {
		if _, taken := claimed[def.Filename]; taken {
			return "", false
		}
		for _, n := range names {
			if n == def.Filename {
				return n, true
			}
		}
		return "", false
	}
	re, err := regexp.Compile("(?i)" + def.FilenamePattern)
	if err != nil {
		r.log.Warn().Err(err).Str("model", def.ID).Msg("invalid filename pattern, definition skipped")
		return "", false
	}
	for _, n := range names {
		if _, taken := claimed[n]; taken {
			continue
		}
		if re.MatchString(n) {
			return n, true
		}
	}
	return "", false
}

// Available returns resolved models in declaration order.
func (r *Registry) Available() []types.AvailableModel {
	s := r.snap.Load()
	out := make([]types.AvailableModel, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// ByID returns the resolved model for id, if any.
func (r *Registry) ByID(id string) (types.AvailableModel, bool) {
	s := r.snap.Load()
	am, ok := s.byID[id]
	return am, ok
}

// IsAvailable reports whether id resolved to a file in the last scan.
func (r *Registry) IsAvailable(id string) bool {
	_, ok := r.ByID(id)
	return ok
}

// AutoSelect picks the configured default model when available; otherwise the
// available model with the lowest priority, ties broken by declaration order.
func (r *Registry) AutoSelect() (types.AvailableModel, bool) {
	s := r.snap.Load()
	if r.defaultModel != "" {
		if am, ok := s.byID[r.defaultModel]; ok {
			return am, true
		}
	}
	if len(s.ordered) == 0 {
		return types.AvailableModel{}, false
	}
	best := s.ordered[0]
	for _, am := range s.ordered[1:] {
		if am.Def.Priority < best.Def.Priority {
			best = am
		}
	}
	return best, true
}

// CachePath returns the prompt-cache file path for a model id.
func (r *Registry) CachePath(id string) string {
	return filepath.Join(r.cacheDir, id+".cache")
}
