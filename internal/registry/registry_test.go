package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("gguf"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestScanResolvesDisjointPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "qwen3-8b-q4.gguf", "phi4-mini-q8.GGUF", "notes.txt")

	defs := []types.ModelDefinition{
		{ID: "qwen", Filename: "qwen3-8b-q4.gguf"},
		{ID: "phi", FilenamePattern: `phi4.*\.gguf`},
		{ID: "missing", Filename: "nope.gguf"},
	}
	r := New(defs, dir, dir, "", zerolog.Nop())

	got := r.Available()
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved models, got %d", len(got))
	}
	if got[0].ID != "qwen" || got[1].ID != "phi" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if !filepath.IsAbs(got[0].Path) {
		t.Fatalf("path not absolute: %s", got[0].Path)
	}
	if r.IsAvailable("missing") {
		t.Fatalf("missing should not resolve")
	}
}

func TestScanPatternIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Qwen3-8B-Q4.gguf")
	defs := []types.ModelDefinition{{ID: "qwen", FilenamePattern: "qwen3"}}
	r := New(defs, dir, dir, "", zerolog.Nop())
	if !r.IsAvailable("qwen") {
		t.Fatalf("case-insensitive pattern did not match")
	}
}

func TestScanMissingDirYieldsEmpty(t *testing.T) {
	defs := []types.ModelDefinition{{ID: "a", Filename: "a.gguf"}}
	r := New(defs, filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir(), "", zerolog.Nop())
	if len(r.Available()) != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestScanFirstDeclarationClaimsFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "shared.gguf")
	defs := []types.ModelDefinition{
		{ID: "first", FilenamePattern: "shared"},
		{ID: "second", FilenamePattern: "shared"},
	}
	r := New(defs, dir, dir, "", zerolog.Nop())
	if !r.IsAvailable("first") {
		t.Fatalf("first declaration should resolve")
	}
	if r.IsAvailable("second") {
		t.Fatalf("second declaration must not claim an already-resolved file")
	}
}

func TestScanInvalidPatternSkipsDefinition(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.gguf")
	defs := []types.ModelDefinition{
		{ID: "bad", FilenamePattern: "("},
		{ID: "good", FilenamePattern: "a"},
	}
	r := New(defs, dir, dir, "", zerolog.Nop())
	if r.IsAvailable("bad") {
		t.Fatalf("invalid pattern should not resolve")
	}
	if !r.IsAvailable("good") {
		t.Fatalf("later definitions should still resolve")
	}
}

func TestAutoSelectPrefersConfiguredDefault(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "big.gguf", "small.gguf")
	defs := []types.ModelDefinition{
		{ID: "big", Filename: "big.gguf", Priority: 1},
		{ID: "small", Filename: "small.gguf", Priority: 9},
	}
	r := New(defs, dir, dir, "small", zerolog.Nop())
	am, ok := r.AutoSelect()
	if !ok || am.ID != "small" {
		t.Fatalf("expected configured default, got %+v ok=%v", am, ok)
	}
}

func TestAutoSelectFallsBackToPriority(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.gguf", "b.gguf", "c.gguf")
	defs := []types.ModelDefinition{
		{ID: "a", Filename: "a.gguf", Priority: 5},
		{ID: "b", Filename: "b.gguf", Priority: 2},
		{ID: "c", Filename: "c.gguf", Priority: 2},
	}
	// default not on disk, so priority order decides; tie goes to declaration order
	r := New(defs, dir, dir, "gone", zerolog.Nop())
	am, ok := r.AutoSelect()
	if !ok || am.ID != "b" {
		t.Fatalf("expected b, got %+v ok=%v", am, ok)
	}
}

func TestAutoSelectEmptyRegistry(t *testing.T) {
	r := New(nil, t.TempDir(), t.TempDir(), "x", zerolog.Nop())
	if _, ok := r.AutoSelect(); ok {
		t.Fatalf("expected no selection from empty registry")
	}
}

func TestRefreshPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	defs := []types.ModelDefinition{{ID: "a", Filename: "a.gguf"}}
	r := New(defs, dir, dir, "", zerolog.Nop())
	if r.IsAvailable("a") {
		t.Fatalf("unexpectedly available before file exists")
	}
	writeFiles(t, dir, "a.gguf")
	r.Refresh()
	if !r.IsAvailable("a") {
		t.Fatalf("expected a after refresh")
	}
}

func TestCachePath(t *testing.T) {
	cache := t.TempDir()
	r := New(nil, t.TempDir(), cache, "", zerolog.Nop())
	want := filepath.Join(cache, "m1.cache")
	if got := r.CachePath("m1"); got != want {
		t.Fatalf("cache path %q, want %q", got, want)
	}
}
