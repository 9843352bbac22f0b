package supervisor

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

// buildArgs produces the llama-server command line for a definition. The
// result is deterministic: same inputs, same argument order.
func (s *Supervisor) buildArgs(def types.ModelDefinition, modelPath string, useCache bool, extraArgs []string, available []types.AvailableModel) []string {
	args := []string{
		"--model", modelPath,
		"--alias", def.ID,
		"--host", s.cfg.Host,
		"--port", strconv.Itoa(s.cfg.Port),
	}
	if def.CtxSize > 0 {
		args = append(args, "--ctx-size", strconv.Itoa(def.CtxSize))
	}
	if def.NGPULayers > 0 {
		args = append(args, "--n-gpu-layers", strconv.Itoa(def.NGPULayers))
	}
	if def.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(def.Threads))
	}
	if def.BatchSize > 0 {
		args = append(args, "--batch-size", strconv.Itoa(def.BatchSize))
	}
	if def.UBatchSize > 0 {
		args = append(args, "--ubatch-size", strconv.Itoa(def.UBatchSize))
	}
	if def.Temperature > 0 {
		args = append(args, "--temp", formatFloat(def.Temperature))
	}
	if def.TopP > 0 {
		args = append(args, "--top-p", formatFloat(def.TopP))
	}
	if def.TopK > 0 {
		args = append(args, "--top-k", strconv.Itoa(def.TopK))
	}
	if def.CacheTypeK != "" {
		args = append(args, "--cache-type-k", def.CacheTypeK)
	}
	if def.CacheTypeV != "" {
		args = append(args, "--cache-type-v", def.CacheTypeV)
	}
	if def.FlashAttnOn() {
		args = append(args, "--flash-attn")
	}
	if def.MLockOn() {
		args = append(args, "--mlock")
	}
	if def.NoMMap {
		args = append(args, "--no-mmap")
	}
	if def.ContBatchingOn() {
		args = append(args, "--cont-batching")
	}
	if useCache {
		args = append(args, "--prompt-cache", s.cachePath(def.ID))
	}
	args = append(args, s.draftArgs(def, available)...)
	args = append(args, extraArgs...)
	return args
}

// draftArgs resolves the speculative-decoding draft model. An unresolvable
// draft id degrades to running without speculation, never a start failure.
func (s *Supervisor) draftArgs(def types.ModelDefinition, available []types.AvailableModel) []string {
	if def.DraftModel == "" {
		return nil
	}
	var draftPath string
	for _, am := range available {
		if am.ID == def.DraftModel {
			draftPath = am.Path
			break
		}
	}
	if draftPath == "" {
		s.log.Warn().Str("model", def.ID).Str("draft", def.DraftModel).
			Msg("draft model not available, starting without speculative decoding")
		return nil
	}
	args := []string{"--model-draft", draftPath}
	if def.DraftMax > 0 {
		args = append(args, "--draft-max", strconv.Itoa(def.DraftMax))
	}
	if def.DraftPMin > 0 {
		args = append(args, "--draft-p-min", formatFloat(def.DraftPMin))
	}
	return args
}

func (s *Supervisor) cachePath(id string) string {
	return filepath.Join(s.cfg.CacheDir, id+".cache")
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
