package types

// ModelDefinition describes a GGUF model and the launch parameters used when
// serving it. Definitions come from configuration and are immutable for the
// lifetime of a run; the registry resolves them against files on disk.
type ModelDefinition struct {
	// Stable identifier for the model.
	// example: qwen3-8b
	ID string `json:"id" yaml:"id" toml:"id"`
	// Human-friendly name.
	Name string `json:"name" yaml:"name" toml:"name"`
	// Optional free-form description.
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`

	// Exact filename to match in the models directory.
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty" toml:"filename,omitempty"`
	// Case-insensitive regex matched against filenames when Filename is unset.
	FilenamePattern string `json:"filename_pattern,omitempty" yaml:"filename_pattern,omitempty" toml:"filename_pattern,omitempty"`

	// llama-server sizing.
	CtxSize    int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	NGPULayers int `json:"n_gpu_layers" yaml:"n_gpu_layers" toml:"n_gpu_layers"`
	Threads    int `json:"threads" yaml:"threads" toml:"threads"`
	BatchSize  int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	UBatchSize int `json:"ubatch_size" yaml:"ubatch_size" toml:"ubatch_size"`

	// Memory and scheduling flags. FlashAttn, MLock, and ContBatching are on
	// unless the definition turns them off; NoMMap is off (mmap on) by default.
	FlashAttn    *bool `json:"flash_attn,omitempty" yaml:"flash_attn,omitempty" toml:"flash_attn,omitempty"`
	MLock        *bool `json:"mlock,omitempty" yaml:"mlock,omitempty" toml:"mlock,omitempty"`
	NoMMap       bool  `json:"no_mmap" yaml:"no_mmap" toml:"no_mmap"`
	ContBatching *bool `json:"cont_batching,omitempty" yaml:"cont_batching,omitempty" toml:"cont_batching,omitempty"`

	// KV cache quantization types (f16, q8_0, q4_0); empty means server default.
	CacheTypeK string `json:"cache_type_k,omitempty" yaml:"cache_type_k,omitempty" toml:"cache_type_k,omitempty"`
	CacheTypeV string `json:"cache_type_v,omitempty" yaml:"cache_type_v,omitempty" toml:"cache_type_v,omitempty"`

	// Sampling parameters.
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK        int     `json:"top_k" yaml:"top_k" toml:"top_k"`

	// Priority for auto-selection; lower wins.
	Priority int `json:"priority" yaml:"priority" toml:"priority"`

	// Speculative decoding: id of the draft model definition, plus the number
	// of draft tokens and minimum acceptance probability passed to the server.
	DraftModel string  `json:"draft_model,omitempty" yaml:"draft_model,omitempty" toml:"draft_model,omitempty"`
	DraftMax   int     `json:"draft_max,omitempty" yaml:"draft_max,omitempty" toml:"draft_max,omitempty"`
	DraftPMin  float64 `json:"draft_p_min,omitempty" yaml:"draft_p_min,omitempty" toml:"draft_p_min,omitempty"`

	// Tags for filtering and grouping.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
}

// FlashAttnOn reports the effective flash-attention setting.
func (d ModelDefinition) FlashAttnOn() bool { return d.FlashAttn == nil || *d.FlashAttn }

// MLockOn reports the effective mlock setting.
func (d ModelDefinition) MLockOn() bool { return d.MLock == nil || *d.MLock }

// ContBatchingOn reports the effective continuous-batching setting.
func (d ModelDefinition) ContBatchingOn() bool { return d.ContBatching == nil || *d.ContBatching }

// AvailableModel pairs a definition with the file it resolved to. Derived by
// a registry scan, never persisted.
type AvailableModel struct {
	ID   string          `json:"id"`
	Def  ModelDefinition `json:"def"`
	Path string          `json:"path"`
}

// GameSession is a tracked foreground process detected from the activity log.
type GameSession struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
}
