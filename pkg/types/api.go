package types

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the server's /v1/chat/completions.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// ChatChoice is a single completion choice. Newer llama-server builds return
// Message; some legacy builds return a bare Text field instead.
type ChatChoice struct {
	Message *ChatMessage `json:"message,omitempty"`
	Text    string       `json:"text,omitempty"`
}

// ChatResponse is the subset of the chat completion response we consume.
type ChatResponse struct {
	Choices []ChatChoice `json:"choices"`
}

// PropsResponse is the subset of GET /props we consume.
type PropsResponse struct {
	ModelAlias string `json:"model_alias"`
	ModelPath  string `json:"model_path"`
	BuildInfo  string `json:"build_info"`
}

// ServerStatus reports the supervisor's view of the inference server.
type ServerStatus struct {
	Running bool   `json:"running"`
	Healthy bool   `json:"healthy"`
	Model   string `json:"model,omitempty"`
	Build   string `json:"build,omitempty"`
	Err     string `json:"error,omitempty"`
}

// GenerateResponse wraps the extracted completion content.
type GenerateResponse struct {
	Content string `json:"content"`
}
