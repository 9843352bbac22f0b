package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

const generateTimeout = 300 * time.Second

// isHealthy probes GET /health; 2xx means ready.
func (s *Supervisor) isHealthy(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitForReady polls the health endpoint at a fixed interval until it reports
// ready or the timeout elapses.
func (s *Supervisor) WaitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if s.isHealthy(healthProbeTimeout) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrStartTimeout(s.cfg.BaseURL())
		}
		time.Sleep(healthPollInterval)
	}
}

// Status queries the health and props endpoints. A failed health request
// yields the locally known running flag plus an error string, never an error
// return.
func (s *Supervisor) Status() types.ServerStatus {
	ctx, cancel := context.WithTimeout(context.Background(), statusProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL()+"/health", nil)
	if err != nil {
		return types.ServerStatus{Running: s.pidAlive(), Err: err.Error()}
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return types.ServerStatus{Running: s.pidAlive(), Err: err.Error()}
	}
	defer resp.Body.Close()

	st := types.ServerStatus{
		Running: true,
		Healthy: resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if !st.Healthy {
		return st
	}
	if props, ok := s.fetchProps(); ok {
		st.Model = props.ModelAlias
		if st.Model == "" && props.ModelPath != "" {
			st.Model = filepath.Base(props.ModelPath)
		}
		st.Build = props.BuildInfo
	}
	return st
}

func (s *Supervisor) fetchProps() (types.PropsResponse, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), statusProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL()+"/props", nil)
	if err != nil {
		return types.PropsResponse{}, false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return types.PropsResponse{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.PropsResponse{}, false
	}
	var props types.PropsResponse
	if err := json.NewDecoder(resp.Body).Decode(&props); err != nil {
		return types.PropsResponse{}, false
	}
	return props, true
}

// Generate passes a chat completion request through to the server. It fails
// fast when the server is down; HTTP errors surface to the caller.
func (s *Supervisor) Generate(ctx context.Context, req types.ChatRequest) (string, error) {
	if !s.IsRunning() {
		return "", ErrNotRunning()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, generateTimeout)
		defer cancel()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL()+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llama server http error: %s: %s", resp.Status, string(b))
	}
	var chat types.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", nil
	}
	choice := chat.Choices[0]
	if choice.Message != nil {
		return choice.Message.Content, nil
	}
	return choice.Text, nil
}
