package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/internal/supervisor"
	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

type fakeService struct {
	status   types.ServerStatus
	models   []types.AvailableModel
	sessions []types.GameSession

	generated string
	genErr    error
	lastReq   types.ChatRequest
}

func (f *fakeService) Status() types.ServerStatus     { return f.status }
func (f *fakeService) Models() []types.AvailableModel { return f.models }
func (f *fakeService) Sessions() []types.GameSession  { return f.sessions }
func (f *fakeService) Generate(_ context.Context, req types.ChatRequest) (string, error) {
	f.lastReq = req
	return f.generated, f.genErr
}

func doRequest(t *testing.T, svc Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewRouter(svc, zerolog.Nop()).ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	svc := &fakeService{status: types.ServerStatus{Running: true, Healthy: true, Model: "m1", Build: "b7"}}
	rec := doRequest(t, svc, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got types.ServerStatus
	decodeBody(t, rec, &got)
	if !got.Running || got.Model != "m1" || got.Build != "b7" {
		t.Fatalf("status = %+v", got)
	}
}

func TestModelsEndpoint(t *testing.T) {
	svc := &fakeService{models: []types.AvailableModel{
		{ID: "m1", Path: "/m/m1.gguf", Def: types.ModelDefinition{ID: "m1", Name: "Model One"}},
	}}
	rec := doRequest(t, svc, http.MethodGet, "/models", "")
	var got []types.AvailableModel
	decodeBody(t, rec, &got)
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("models = %+v", got)
	}
}

func TestSessionsEndpointNilIsEmptyArray(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/sessions", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("body = %q, want empty array", body)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	svc := &fakeService{sessions: []types.GameSession{{PID: 4242, Name: "game.exe"}}}
	rec := doRequest(t, svc, http.MethodGet, "/sessions", "")
	var got []types.GameSession
	decodeBody(t, rec, &got)
	if len(got) != 1 || got[0].PID != 4242 {
		t.Fatalf("sessions = %+v", got)
	}
}

func TestChatCompletionsBadBody(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodPost, "/v1/chat/completions", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rec.Code)
	}
	var got map[string]string
	decodeBody(t, rec, &got)
	if got["error"] == "" {
		t.Fatalf("error payload missing: %v", got)
	}
}

func TestChatCompletionsServerDown(t *testing.T) {
	svc := &fakeService{genErr: supervisor.ErrNotRunning()}
	rec := doRequest(t, svc, http.MethodPost, "/v1/chat/completions",
		`{"messages": [{"role": "user", "content": "hi"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestChatCompletionsUpstreamFailure(t *testing.T) {
	svc := &fakeService{genErr: context.DeadlineExceeded}
	rec := doRequest(t, svc, http.MethodPost, "/v1/chat/completions",
		`{"messages": [{"role": "user", "content": "hi"}]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestChatCompletionsSuccess(t *testing.T) {
	svc := &fakeService{generated: "pong"}
	rec := doRequest(t, svc, http.MethodPost, "/v1/chat/completions",
		`{"messages": [{"role": "user", "content": "ping"}], "max_tokens": 8}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	var got types.GenerateResponse
	decodeBody(t, rec, &got)
	if got.Content != "pong" {
		t.Fatalf("content = %q", got.Content)
	}
	if svc.lastReq.MaxTokens != 8 || len(svc.lastReq.Messages) != 1 {
		t.Fatalf("request not passed through: %+v", svc.lastReq)
	}
}

func TestMetricsExposed(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}
