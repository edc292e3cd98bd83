package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/services/providers"
	"github.com/upb/persona-router/services/routing"
	"github.com/upb/persona-router/services/session"
)

// stubAdapter answers with a fixed text or error and records the last request
type stubAdapter struct {
	name  string
	text  string
	err   error
	mu    sync.Mutex
	calls int
	last  *providers.InvokeRequest
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Invoke(ctx context.Context, req *providers.InvokeRequest) (*providers.InvokeResponse, error) {
	a.mu.Lock()
	a.calls++
	a.last = req
	a.mu.Unlock()

	if a.err != nil {
		return nil, a.err
	}
	return &providers.InvokeResponse{Text: a.text, Model: req.Model, Provider: a.name, Latency: time.Millisecond}, nil
}

func (a *stubAdapter) lastRequest() *providers.InvokeRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

type testEnv struct {
	router   *routing.Router
	registry *providers.Registry
	sessions *session.Store
	openai   *stubAdapter
	gemini   *stubAdapter
	deepseek *stubAdapter
	mux      *chi.Mux
}

func testPersonas() []models.Persona {
	return []models.Persona{
		{
			Name:    "ALEX",
			Primary: models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o-mini", Timeout: time.Second},
			Backup:  &models.Binding{Vendor: models.VendorGemini, Model: "gemini-2.0-flash"},
		},
		{
			Name:    "TALKME",
			Primary: models.Binding{Vendor: models.VendorGemini, Model: "gemini-2.0-flash", Timeout: time.Second},
			Backup:  &models.Binding{Vendor: models.VendorDeepSeek, Model: "deepseek-chat"},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		registry: providers.NewRegistry(),
		sessions: session.NewStore(100, time.Minute, 10),
		openai:   &stubAdapter{name: "openai", text: "openai reply"},
		gemini:   &stubAdapter{name: "gemini", text: "gemini reply"},
		deepseek: &stubAdapter{name: "deepseek", text: "deepseek reply"},
	}
	require.NoError(t, env.registry.Register(env.openai))
	require.NoError(t, env.registry.Register(env.gemini))
	require.NoError(t, env.registry.Register(env.deepseek))

	router, err := routing.NewRouter(testPersonas(), env.registry)
	require.NoError(t, err)
	env.router = router

	logger := zap.NewNop()
	chat := NewChatHandler(router, env.sessions, "ALEX", logger)
	sessions := NewSessionHandler(router, env.sessions, logger)
	personas := NewPersonaHandler(router, logger)

	mux := chi.NewRouter()
	mux.Post("/api/v1/chat", chat.HandleChat)
	mux.Get("/api/v1/personas", personas.HandleList)
	mux.Get("/api/v1/personas/{name}", personas.HandleGet)
	mux.Get("/api/v1/sessions/{userID}", sessions.HandleGet)
	mux.Delete("/api/v1/sessions/{userID}", sessions.HandleDelete)
	mux.Put("/api/v1/sessions/{userID}/persona", sessions.HandleSetPersona)
	mux.Post("/api/v1/sessions/{userID}/reset", sessions.HandleResetHistory)
	env.mux = mux

	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

// decodeData unwraps the SuccessResponse envelope into out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, "body: %s", w.Body.String())
}
