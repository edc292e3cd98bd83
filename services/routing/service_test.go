package routing

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/services"
	"github.com/upb/persona-router/services/providers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockAdapter is a deterministic Adapter with a call counter
type mockAdapter struct {
	name       string
	reply      string
	err        error
	delay      time.Duration
	panicValue interface{}
	calls      int32
}

func (m *mockAdapter) Name() string {
	return m.name
}

func (m *mockAdapter) Invoke(ctx context.Context, req *providers.InvokeRequest) (*providers.InvokeResponse, error) {
	atomic.AddInt32(&m.calls, 1)

	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.panicValue != nil {
		panic(m.panicValue)
	}
	if m.err != nil {
		return nil, m.err
	}

	return &providers.InvokeResponse{
		Text:     m.reply,
		Model:    req.Model,
		Provider: m.name,
		Raw:      map[string]string{"served": m.name},
	}, nil
}

func (m *mockAdapter) callCount() int {
	return int(atomic.LoadInt32(&m.calls))
}

// recorderStub collects route events
type recorderStub struct {
	mu     sync.Mutex
	events []*models.RouteEvent
}

func (r *recorderStub) RecordRoute(ctx context.Context, event *models.RouteEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorderStub) last(t *testing.T) *models.RouteEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

func newRegistry(t *testing.T, adapters ...*mockAdapter) *providers.Registry {
	t.Helper()
	registry := providers.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a))
	}
	return registry
}

func alexPersona(primaryTimeout time.Duration) models.Persona {
	return models.Persona{
		Name:    "ALEX",
		Primary: models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o", Timeout: primaryTimeout},
		Backup:  &models.Binding{Vendor: models.VendorGemini, Model: "gemini-2.0-flash"},
	}
}

func newTestRouter(t *testing.T, personas []models.Persona, adapters ...*mockAdapter) (*Router, *recorderStub) {
	t.Helper()
	recorder := &recorderStub{}
	router, err := NewRouter(personas, newRegistry(t, adapters...),
		WithLogger(zaptest.NewLogger(t)),
		WithRecorder(recorder))
	require.NoError(t, err)
	return router, recorder
}

func TestNewRouter(t *testing.T) {
	t.Run("unknown vendor is a configuration error", func(t *testing.T) {
		personas := []models.Persona{alexPersona(time.Second)}
		_, err := NewRouter(personas, newRegistry(t, &mockAdapter{name: "openai"}))

		require.Error(t, err)
		assert.True(t, services.IsConfigurationError(err))
		assert.ErrorIs(t, err, providers.ErrProviderNotFound)
		assert.Contains(t, err.Error(), "no adapter registered for vendor")
	})

	t.Run("primary without timeout", func(t *testing.T) {
		primary := &mockAdapter{name: "openai", reply: "late", delay: 300 * time.Millisecond}
		backup := &mockAdapter{name: "gemini", reply: "backup-ok"}

		_, err := NewRouter([]models.Persona{alexPersona(0)}, newRegistry(t, primary, backup))

		require.Error(t, err)
		assert.True(t, services.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "primary timeout must be greater than zero")

		_, err = NewRouter([]models.Persona{alexPersona(-time.Second)}, newRegistry(t, primary, backup))
		assert.True(t, services.IsConfigurationError(err))
		assert.Zero(t, primary.callCount())
	})

	t.Run("duplicate persona", func(t *testing.T) {
		p := models.Persona{Name: "ALEX", Primary: models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o"}}
		lower := p
		lower.Name = "alex"
		_, err := NewRouter([]models.Persona{p, lower}, newRegistry(t, &mockAdapter{name: "openai"}))

		assert.True(t, services.IsConfigurationError(err))
	})

	t.Run("empty name", func(t *testing.T) {
		p := models.Persona{Name: "  ", Primary: models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o"}}
		_, err := NewRouter([]models.Persona{p}, newRegistry(t, &mockAdapter{name: "openai"}))

		assert.True(t, services.IsConfigurationError(err))
	})

	t.Run("missing model", func(t *testing.T) {
		p := models.Persona{Name: "ALEX", Primary: models.Binding{Vendor: models.VendorOpenAI}}
		_, err := NewRouter([]models.Persona{p}, newRegistry(t, &mockAdapter{name: "openai"}))

		assert.True(t, services.IsConfigurationError(err))
	})
}

func TestRouter_Personas(t *testing.T) {
	personas := []models.Persona{
		{Name: "talkme", Primary: models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o-mini", Timeout: time.Second}},
		alexPersona(time.Second),
	}
	router, _ := newTestRouter(t, personas, &mockAdapter{name: "openai"}, &mockAdapter{name: "gemini"})

	list := router.Personas()
	require.Len(t, list, 2)
	assert.Equal(t, "ALEX", list[0].Name)
	assert.Equal(t, "TALKME", list[1].Name)

	p, ok := router.Persona("Alex")
	require.True(t, ok)
	assert.True(t, p.HasBackup())

	_, ok = router.Persona("GHOST")
	assert.False(t, ok)
}

func TestRoute_PrimarySuccessNeverCallsBackup(t *testing.T) {
	primary := &mockAdapter{name: "openai", reply: "primary-ok"}
	backup := &mockAdapter{name: "gemini", reply: "backup-ok"}
	router, recorder := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	result, err := router.Route(context.Background(), &RouteRequest{RequestID: "req-1", Persona: "ALEX", Prompt: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "primary-ok", result.Text)
	assert.Equal(t, ServedByPrimary, result.ServedBy)
	assert.Equal(t, models.VendorOpenAI, result.Vendor)
	assert.Equal(t, "gpt-4o", result.Model)
	assert.Nil(t, result.PrimaryErr)
	assert.Equal(t, map[string]string{"served": "openai"}, result.Raw)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 0, backup.callCount())

	event := recorder.last(t)
	assert.Equal(t, models.RouteOutcomeServed, event.Outcome)
	require.NotNil(t, event.ServedBy)
	assert.Equal(t, "primary", *event.ServedBy)
	assert.Equal(t, "req-1", event.RequestID)
}

func TestRoute_NoBackupExhaustsImmediately(t *testing.T) {
	primary := &mockAdapter{name: "openai", err: errors.New("connection reset")}
	persona := models.Persona{Name: "TALKME", Primary: models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o-mini", Timeout: time.Second}}
	router, recorder := newTestRouter(t, []models.Persona{persona}, primary)

	result, err := router.Route(context.Background(), &RouteRequest{Persona: "TALKME", Prompt: "hi"})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, services.IsProvidersExhaustedError(err))
	assert.ErrorIs(t, err, services.ErrProviderFailure)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Nil(t, exhausted.BackupErr)
	assert.True(t, services.IsProviderFailureError(exhausted.PrimaryErr))
	assert.Equal(t, 1, primary.callCount())

	assert.Equal(t, models.RouteOutcomeExhausted, recorder.last(t).Outcome)
}

func TestRoute_LatePrimaryNeverSurfaces(t *testing.T) {
	t.Run("backup serves", func(t *testing.T) {
		primary := &mockAdapter{name: "openai", reply: "late-primary", delay: 100 * time.Millisecond}
		backup := &mockAdapter{name: "gemini", reply: "backup-ok"}
		router, _ := newTestRouter(t, []models.Persona{alexPersona(20 * time.Millisecond)}, primary, backup)

		result, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})

		require.NoError(t, err)
		assert.Equal(t, "backup-ok", result.Text)
		assert.Equal(t, ServedByBackup, result.ServedBy)
		assert.True(t, services.IsProviderTimeoutError(result.PrimaryErr))
	})

	t.Run("backup fails too", func(t *testing.T) {
		primary := &mockAdapter{name: "openai", reply: "late-primary", delay: 100 * time.Millisecond}
		backup := &mockAdapter{name: "gemini", err: errors.New("backup down")}
		router, _ := newTestRouter(t, []models.Persona{alexPersona(20 * time.Millisecond)}, primary, backup)

		result, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})

		assert.Nil(t, result)
		require.Error(t, err)
		assert.True(t, services.IsProvidersExhaustedError(err))
		assert.NotContains(t, err.Error(), "late-primary")

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.True(t, services.IsProviderTimeoutError(exhausted.PrimaryErr))
	})
}

func TestRoute_Idempotent(t *testing.T) {
	primary := &mockAdapter{name: "openai", err: errors.New("always fails")}
	backup := &mockAdapter{name: "gemini", reply: "steady"}
	router, _ := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	req := &RouteRequest{Persona: "ALEX", Prompt: "same input", SystemInstruction: "be brief"}

	first, err := router.Route(context.Background(), req)
	require.NoError(t, err)
	second, err := router.Route(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.ServedBy, second.ServedBy)
}

func TestRoute_AlexTimeoutScenario(t *testing.T) {
	primary := &mockAdapter{name: "openai", reply: "primary-ok", delay: 200 * time.Millisecond}
	backup := &mockAdapter{name: "gemini", reply: "backup-ok", delay: 10 * time.Millisecond}
	router, recorder := newTestRouter(t, []models.Persona{alexPersona(50 * time.Millisecond)}, primary, backup)

	start := time.Now()
	result, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "backup-ok", result.Text)
	assert.Equal(t, ServedByBackup, result.ServedBy)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 150*time.Millisecond)

	event := recorder.last(t)
	require.NotNil(t, event.ServedBy)
	assert.Equal(t, "backup", *event.ServedBy)
	require.NotNil(t, event.PrimaryErrorCode)
	assert.Equal(t, string(services.ErrorTypeProviderTimeout), *event.PrimaryErrorCode)
}

func TestRoute_RateLimitThenAuthError(t *testing.T) {
	rateLimitErr := providers.NewProviderError("openai", providers.CodeRateLimited, "Rate limit reached", http.StatusTooManyRequests, true, nil)
	authErr := providers.NewProviderError("gemini", providers.CodeUnauthorized, "API key not valid", http.StatusUnauthorized, false, nil)

	primary := &mockAdapter{name: "openai", err: rateLimitErr}
	backup := &mockAdapter{name: "gemini", err: authErr}
	router, recorder := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	_, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})

	require.Error(t, err)
	assert.True(t, services.IsProvidersExhaustedError(err))

	// backup error is the surfaced cause
	assert.True(t, providers.IsAuthError(err))
	assert.ErrorIs(t, err, authErr)

	// primary error is kept as context
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, providers.IsRateLimited(exhausted.PrimaryErr))
	assert.ErrorIs(t, exhausted.PrimaryErr, rateLimitErr)
	assert.Contains(t, services.GetErrorDetails(err)["primary_error"], "Rate limit reached")

	event := recorder.last(t)
	assert.Equal(t, models.RouteOutcomeExhausted, event.Outcome)
	assert.Equal(t, providers.CodeRateLimited, *event.PrimaryErrorCode)
	assert.Equal(t, providers.CodeUnauthorized, *event.ErrorCode)
}

func TestRoute_UnknownPersona(t *testing.T) {
	primary := &mockAdapter{name: "openai", reply: "x"}
	backup := &mockAdapter{name: "gemini", reply: "y"}
	router, recorder := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	result, err := router.Route(context.Background(), &RouteRequest{Persona: "GHOST", Prompt: "boo"})

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, services.IsConfigurationError(err))
	assert.ErrorIs(t, err, services.ErrUnknownPersona)
	assert.Equal(t, 0, primary.callCount())
	assert.Equal(t, 0, backup.callCount())
	assert.Equal(t, models.RouteOutcomeConfigError, recorder.last(t).Outcome)
}

func TestRoute_MissingCredentialFailsFast(t *testing.T) {
	primary := &mockAdapter{name: "openai", err: providers.NewMissingCredentialError("openai")}
	backup := &mockAdapter{name: "gemini", reply: "backup-ok"}
	router, recorder := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	_, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})

	require.Error(t, err)
	assert.True(t, services.IsConfigurationError(err))
	assert.ErrorIs(t, err, providers.ErrMissingCredential)
	assert.Equal(t, 0, backup.callCount())
	assert.Equal(t, models.RouteOutcomeConfigError, recorder.last(t).Outcome)
}

func TestRoute_CallerCancellation(t *testing.T) {
	primary := &mockAdapter{name: "openai", reply: "slow", delay: time.Second}
	backup := &mockAdapter{name: "gemini", reply: "backup-ok"}
	router, recorder := newTestRouter(t, []models.Persona{alexPersona(5 * time.Second)}, primary, backup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := router.Route(ctx, &RouteRequest{Persona: "ALEX", Prompt: "hello"})

	require.Error(t, err)
	assert.True(t, services.IsCanceledError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, backup.callCount())
	assert.Equal(t, models.RouteOutcomeCanceled, recorder.last(t).Outcome)
}

func TestRoute_AdapterPanicTriggersBackup(t *testing.T) {
	primary := &mockAdapter{name: "openai", panicValue: "nil map write"}
	backup := &mockAdapter{name: "gemini", reply: "backup-ok"}
	router, _ := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	result, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})

	require.NoError(t, err)
	assert.Equal(t, ServedByBackup, result.ServedBy)
	assert.True(t, services.IsProviderFailureError(result.PrimaryErr))

	var panicErr *PanicError
	assert.ErrorAs(t, result.PrimaryErr, &panicErr)
}

func TestRoute_BackupTimeoutHonored(t *testing.T) {
	persona := alexPersona(20 * time.Millisecond)
	persona.Backup.Timeout = 30 * time.Millisecond

	primary := &mockAdapter{name: "openai", err: errors.New("primary down")}
	backup := &mockAdapter{name: "gemini", reply: "too slow", delay: time.Second}
	router, _ := newTestRouter(t, []models.Persona{persona}, primary, backup)

	start := time.Now()
	_, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, services.IsProviderTimeoutError(exhausted.BackupErr))
}

func TestRoute_SameVendorDifferentModel(t *testing.T) {
	adapter := &mockAdapter{name: "openai", reply: "ok"}
	persona := models.Persona{
		Name:    "ROLEPLAY",
		Primary: models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o", Timeout: time.Second},
		Backup:  &models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o-mini"},
	}
	router, _ := newTestRouter(t, []models.Persona{persona}, adapter)

	result, err := router.Route(context.Background(), &RouteRequest{Persona: "roleplay", Prompt: "stay in character"})

	require.NoError(t, err)
	assert.Equal(t, "ROLEPLAY", result.Persona)
	assert.Equal(t, "gpt-4o", result.Model)
}

func TestRoute_EmptyPrompt(t *testing.T) {
	primary := &mockAdapter{name: "openai", reply: "x"}
	backup := &mockAdapter{name: "gemini", reply: "y"}
	router, _ := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	_, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "   "})

	assert.True(t, services.IsValidationError(err))
	assert.Equal(t, 0, primary.callCount())

	_, err = router.Route(context.Background(), nil)
	assert.True(t, services.IsValidationError(err))
}

func TestRoute_ConcurrentCallers(t *testing.T) {
	primary := &mockAdapter{name: "openai", reply: "primary-ok", delay: 5 * time.Millisecond}
	backup := &mockAdapter{name: "gemini", reply: "backup-ok"}
	router, _ := newTestRouter(t, []models.Persona{alexPersona(time.Second)}, primary, backup)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hi"})
			assert.NoError(t, err)
			if result != nil {
				assert.Equal(t, "primary-ok", result.Text)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, primary.callCount())
	assert.Equal(t, 0, backup.callCount())
}

// nilAdapter returns neither a response nor an error
type nilAdapter struct{}

func (nilAdapter) Name() string { return "openai" }

func (nilAdapter) Invoke(ctx context.Context, req *providers.InvokeRequest) (*providers.InvokeResponse, error) {
	return nil, nil
}

func TestRoute_NilResponseTriggersBackup(t *testing.T) {
	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(nilAdapter{}))
	backup := &mockAdapter{name: "gemini", reply: "backup-ok"}
	require.NoError(t, registry.Register(backup))

	recorder := &recorderStub{}
	router, err := NewRouter([]models.Persona{alexPersona(time.Second)}, registry,
		WithLogger(zaptest.NewLogger(t)), WithRecorder(recorder))
	require.NoError(t, err)

	result, err := router.Route(context.Background(), &RouteRequest{Persona: "ALEX", Prompt: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "backup-ok", result.Text)
	assert.Equal(t, ServedByBackup, result.ServedBy)
	assert.True(t, services.IsProviderFailureError(result.PrimaryErr))
	assert.Equal(t, providers.CodeMalformedResponse, providers.ErrorCode(result.PrimaryErr))
	assert.Equal(t, 1, backup.callCount())

	event := recorder.last(t)
	require.NotNil(t, event.PrimaryErrorCode)
	assert.Equal(t, providers.CodeMalformedResponse, *event.PrimaryErrorCode)
}
