package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/workflowhub/internal/catalog"
	"github.com/hitoshi/workflowhub/internal/middleware"
	"github.com/hitoshi/workflowhub/internal/model"
)

// --- モック定義 ---

type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

var _ middleware.SessionFinder = (*mockSessionFinder)(nil)

type mockEventSubscriber struct{}

func (m *mockEventSubscriber) SubscribeRuns(ctx context.Context) (<-chan *model.WorkflowRun, error) {
	ch := make(chan *model.WorkflowRun)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (m *mockEventSubscriber) SubscribeSessions(ctx context.Context) (<-chan *model.SessionEvent, error) {
	ch := make(chan *model.SessionEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

var _ EventSubscriber = (*mockEventSubscriber)(nil)

func newTestRouter(t *testing.T, finder middleware.SessionFinder) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		SessionFinder:     finder,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		CSRFConfig:        middleware.CSRFConfig{},
		AuthService:       &mockAuthService{},
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 86400},
		ProfileService:    &mockProfileService{},
		Catalog:           catalog.New("https://hooks.example.com/v1"),
		RunService:        &mockRunService{},
		EventSubscriber:   &mockEventSubscriber{},
	})
}

// --- テスト ---

func TestRouter_HealthCheckIsPublic(t *testing.T) {
	router := newTestRouter(t, &mockSessionFinder{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestRouter_CSRFTokenEndpointIsPublic(t *testing.T) {
	router := newTestRouter(t, &mockSessionFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_ProtectedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t, &mockSessionFinder{})

	protectedPaths := []string{
		"/api/services",
		"/api/runs/recent",
		"/api/analytics/runs",
		"/api/profile",
	}

	for _, path := range protectedPaths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", path, w.Result().StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestRouter_ProtectedRouteWithValidSession(t *testing.T) {
	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid-session" {
				return &model.Session{
					ID:        "valid-session",
					UserID:    "user-1",
					ExpiresAt: time.Now().Add(1 * time.Hour),
				}, nil
			}
			return nil, nil
		},
	}
	router := newTestRouter(t, finder)

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Services []catalog.Service `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Services) != 8 {
		t.Errorf("services count = %d, want 8", len(body.Services))
	}
}

func TestRouter_MutatingRequestWithoutCSRFTokenReturns403(t *testing.T) {
	router := newTestRouter(t, &mockSessionFinder{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestRouter_MetricsOmittedWhenHandlerNil(t *testing.T) {
	router := newTestRouter(t, &mockSessionFinder{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	router := newTestRouter(t, &mockSessionFinder{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	headers := w.Result().Header
	if headers.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", headers.Get("X-Content-Type-Options"), "nosniff")
	}
	if headers.Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", headers.Get("X-Frame-Options"), "DENY")
	}
}
