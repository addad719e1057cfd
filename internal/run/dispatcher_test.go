package run

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/workflowhub/internal/model"
	"github.com/hitoshi/workflowhub/internal/security"
)

var _ security.SSRFGuardService = (*mockGuard)(nil)

// --- SimulatedDispatcher ---

func TestSimulatedDispatcher_AlwaysSucceedsAtRateOne(t *testing.T) {
	d := NewSimulatedDispatcher(0, 1.0)

	for i := 0; i < 50; i++ {
		if err := d.Dispatch(context.Background(), "https://example.com/hook", nil); err != nil {
			t.Fatalf("successRate=1.0 should never fail, got %v", err)
		}
	}
}

func TestSimulatedDispatcher_AlwaysFailsAtRateZero(t *testing.T) {
	d := NewSimulatedDispatcher(0, 0.0)

	for i := 0; i < 50; i++ {
		err := d.Dispatch(context.Background(), "https://example.com/hook", nil)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTriggerFailed {
			t.Fatalf("successRate=0.0 should always fail with TRIGGER_FAILED, got %v", err)
		}
	}
}

func TestSimulatedDispatcher_ContextCancelDuringDelay(t *testing.T) {
	d := NewSimulatedDispatcher(10*time.Second, 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, "https://example.com/hook", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("遅延中のキャンセルはctx.Errを返すべき, got %v", err)
	}
}

// --- WebhookDispatcher ---

// mockGuard はSSRFGuardServiceのモック。検証結果を固定で返す。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(rawURL string) error {
	return m.validateErr
}

func TestWebhookDispatcher_BlockedURLReturnsWebhookBlocked(t *testing.T) {
	d := NewWebhookDispatcher(&mockGuard{validateErr: errors.New("private IP")}, time.Second)

	err := d.Dispatch(context.Background(), "http://169.254.169.254/hook", nil)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWebhookBlocked {
		t.Fatalf("expected WEBHOOK_BLOCKED error, got %v", err)
	}
}

func TestWebhookDispatcher_SuccessOn2xx(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewWebhookDispatcher(&mockGuard{}, time.Second)

	params := map[string]string{"email": "a@b.com"}
	if err := d.Dispatch(context.Background(), server.URL, params); err != nil {
		t.Fatalf("2xx response should succeed: %v", err)
	}
	if received["email"] != "a@b.com" {
		t.Errorf("フォーム値がJSONボディとして送信されるべき: %+v", received)
	}
}

func TestWebhookDispatcher_Non2xxIsTriggerFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := NewWebhookDispatcher(&mockGuard{}, time.Second)

	err := d.Dispatch(context.Background(), server.URL, nil)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTriggerFailed {
		t.Fatalf("non-2xx should fail with TRIGGER_FAILED, got %v", err)
	}
}
