package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

var _ SessionFinder = (*mockSessionFinder)(nil)

// --- テスト ---

func TestSessionMiddleware_MissingCookieReturns401(t *testing.T) {
	mw := NewSessionMiddleware(&mockSessionFinder{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("未認証リクエストはハンドラーに到達してはならない")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionMiddleware_ExpiredSessionReturns401(t *testing.T) {
	// FindByIDは期限切れセッションをnilとして返す
	finder := &mockSessionFinder{
		findByIDFn: func(_ context.Context, _ string) (*model.Session, error) {
			return nil, nil
		},
	}
	mw := NewSessionMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("期限切れセッションはハンドラーに到達してはならない")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "expired-session"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionMiddleware_FinderErrorReturns401(t *testing.T) {
	finder := &mockSessionFinder{
		findByIDFn: func(_ context.Context, _ string) (*model.Session, error) {
			return nil, errors.New("db down")
		},
	}
	mw := NewSessionMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "any"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionMiddleware_InjectsUserAndSessionID(t *testing.T) {
	finder := &mockSessionFinder{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			return &model.Session{
				ID:        id,
				UserID:    "user-1",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
	mw := NewSessionMiddleware(finder)

	var gotUserID, gotSessionID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		gotSessionID, _ = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-abc"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("userID = %q, want user-1", gotUserID)
	}
	if gotSessionID != "session-abc" {
		t.Errorf("sessionID = %q, want session-abc", gotSessionID)
	}
}

func TestUserIDFromContext_MissingReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("ユーザーIDのないコンテキストはエラーを返すべき")
	}
}
