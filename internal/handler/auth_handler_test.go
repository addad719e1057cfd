package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/workflowhub/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signUpFn             func(ctx context.Context, email, password string) (*model.User, error)
	signInWithPasswordFn func(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	signOutFn            func(ctx context.Context, sessionID string) error
	getCurrentUserFn     func(ctx context.Context, sessionID string) (*model.User, error)
	updatePasswordFn     func(ctx context.Context, userID, sessionID, newPassword string) error
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	if m.signInWithPasswordFn != nil {
		return m.signInWithPasswordFn(ctx, email, password)
	}
	return nil, nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) UpdatePassword(ctx context.Context, userID, sessionID, newPassword string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, userID, sessionID, newPassword)
	}
	return nil
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

type mockProfileGetter struct {
	getProfileFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProfileGetter) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return nil, nil
}

var _ ProfileGetter = (*mockProfileGetter)(nil)

func newTestAuthHandler(svc AuthServiceInterface, profiles ProfileGetter) *AuthHandler {
	return NewAuthHandler(svc, profiles, AuthHandlerConfig{
		CookieDomain:  "",
		CookieSecure:  false,
		SessionMaxAge: 86400,
	})
}

// sessionCookieFrom はレスポンスからセッションCookieを探す。
func sessionCookieFrom(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

// --- SignUp のテスト ---

func TestAuthHandler_SignUp_CreatesUnconfirmedUser(t *testing.T) {
	svc := &mockAuthService{
		signUpFn: func(ctx context.Context, email, password string) (*model.User, error) {
			return &model.User{
				ID:             "user-new",
				Email:          email,
				EmailConfirmed: false,
			}, nil
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	body := strings.NewReader(`{"email":"new@example.com","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", body)
	w := httptest.NewRecorder()

	h.SignUp(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var respBody struct {
		User    userResponse `json:"user"`
		Message string       `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if respBody.User.Email != "new@example.com" {
		t.Errorf("user email = %q, want %q", respBody.User.Email, "new@example.com")
	}
	if respBody.User.EmailConfirmed {
		t.Error("sign-up should create unconfirmed user")
	}
	if respBody.Message == "" {
		t.Error("expected confirmation message in response")
	}

	// 登録時点ではセッションを発行しない
	if sessionCookieFrom(resp) != nil {
		t.Error("sign-up should not set session cookie")
	}
}

func TestAuthHandler_SignUp_InvalidEmail_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		signUpFn: func(ctx context.Context, email, password string) (*model.User, error) {
			t.Fatal("service should not be called for invalid email")
			return nil, nil
		},
	}, &mockProfileGetter{})

	body := strings.NewReader(`{"email":"not-an-email","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", body)
	w := httptest.NewRecorder()

	h.SignUp(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var apiErr apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidEmail {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidEmail)
	}
}

func TestAuthHandler_SignUp_ShortPassword_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{}, &mockProfileGetter{})

	body := strings.NewReader(`{"email":"a@example.com","password":"abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", body)
	w := httptest.NewRecorder()

	h.SignUp(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var apiErr apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if apiErr.Code != model.ErrCodeWeakPassword {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeWeakPassword)
	}
}

func TestAuthHandler_SignUp_DuplicateEmail_Returns409(t *testing.T) {
	svc := &mockAuthService{
		signUpFn: func(ctx context.Context, email, password string) (*model.User, error) {
			return nil, model.NewDuplicateEmailError()
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	body := strings.NewReader(`{"email":"taken@example.com","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", body)
	w := httptest.NewRecorder()

	h.SignUp(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusConflict)
	}
}

// --- SignIn のテスト ---

func TestAuthHandler_SignIn_Success_SetsSessionCookie(t *testing.T) {
	svc := &mockAuthService{
		signInWithPasswordFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return &model.Session{ID: "session-abc", UserID: "user-1"},
				&model.User{ID: "user-1", Email: email, EmailConfirmed: true},
				nil
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	body := strings.NewReader(`{"email":"taro@example.com","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", body)
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cookie := sessionCookieFrom(resp)
	if cookie == nil {
		t.Fatal("expected session cookie to be set")
	}
	if cookie.Value != "session-abc" {
		t.Errorf("session cookie value = %q, want %q", cookie.Value, "session-abc")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("session cookie SameSite = %v, want Lax", cookie.SameSite)
	}
}

func TestAuthHandler_SignIn_MalformedEmail_ReturnsInvalidCredentials(t *testing.T) {
	// 形式不正でも認証失敗と同じ応答にし、アカウントの存在を推測させない
	h := newTestAuthHandler(&mockAuthService{
		signInWithPasswordFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			t.Fatal("service should not be called for malformed email")
			return nil, nil, nil
		},
	}, &mockProfileGetter{})

	body := strings.NewReader(`{"email":"not-an-email","password":"whatever"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", body)
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	var apiErr apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestAuthHandler_SignIn_WrongPassword_Returns401(t *testing.T) {
	svc := &mockAuthService{
		signInWithPasswordFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	body := strings.NewReader(`{"email":"taro@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", body)
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if sessionCookieFrom(resp) != nil {
		t.Error("failed sign-in should not set session cookie")
	}
}

// --- SignOut のテスト ---

func TestAuthHandler_SignOut_ClearsSessionCookie(t *testing.T) {
	signOutCalled := false
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, sessionID string) error {
			signOutCalled = true
			if sessionID != "session-to-destroy" {
				t.Errorf("sessionID = %q, want %q", sessionID, "session-to-destroy")
			}
			return nil
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "session-to-destroy"})
	w := httptest.NewRecorder()

	h.SignOut(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if !signOutCalled {
		t.Error("expected SignOut service to be called")
	}

	cookie := sessionCookieFrom(resp)
	if cookie == nil {
		t.Fatal("expected session cookie in response")
	}
	if cookie.MaxAge != -1 {
		t.Errorf("session cookie MaxAge = %d, want -1 (deletion)", cookie.MaxAge)
	}
}

func TestAuthHandler_SignOut_ServiceErrorStillClearsCookie(t *testing.T) {
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, sessionID string) error {
			return errors.New("db down")
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "session-x"})
	w := httptest.NewRecorder()

	h.SignOut(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	cookie := sessionCookieFrom(resp)
	if cookie == nil || cookie.MaxAge != -1 {
		t.Error("cookie should be cleared even when service fails")
	}
}

// --- Session のテスト ---

func TestAuthHandler_Session_MissingCookie_Returns401(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{}, &mockProfileGetter{})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	w := httptest.NewRecorder()

	h.Session(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Session_ExpiredSession_Returns401(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return nil, nil // 期限切れまたは不明なセッション
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "expired-session"})
	w := httptest.NewRecorder()

	h.Session(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Session_ReturnsUserAndProfile(t *testing.T) {
	fullName := "Taro Yamada"
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: "taro@example.com", EmailConfirmed: true}, nil
		},
	}
	profiles := &mockProfileGetter{
		getProfileFn: func(ctx context.Context, userID string) (*model.Profile, error) {
			return &model.Profile{UserID: userID, FullName: &fullName}, nil
		},
	}
	h := newTestAuthHandler(svc, profiles)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()

	h.Session(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.User.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", body.User.ID, "user-1")
	}
	if body.Profile == nil {
		t.Fatal("expected profile in response")
	}
	if body.Profile.FullName == nil || *body.Profile.FullName != "Taro Yamada" {
		t.Errorf("profile full name = %v, want %q", body.Profile.FullName, "Taro Yamada")
	}
}

func TestAuthHandler_Session_ProfileErrorDoesNotFailSession(t *testing.T) {
	// プロフィール取得失敗はセッション復元自体を失敗させない
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: "taro@example.com"}, nil
		},
	}
	profiles := &mockProfileGetter{
		getProfileFn: func(ctx context.Context, userID string) (*model.Profile, error) {
			return nil, errors.New("profile store down")
		},
	}
	h := newTestAuthHandler(svc, profiles)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()

	h.Session(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Profile != nil {
		t.Error("profile should be nil when profile lookup fails")
	}
}

// --- UpdatePassword のテスト ---

func TestAuthHandler_UpdatePassword_Success(t *testing.T) {
	updateCalled := false
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: "taro@example.com"}, nil
		},
		updatePasswordFn: func(ctx context.Context, userID, sessionID, newPassword string) error {
			updateCalled = true
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			if sessionID != "valid-session" {
				t.Errorf("sessionID = %q, want %q", sessionID, "valid-session")
			}
			if newPassword != "newsecret123" {
				t.Errorf("newPassword = %q, want %q", newPassword, "newsecret123")
			}
			return nil
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	body := strings.NewReader(`{"new_password":"newsecret123"}`)
	req := httptest.NewRequest(http.MethodPut, "/auth/password", body)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()

	h.UpdatePassword(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if !updateCalled {
		t.Error("expected UpdatePassword service to be called")
	}
}

func TestAuthHandler_UpdatePassword_MissingCookie_Returns401(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{}, &mockProfileGetter{})

	body := strings.NewReader(`{"new_password":"newsecret123"}`)
	req := httptest.NewRequest(http.MethodPut, "/auth/password", body)
	w := httptest.NewRecorder()

	h.UpdatePassword(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_UpdatePassword_ShortPassword_Returns400(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-1"}, nil
		},
		updatePasswordFn: func(ctx context.Context, userID, sessionID, newPassword string) error {
			t.Fatal("service should not be called for short password")
			return nil
		},
	}
	h := newTestAuthHandler(svc, &mockProfileGetter{})

	body := strings.NewReader(`{"new_password":"abc"}`)
	req := httptest.NewRequest(http.MethodPut, "/auth/password", body)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()

	h.UpdatePassword(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var apiErr apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if apiErr.Code != model.ErrCodeWeakPassword {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeWeakPassword)
	}
}
