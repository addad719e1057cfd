package client

import (
	"context"
	"testing"
	"time"
)

// --- モック定義 ---

// fakeBackend はクライアントコアのテスト用Backend実装。
// イベントチャネルはテスト側から直接送信できる。
type fakeBackend struct {
	signUpFn         func(ctx context.Context, email, password string) (*User, error)
	signInFn         func(ctx context.Context, email, password string) (*User, error)
	signOutFn        func(ctx context.Context) error
	updatePasswordFn func(ctx context.Context, newPassword string) error
	getSessionFn     func(ctx context.Context) (*Session, error)
	getProfileFn     func(ctx context.Context) (*Profile, error)
	updateProfileFn  func(ctx context.Context, fullName, avatarURL *string) (*Profile, error)
	listServicesFn   func(ctx context.Context) ([]Service, error)
	triggerRunFn     func(ctx context.Context, title string, params map[string]string) (*Run, error)
	listRecentRunsFn func(ctx context.Context, limit int) ([]Run, error)

	sessionEvents chan SessionEvent
	runEvents     chan Run
	eventsErr     error
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessionEvents: make(chan SessionEvent, 8),
		runEvents:     make(chan Run, 8),
	}
}

func (f *fakeBackend) SignUp(ctx context.Context, email, password string) (*User, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, email, password)
	}
	return nil, nil
}

func (f *fakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (f *fakeBackend) SignOut(ctx context.Context) error {
	if f.signOutFn != nil {
		return f.signOutFn(ctx)
	}
	return nil
}

func (f *fakeBackend) UpdatePassword(ctx context.Context, newPassword string) error {
	if f.updatePasswordFn != nil {
		return f.updatePasswordFn(ctx, newPassword)
	}
	return nil
}

func (f *fakeBackend) GetSession(ctx context.Context) (*Session, error) {
	if f.getSessionFn != nil {
		return f.getSessionFn(ctx)
	}
	return nil, nil
}

func (f *fakeBackend) GetProfile(ctx context.Context) (*Profile, error) {
	if f.getProfileFn != nil {
		return f.getProfileFn(ctx)
	}
	return nil, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, fullName, avatarURL *string) (*Profile, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, fullName, avatarURL)
	}
	return nil, nil
}

func (f *fakeBackend) ListServices(ctx context.Context) ([]Service, error) {
	if f.listServicesFn != nil {
		return f.listServicesFn(ctx)
	}
	return nil, nil
}

func (f *fakeBackend) TriggerRun(ctx context.Context, title string, params map[string]string) (*Run, error) {
	if f.triggerRunFn != nil {
		return f.triggerRunFn(ctx, title, params)
	}
	return nil, nil
}

func (f *fakeBackend) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if f.listRecentRunsFn != nil {
		return f.listRecentRunsFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeBackend) Events(ctx context.Context) (<-chan SessionEvent, <-chan Run, error) {
	if f.eventsErr != nil {
		return nil, nil, f.eventsErr
	}
	return f.sessionEvents, f.runEvents, nil
}

// waitFor は条件が満たされるまでポーリングする。タイムアウトでテスト失敗。
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// --- テスト ---

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv(EnvBackendURL, "https://api.example.com")
	t.Setenv(EnvAnonKey, "anon-key-123")

	cfg := LoadConfig()

	if cfg.BackendURL != "https://api.example.com" {
		t.Errorf("BackendURL = %q, want %q", cfg.BackendURL, "https://api.example.com")
	}
	if cfg.AnonKey != "anon-key-123" {
		t.Errorf("AnonKey = %q, want %q", cfg.AnonKey, "anon-key-123")
	}
	if !cfg.IsConfigured() {
		t.Error("IsConfigured() = false, want true")
	}
}

func TestConfig_IsConfigured_RequiresBothValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"両方あり", Config{BackendURL: "https://api.example.com", AnonKey: "key"}, true},
		{"URLのみ", Config{BackendURL: "https://api.example.com"}, false},
		{"キーのみ", Config{AnonKey: "key"}, false},
		{"両方なし", Config{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_FallsBackToStubWhenUnconfigured(t *testing.T) {
	backend := New(Config{})

	if _, ok := backend.(*stubBackend); !ok {
		t.Fatalf("New(empty config) = %T, want *stubBackend", backend)
	}

	// スタブは全操作で設定エラーを返す（クラッシュしない）
	_, err := backend.SignInWithPassword(context.Background(), "a@example.com", "secret")
	if err != ErrNotConfigured {
		t.Errorf("SignInWithPassword error = %v, want ErrNotConfigured", err)
	}
}

func TestNew_ReturnsHTTPBackendWhenConfigured(t *testing.T) {
	backend := New(Config{BackendURL: "https://api.example.com", AnonKey: "key"})

	if _, ok := backend.(*HTTPBackend); !ok {
		t.Fatalf("New(configured) = %T, want *HTTPBackend", backend)
	}
}

func TestStubBackend_GetSessionReturnsNilSession(t *testing.T) {
	// 設定欠落時も初期化は完了しなければならない。
	// GetSessionはエラーではなくセッションなしを返す。
	stub := newStubBackend()

	session, err := stub.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession error = %v, want nil", err)
	}
	if session != nil {
		t.Errorf("session = %v, want nil", session)
	}
}

func TestStubBackend_EventsCloseOnContextCancel(t *testing.T) {
	stub := newStubBackend()

	ctx, cancel := context.WithCancel(context.Background())
	sessions, runs, err := stub.Events(ctx)
	if err != nil {
		t.Fatalf("Events error = %v, want nil", err)
	}

	cancel()

	select {
	case _, ok := <-sessions:
		if ok {
			t.Error("session channel should be closed without values")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session channel not closed after cancel")
	}

	select {
	case _, ok := <-runs:
		if ok {
			t.Error("run channel should be closed without values")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run channel not closed after cancel")
	}
}
