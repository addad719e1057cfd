package client

import "context"

// ErrNotConfigured は接続設定が欠けている場合に全呼び出しが返す固定エラー。
// 起動時ではなく、最初のユーザー操作時にフォームレベルのメッセージとして表示される。
var ErrNotConfigured = &BackendError{
	Code:    "NOT_CONFIGURED",
	Message: "バックエンドが設定されていません。WORKFLOWHUB_URLとWORKFLOWHUB_ANON_KEYを設定してください。",
}

// BackendError はバックエンドが返すエラー。Messageはそのままユーザーに表示される。
type BackendError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *BackendError) Error() string {
	return e.Message
}

// stubBackend は設定欠落時のフォールバック実装。
// すべての呼び出しがErrNotConfiguredを返し、決してパニックしない。
type stubBackend struct{}

var _ Backend = (*stubBackend)(nil)

func newStubBackend() *stubBackend {
	return &stubBackend{}
}

func (s *stubBackend) SignUp(ctx context.Context, email, password string) (*User, error) {
	return nil, ErrNotConfigured
}

func (s *stubBackend) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	return nil, ErrNotConfigured
}

func (s *stubBackend) SignOut(ctx context.Context) error {
	return ErrNotConfigured
}

func (s *stubBackend) UpdatePassword(ctx context.Context, newPassword string) error {
	return ErrNotConfigured
}

// GetSession はセッションなしとして扱う。
// 設定欠落をここでエラーにすると初期化が完了できなくなるため、
// nilセッションを返してルートガードを認証画面へ導く。
func (s *stubBackend) GetSession(ctx context.Context) (*Session, error) {
	return nil, nil
}

func (s *stubBackend) GetProfile(ctx context.Context) (*Profile, error) {
	return nil, ErrNotConfigured
}

func (s *stubBackend) UpdateProfile(ctx context.Context, fullName, avatarURL *string) (*Profile, error) {
	return nil, ErrNotConfigured
}

func (s *stubBackend) ListServices(ctx context.Context) ([]Service, error) {
	return nil, ErrNotConfigured
}

func (s *stubBackend) TriggerRun(ctx context.Context, title string, params map[string]string) (*Run, error) {
	return nil, ErrNotConfigured
}

func (s *stubBackend) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	return nil, ErrNotConfigured
}

// Events は何も流れないチャネルを返す。ctxのキャンセルでクローズされる。
func (s *stubBackend) Events(ctx context.Context) (<-chan SessionEvent, <-chan Run, error) {
	sessions := make(chan SessionEvent)
	runs := make(chan Run)

	go func() {
		<-ctx.Done()
		close(sessions)
		close(runs)
	}()

	return sessions, runs, nil
}
