package client

import (
	"context"
	"sync"
)

// AuthMode は認証フォームのモード。
type AuthMode string

const (
	ModeSignIn AuthMode = "sign_in"
	ModeSignUp AuthMode = "sign_up"
)

// MessageKind はフォームに表示するメッセージの種別。
type MessageKind string

const (
	MessageNone    MessageKind = ""
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
)

// CredentialFlow はメール＋パスワードの認証フォームの状態機械。
// 1つのフォームをsign_in/sign_upの2モードで共有する。
//
// 送信中は二重送信を不可とする（UI無効化ではなく実行中フラグで防ぐ）。
// sign_in成功時はローカルのメッセージを表示しない。保護領域への遷移は
// ルートガードがセッションストアの非同期更新を観測して行う。
// 失敗時はバックエンドのエラーメッセージをそのまま表示し、入力値は保持する。
type CredentialFlow struct {
	backend Backend

	mu          sync.Mutex
	mode        AuthMode
	email       string
	password    string
	message     string
	messageKind MessageKind
	inFlight    bool
}

// signUpSuccessMessage はsign_up成功時に表示する恒久的な案内メッセージ。
// アカウントはメール確認が必要なため、遷移は行わない。
const signUpSuccessMessage = "確認メールを送信しました。メールのリンクから登録を完了してください。"

// NewCredentialFlow はsign_inモードのCredentialFlowを生成する。
func NewCredentialFlow(backend Backend) *CredentialFlow {
	return &CredentialFlow{
		backend: backend,
		mode:    ModeSignIn,
	}
}

// Mode は現在のモードを返す。
func (f *CredentialFlow) Mode() AuthMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// SwitchMode はモードを切り替える。
// 表示中のメッセージはクリアし、入力済みの値は保持する。
func (f *CredentialFlow) SwitchMode(mode AuthMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	f.message = ""
	f.messageKind = MessageNone
}

// SetCredentials は入力値を更新する。
func (f *CredentialFlow) SetCredentials(email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = email
	f.password = password
}

// Credentials は現在の入力値を返す。
func (f *CredentialFlow) Credentials() (email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email, f.password
}

// Message は表示中のメッセージとその種別を返す。
func (f *CredentialFlow) Message() (string, MessageKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message, f.messageKind
}

// Pending は送信中かどうかを返す。
func (f *CredentialFlow) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Submit は現在のモードでフォームを送信する。
// 送信中の再呼び出しはno-op（falseを返す）。
// 完了後も入力値はクリアしない（失敗時の再試行、成功時の案内表示のため）。
func (f *CredentialFlow) Submit(ctx context.Context) bool {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return false
	}
	f.inFlight = true
	mode := f.mode
	email := f.email
	password := f.password
	f.mu.Unlock()

	var err error
	if mode == ModeSignUp {
		_, err = f.backend.SignUp(ctx, email, password)
	} else {
		_, err = f.backend.SignInWithPassword(ctx, email, password)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false

	if err != nil {
		f.message = err.Error()
		f.messageKind = MessageError
		return true
	}

	if mode == ModeSignUp {
		f.message = signUpSuccessMessage
		f.messageKind = MessageSuccess
	} else {
		// sign_in成功: メッセージなし。遷移はルートガードに委ねる。
		f.message = ""
		f.messageKind = MessageNone
	}
	return true
}
