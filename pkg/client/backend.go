// Package client はWorkflowHubダッシュボードのクライアントコアを提供する。
// セッションストア、ルートガード、認証フォーム、アクティビティフィード、
// トリガーフォームの状態機械を実装し、バックエンドはBackendインターフェースで
// 抽象化する。UI層（描画）はこのパッケージの観測者であり、状態の書き込みは
// 各コンポーネントのみが行う。
package client

import (
	"context"
	"os"
	"time"
)

// 環境変数名。未設定の場合はスタブバックエンドにフォールバックする。
const (
	EnvBackendURL = "WORKFLOWHUB_URL"
	EnvAnonKey    = "WORKFLOWHUB_ANON_KEY"
)

// Config はクライアントの接続設定。
type Config struct {
	BackendURL string
	AnonKey    string
}

// LoadConfig は環境変数からConfigを読み込む。
func LoadConfig() Config {
	return Config{
		BackendURL: os.Getenv(EnvBackendURL),
		AnonKey:    os.Getenv(EnvAnonKey),
	}
}

// IsConfigured は接続に必要な設定がそろっているかを返す。
func (c Config) IsConfigured() bool {
	return c.BackendURL != "" && c.AnonKey != ""
}

// User は認証済みユーザーの読み取り専用コピー。
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

// Profile はユーザープロフィール。未作成の場合は各フィールドがnilになる。
type Profile struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

// Session は現在のセッションの内容。存在しない場合はnilで表す。
type Session struct {
	User    User     `json:"user"`
	Profile *Profile `json:"profile"`
}

// Run はワークフロー実行ログの1レコード。
type Run struct {
	ID            string    `json:"id"`
	WorkflowTitle string    `json:"workflow_title"`
	CreatedAt     time.Time `json:"created_at"`
}

// InputField はトリガーフォームの1入力フィールドのスキーマ。
type InputField struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	Type         string   `json:"type"`
	Placeholder  string   `json:"placeholder,omitempty"`
	DefaultValue string   `json:"default_value,omitempty"`
	Options      []string `json:"options,omitempty"`
}

// Service はワークフローカタログの1エントリ。
type Service struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	WebhookURL  string       `json:"webhook_url"`
	InputFields []InputField `json:"input_fields"`
}

// SessionEventType はセッション変化イベントの種別。
type SessionEventType string

const (
	EventSignedIn  SessionEventType = "SIGNED_IN"
	EventSignedOut SessionEventType = "SIGNED_OUT"
)

// SessionEvent はバックエンド起点のセッション変化の通知。
type SessionEvent struct {
	Type   SessionEventType `json:"type"`
	UserID string           `json:"user_id"`
}

// Backend はクライアントコアが消費するバックエンドサービスの抽象。
// 実装はHTTPBackend（実バックエンド）とstubBackend（未設定時のフォールバック）。
type Backend interface {
	// SignUp はアカウントを登録する。成功してもセッションは発行されない。
	SignUp(ctx context.Context, email, password string) (*User, error)
	// SignInWithPassword は認証情報でサインインし、セッションを確立する。
	SignInWithPassword(ctx context.Context, email, password string) (*User, error)
	// SignOut は現在のセッションを破棄する。
	SignOut(ctx context.Context) error
	// UpdatePassword は現在のユーザーのパスワードを変更する。
	UpdatePassword(ctx context.Context, newPassword string) error

	// GetSession は現在のセッションを返す。セッションなしはnil（エラーではない）。
	GetSession(ctx context.Context) (*Session, error)

	// GetProfile は現在のユーザーのプロフィールを返す。
	GetProfile(ctx context.Context) (*Profile, error)
	// UpdateProfile はプロフィールを部分更新する。nilのフィールドは変更しない。
	UpdateProfile(ctx context.Context, fullName, avatarURL *string) (*Profile, error)

	// ListServices はワークフローカタログを返す。
	ListServices(ctx context.Context) ([]Service, error)
	// TriggerRun はワークフローをトリガーする。
	TriggerRun(ctx context.Context, title string, params map[string]string) (*Run, error)
	// ListRecentRuns は直近の実行レコードを新しい順で返す。
	ListRecentRuns(ctx context.Context, limit int) ([]Run, error)

	// Events はセッション変化イベントと実行ログ追加イベントの購読を開始する。
	// ctxのキャンセルで購読は解除され、両チャネルはクローズされる。
	Events(ctx context.Context) (<-chan SessionEvent, <-chan Run, error)
}

// New はConfigに応じたBackendを生成する。
// 設定が不完全な場合はクラッシュせず、全呼び出しが設定エラーを返す
// スタブバックエンドにフォールバックする。
func New(cfg Config) Backend {
	if !cfg.IsConfigured() {
		return newStubBackend()
	}
	return NewHTTPBackend(cfg)
}
