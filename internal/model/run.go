package model

import "time"

// WorkflowRun はワークフロー実行の追記専用ログレコードを表す。
// トリガー成功の副作用としてのみ作成され、更新・削除されることはない。
type WorkflowRun struct {
	ID            string
	UserID        string
	WorkflowTitle string
	CreatedAt     time.Time
}

// SessionEventType はセッション変化イベントの種別を表す。
type SessionEventType string

const (
	// SessionSignedIn はサインインによるセッション発行を示す。
	SessionSignedIn SessionEventType = "SIGNED_IN"
	// SessionSignedOut はサインアウトまたは期限切れによるセッション破棄を示す。
	SessionSignedOut SessionEventType = "SIGNED_OUT"
)

// SessionEvent はセッションの発行・破棄を通知するイベント。
// 認証状態遷移の唯一の正（source of truth）としてイベントバスで配信される。
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
}
