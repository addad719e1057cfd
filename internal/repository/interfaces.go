// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/workflowhub/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithProfile はユーザーと空のプロフィールを同一トランザクションで作成する。
	CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile) error

	// UpdatePassword はユーザーのパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。
	// 未作成の場合はnilを返す（「まだ存在しない」は正常系）。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// Update はプロフィールを更新する。updated_atも同時に更新する。
	Update(ctx context.Context, profile *model.Profile) error
}

// WorkflowRunRepository はワークフロー実行ログの永続化インターフェース。
// レコードは追記専用であり、更新・削除のメソッドは提供しない。
type WorkflowRunRepository interface {
	// Insert は実行ログを1件追加する。
	Insert(ctx context.Context, run *model.WorkflowRun) error

	// ListRecent は全ユーザーの実行ログを作成日時降順でlimit件返す。
	ListRecent(ctx context.Context, limit int) ([]*model.WorkflowRun, error)

	// CountSince は指定日時以降の実行件数を返す。
	CountSince(ctx context.Context, since time.Time) (int, error)
}
