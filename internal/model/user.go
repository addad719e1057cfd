// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュであり、APIレスポンスには決して含めない。
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	EmailConfirmed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile はユーザーが編集可能なプロフィール情報を表す。
// usersと1:1で対応する。サインアップ時に空のレコードとして作成されるが、
// 「まだ存在しない」状態も正常系として扱う（リポジトリはnilを返す）。
type Profile struct {
	UserID    string
	FullName  *string
	AvatarURL *string
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// IDは暗号的に安全な乱数から生成した不透明トークン。
// 認証済みかどうかの唯一の判定材料はセッションの有無である。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
