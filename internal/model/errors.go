// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, trigger, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeServiceNotFound    = "SERVICE_NOT_FOUND"
	ErrCodeInvalidField       = "INVALID_FIELD"
	ErrCodeTriggerFailed      = "TRIGGER_FAILED"
	ErrCodeWebhookBlocked     = "WEBHOOK_BLOCKED"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// ユーザーの存在有無を推測させないため、メール・パスワードどちらの
// 不一致でも同一メッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "サインインするか、別のメールアドレスを使用してください。",
	}
}

// NewWeakPasswordError はパスワード要件未達エラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードは6文字以上で入力してください。",
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "サインインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "サインインし直してください。",
	}
}

// NewServiceNotFoundError はカタログにないワークフローの指定エラーを生成する。
func NewServiceNotFoundError(title string) *APIError {
	return &APIError{
		Code:     ErrCodeServiceNotFound,
		Message:  fmt.Sprintf("指定されたワークフローが見つかりません: %s", title),
		Category: "trigger",
		Action:   "カタログに存在するワークフローを指定してください。",
	}
}

// NewInvalidFieldError はフォーム入力値の検証エラーを生成する。
func NewInvalidFieldError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidField,
		Message:  fmt.Sprintf("入力値が正しくありません（%s）: %s", field, reason),
		Category: "validation",
		Action:   "フォームの入力内容を確認してください。",
	}
}

// NewTriggerFailedError はワークフロートリガー失敗エラーを生成する。
func NewTriggerFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeTriggerFailed,
		Message:  "ワークフローのトリガーに失敗しました。Webhookエンドポイントがエラーを返しました。",
		Category: "trigger",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewWebhookBlockedError はWebhook宛先がセキュリティポリシーで遮断された場合のエラーを生成する。
func NewWebhookBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookBlocked,
		Message:  "セキュリティポリシーにより、Webhook宛先へのアクセスがブロックされました。",
		Category: "trigger",
		Action:   "公開されているWebhook URLを設定してください。プライベートIPへのアクセスは許可されていません。",
	}
}
