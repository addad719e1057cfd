package client

import (
	"context"
	"sync"
)

// TriggerOutcome はトリガー送信の結果表示。
type TriggerOutcome string

const (
	OutcomeNone    TriggerOutcome = ""
	OutcomeSuccess TriggerOutcome = "success"
	OutcomeFailure TriggerOutcome = "failure"
)

// TriggerForm はカタログエントリごとのパラメーター付きトリガーフォーム。
//
// Openでエントリのデフォルト値からフォームを構築する。送信中は二重送信を
// 不可とし、2回目の送信は実行中の呼び出しがある限りno-opになる。
// Close（明示的な閉操作またはエスケープ）は入力値をすべて破棄する。
// 別のエントリで再度開くと、そのエントリのデフォルト値にリセットされる。
type TriggerForm struct {
	backend Backend

	mu       sync.Mutex
	service  *Service
	values   map[string]string
	outcome  TriggerOutcome
	message  string
	inFlight bool
}

// NewTriggerForm はTriggerFormを生成する。フォームは閉じた状態で始まる。
func NewTriggerForm(backend Backend) *TriggerForm {
	return &TriggerForm{backend: backend}
}

// Open は指定エントリのフォームを開く。
// 入力値はエントリのデフォルト値で初期化され、前回の状態は引き継がない。
func (t *TriggerForm) Open(service Service) {
	t.mu.Lock()
	defer t.mu.Unlock()

	values := make(map[string]string, len(service.InputFields))
	for _, field := range service.InputFields {
		if field.DefaultValue != "" {
			values[field.Name] = field.DefaultValue
		}
	}

	t.service = &service
	t.values = values
	t.outcome = OutcomeNone
	t.message = ""
}

// IsOpen はフォームが開いているかどうかを返す。
func (t *TriggerForm) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.service != nil
}

// SetValue は入力フィールドの値を更新する。フォームが閉じている場合は無視する。
func (t *TriggerForm) SetValue(name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.values == nil {
		return
	}
	t.values[name] = value
}

// Values は現在の入力値のコピーを返す。
func (t *TriggerForm) Values() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Outcome は直近の送信結果と表示メッセージを返す。
func (t *TriggerForm) Outcome() (TriggerOutcome, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome, t.message
}

// Pending は送信中かどうかを返す。
func (t *TriggerForm) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// Submit はトリガーを送信する。
// 送信中、またはフォームが閉じている場合はno-op（falseを返す）。
// 実行ログの記録はサーバー側のベストエフォートであり、その失敗が
// ここで表示される結果を失敗に変えることはない。
func (t *TriggerForm) Submit(ctx context.Context) bool {
	t.mu.Lock()
	if t.inFlight || t.service == nil {
		t.mu.Unlock()
		return false
	}
	t.inFlight = true
	title := t.service.Title
	params := make(map[string]string, len(t.values))
	for k, v := range t.values {
		params[k] = v
	}
	t.mu.Unlock()

	_, err := t.backend.TriggerRun(ctx, title, params)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight = false

	// 送信中にフォームが閉じられた場合、結果は表示しない
	if t.service == nil {
		return true
	}

	if err != nil {
		t.outcome = OutcomeFailure
		t.message = err.Error()
	} else {
		t.outcome = OutcomeSuccess
		t.message = "ワークフローをトリガーしました。"
	}
	return true
}

// Close はフォームを閉じ、入力値をすべて破棄する。
func (t *TriggerForm) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.service = nil
	t.values = nil
	t.outcome = OutcomeNone
	t.message = ""
}
