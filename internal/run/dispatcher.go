package run

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/workflowhub/internal/model"
	"github.com/hitoshi/workflowhub/internal/security"
)

// Dispatcher はワークフロートリガーの実行方式を抽象化する。
// 成功はnil、失敗はエラーで表す。リトライは行わない。
type Dispatcher interface {
	Dispatch(ctx context.Context, webhookURL string, params map[string]string) error
}

// SimulatedDispatcher は遅延＋重み付き乱数による疑似ディスパッチ。
// 実際のネットワーク送信は行わない。successRateの確率で成功する。
type SimulatedDispatcher struct {
	delay       time.Duration
	successRate float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulatedDispatcher はSimulatedDispatcherを生成する。
func NewSimulatedDispatcher(delay time.Duration, successRate float64) *SimulatedDispatcher {
	return &SimulatedDispatcher{
		delay:       delay,
		successRate: successRate,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Dispatch は遅延後に重み付き乱数で成否を決定する。
// ctxのキャンセルは遅延中にも反映される。
func (d *SimulatedDispatcher) Dispatch(ctx context.Context, webhookURL string, params map[string]string) error {
	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	d.mu.Lock()
	draw := d.rand.Float64()
	d.mu.Unlock()

	if draw >= d.successRate {
		return model.NewTriggerFailedError()
	}
	return nil
}

// WebhookDispatcher はWebhook URLへ実際にHTTP POSTを送るディスパッチャ。
// SSRF防止付きクライアントを使用し、タイムアウトを超えた場合は失敗とする。
// リトライは行わない。
type WebhookDispatcher struct {
	guard   security.SSRFGuardService
	client  *http.Client
	timeout time.Duration
}

// NewWebhookDispatcher はWebhookDispatcherを生成する。
func NewWebhookDispatcher(guard security.SSRFGuardService, timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		timeout: timeout,
	}
}

// Dispatch はフォーム値をJSONボディとしてWebhook URLへPOSTする。
// 2xx以外のステータスは失敗として扱う。
func (d *WebhookDispatcher) Dispatch(ctx context.Context, webhookURL string, params map[string]string) error {
	if err := d.guard.ValidateURL(webhookURL); err != nil {
		return model.NewWebhookBlockedError()
	}

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return model.NewTriggerFailedError()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.NewTriggerFailedError()
	}

	return nil
}

// compile-time interface checks
var _ Dispatcher = (*SimulatedDispatcher)(nil)
var _ Dispatcher = (*WebhookDispatcher)(nil)
