package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HTTPBackend はWorkflowHub APIサーバーに接続するBackend実装。
// セッションはHTTP Only CookieとしてCookie jarに保持され、
// 状態変更リクエストにはCSRFトークンを自動的に付与する。
type HTTPBackend struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	dialer     *websocket.Dialer

	csrfMu    sync.Mutex
	csrfToken string
}

var _ Backend = (*HTTPBackend)(nil)

// NewHTTPBackend はHTTPBackendを生成する。
func NewHTTPBackend(cfg Config) *HTTPBackend {
	jar, _ := cookiejar.New(nil)

	return &HTTPBackend{
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		anonKey: cfg.AnonKey,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
		},
		dialer: &websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// SignUp はアカウントを登録する。
func (b *HTTPBackend) SignUp(ctx context.Context, email, password string) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := b.doJSON(ctx, http.MethodPost, "/auth/signup", body, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// SignInWithPassword は認証情報でサインインする。
// 成功するとセッションCookieがjarに保存される。
func (b *HTTPBackend) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := b.doJSON(ctx, http.MethodPost, "/auth/signin", body, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// SignOut は現在のセッションを破棄する。
func (b *HTTPBackend) SignOut(ctx context.Context) error {
	return b.doJSON(ctx, http.MethodPost, "/auth/signout", nil, nil)
}

// UpdatePassword は現在のユーザーのパスワードを変更する。
func (b *HTTPBackend) UpdatePassword(ctx context.Context, newPassword string) error {
	body := map[string]string{"new_password": newPassword}
	return b.doJSON(ctx, http.MethodPut, "/auth/password", body, nil)
}

// GetSession は現在のセッションを返す。401はセッションなし（nil）として扱う。
func (b *HTTPBackend) GetSession(ctx context.Context) (*Session, error) {
	var session Session
	err := b.doJSON(ctx, http.MethodGet, "/auth/session", nil, &session)
	if err != nil {
		var berr *BackendError
		if errors.As(err, &berr) && berr.Code == "UNAUTHORIZED" {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetProfile は現在のユーザーのプロフィールを返す。
func (b *HTTPBackend) GetProfile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := b.doJSON(ctx, http.MethodGet, "/api/profile", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile はプロフィールを部分更新する。
func (b *HTTPBackend) UpdateProfile(ctx context.Context, fullName, avatarURL *string) (*Profile, error) {
	var profile Profile
	body := map[string]*string{"full_name": fullName, "avatar_url": avatarURL}
	if err := b.doJSON(ctx, http.MethodPut, "/api/profile", body, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListServices はワークフローカタログを返す。
func (b *HTTPBackend) ListServices(ctx context.Context) ([]Service, error) {
	var resp struct {
		Services []Service `json:"services"`
	}
	if err := b.doJSON(ctx, http.MethodGet, "/api/services", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

// TriggerRun はワークフローをトリガーする。
func (b *HTTPBackend) TriggerRun(ctx context.Context, title string, params map[string]string) (*Run, error) {
	var resp struct {
		Status string `json:"status"`
		Run    *Run   `json:"run"`
	}
	body := map[string]any{"title": title, "params": params}
	if err := b.doJSON(ctx, http.MethodPost, "/api/runs", body, &resp); err != nil {
		return nil, err
	}
	return resp.Run, nil
}

// ListRecentRuns は直近の実行レコードを新しい順で返す。
func (b *HTTPBackend) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	path := "/api/runs/recent"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	var resp struct {
		Runs []Run `json:"runs"`
	}
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// eventEnvelope はWebSocketで受信するイベントの外装。
type eventEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Events はWebSocketでイベント購読を開始する。
// 受信したイベントを種別ごとのチャネルに振り分ける。
// ctxのキャンセル、またはサーバー側の切断で両チャネルはクローズされる。
func (b *HTTPBackend) Events(ctx context.Context) (<-chan SessionEvent, <-chan Run, error) {
	wsURL, err := b.websocketURL("/api/events")
	if err != nil {
		return nil, nil, err
	}

	header := http.Header{}
	header.Set("X-Anon-Key", b.anonKey)

	conn, _, err := b.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect event stream: %w", err)
	}

	sessions := make(chan SessionEvent)
	runs := make(chan Run)

	go func() {
		defer close(sessions)
		defer close(runs)
		defer conn.Close()

		// ctxキャンセル時に読み取りを中断させる
		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			var envelope eventEnvelope
			if err := conn.ReadJSON(&envelope); err != nil {
				if ctx.Err() == nil {
					slog.Warn("event stream closed", slog.String("error", err.Error()))
				}
				return
			}

			switch envelope.Type {
			case "session":
				var event SessionEvent
				if err := json.Unmarshal(envelope.Payload, &event); err != nil {
					slog.Error("failed to decode session event", slog.String("error", err.Error()))
					continue
				}
				select {
				case sessions <- event:
				case <-ctx.Done():
					return
				}

			case "run_inserted":
				var run Run
				if err := json.Unmarshal(envelope.Payload, &run); err != nil {
					slog.Error("failed to decode run event", slog.String("error", err.Error()))
					continue
				}
				select {
				case runs <- run:
				case <-ctx.Done():
					return
				}

			default:
				// 未知のイベント種別は読み飛ばす
			}
		}
	}()

	return sessions, runs, nil
}

// doJSON はJSONリクエストを送り、レスポンスをoutにデコードする。
// 4xx/5xxレスポンスは統一エラーフォーマットとして解析し、BackendErrorを返す。
func (b *HTTPBackend) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("X-Anon-Key", b.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// 状態変更メソッドにはCSRFトークンを付与
	if method != http.MethodGet && method != http.MethodHead {
		token, err := b.ensureCSRFToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("X-CSRF-Token", token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeBackendError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ensureCSRFToken はCSRFトークンを取得し、キャッシュする。
func (b *HTTPBackend) ensureCSRFToken(ctx context.Context) (string, error) {
	b.csrfMu.Lock()
	defer b.csrfMu.Unlock()

	if b.csrfToken != "" {
		return b.csrfToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/csrf-token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build csrf request: %w", err)
	}
	req.Header.Set("X-Anon-Key", b.anonKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode csrf token: %w", err)
	}

	b.csrfToken = payload.Token
	return b.csrfToken, nil
}

// websocketURL はHTTPのベースURLからWebSocketのURLを導出する。
func (b *HTTPBackend) websocketURL(path string) (string, error) {
	parsed, err := url.Parse(b.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}

	return parsed.String(), nil
}

// decodeBackendError はエラーレスポンスをBackendErrorに変換する。
func decodeBackendError(resp *http.Response) error {
	var berr BackendError
	if err := json.NewDecoder(resp.Body).Decode(&berr); err != nil || berr.Message == "" {
		return &BackendError{
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("サーバーエラーが発生しました（HTTP %d）。", resp.StatusCode),
		}
	}
	return &berr
}
