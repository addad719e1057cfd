package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/workflowhub/internal/model"
)

const (
	// csrfCookieName はトークンを保持するCookie名。ダブルサブミット方式のため
	// フロントエンドが読めるようHttpOnlyにはしない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName は状態変更リクエストに付けるトークンヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	// csrfTokenMaxAge はトークンCookieの寿命（24時間、秒単位）。
	csrfTokenMaxAge = 24 * 60 * 60

	// csrfTokenBytes はトークンの乱数長。hex化後は64文字になる。
	csrfTokenBytes = 32
)

// CSRFConfig はCSRF対策ミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

var (
	errCSRFNoCookie = errors.New("csrf cookie not present")
	errCSRFNoHeader = errors.New("csrf header not present")
	errCSRFMismatch = errors.New("csrf token mismatch")
)

// NewCSRFMiddleware はダブルサブミットCookie方式のミドルウェアを返す。
// GET/HEAD/OPTIONSは検証せず、Cookie未設定なら発行だけ行う。
// それ以外のメソッドはCookieとヘッダーの一致を要求する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if _, err := r.Cookie(csrfCookieName); err != nil {
					issueCSRFCookie(w, config)
				}
				next.ServeHTTP(w, r)
				return
			}

			if err := checkCSRFToken(r); err != nil {
				slog.Warn("CSRF validation failed",
					slog.String("reason", err.Error()),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "CSRF_VALIDATION_FAILED",
					Message:  "リクエストの検証に失敗しました。",
					Category: "auth",
					Action:   "ページを再読み込みしてから再度お試しください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkCSRFToken はCookieとヘッダーのトークンを定数時間比較で照合する。
func checkCSRFToken(r *http.Request) error {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return errCSRFNoCookie
	}

	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return errCSRFNoHeader
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return errCSRFMismatch
	}

	return nil
}

// NewCSRFTokenHandler はGET /api/csrf-token のハンドラーを返す。
// 既存のトークンCookieがあればその値を返し、なければ発行して返す。
// フロントエンドは起動時にこれを呼んでトークンを手に入れる。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token = issueCSRFCookie(w, config)
			if token == "" {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

// issueCSRFCookie は新しいトークンを生成してCookieに書き込み、その値を返す。
// 乱数生成に失敗した場合は空文字列を返す（Cookieは書き込まない）。
func issueCSRFCookie(w http.ResponseWriter, config CSRFConfig) string {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return ""
	}
	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfTokenMaxAge,
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return token
}
