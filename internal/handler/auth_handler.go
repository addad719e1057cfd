// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/workflowhub/internal/model"
)

const sessionCookieName = "session_id"

// validate はリクエストDTOの検証に使う共有バリデーター。
var validate = validator.New(validator.WithRequiredStructEnabled())

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string) (*model.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	SignOut(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID, sessionID, newPassword string) error
}

// ProfileGetter はGET /auth/sessionでプロフィールを同梱するためのインターフェース。
type ProfileGetter interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメール・パスワード認証のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	profiles ProfileGetter
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileGetter, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		profiles: profiles,
		config:   config,
	}
}

// signUpRequest はアカウント登録リクエストのボディ。
type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// updatePasswordRequest はパスワード変更リクエストのボディ。
type updatePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

// profileResponse はプロフィール情報のAPIレスポンス。
type profileResponse struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

// sessionResponse はGET /auth/sessionのレスポンス。
type sessionResponse struct {
	User    userResponse     `json:"user"`
	Profile *profileResponse `json:"profile"`
}

// SignUp はアカウント登録を処理する。確認待ち状態で作成され、セッションは発行しない。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if err := validate.Struct(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, mapValidationError(err))
		return
	}

	user, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"user":    toUserResponse(user),
		"message": "確認メールを送信しました。メールのリンクから登録を完了してください。",
	})
}

// SignIn はメール・パスワードでのサインインを処理する。
// 成功時はセッションCookie（HttpOnly）を設定する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if err := validate.Struct(req); err != nil {
		// 形式不正でも認証失敗と同じ応答を返し、ユーザーの存在を推測させない
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	session, user, err := h.service.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user": toUserResponse(user),
	})
}

// SignOut はセッションを破棄する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if signOutErr := h.service.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
			// サインアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のセッションのユーザーとプロフィールを返す。
// 未認証の場合は401を返す。クライアントはこれを初期化時のセッション復元に使う。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	resp := sessionResponse{User: toUserResponse(user)}

	// プロフィールは未作成でも有効（nilのまま返す）
	profile, err := h.profiles.GetProfile(r.Context(), user.ID)
	if err != nil {
		slog.Warn("failed to load profile for session",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else if profile != nil {
		resp.Profile = &profileResponse{
			FullName:  profile.FullName,
			AvatarURL: profile.AvatarURL,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdatePassword は現在のユーザーのパスワードを変更する。
// 他デバイスのセッションは失効し、このリクエストのセッションだけが維持される。
// PUT /auth/password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if err := validate.Struct(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewWeakPasswordError())
		return
	}

	if err := h.service.UpdatePassword(r.Context(), user.ID, cookie.Value, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// setSessionCookie はセッションCookie（HttpOnly）を設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:             user.ID,
		Email:          user.Email,
		EmailConfirmed: user.EmailConfirmed,
	}
}

// mapValidationError はvalidatorのエラーをAPIErrorに変換する。
func mapValidationError(err error) *model.APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch {
			case fe.Field() == "Email":
				return model.NewInvalidEmailError()
			case fe.Field() == "Password" || fe.Field() == "NewPassword":
				return model.NewWeakPasswordError()
			}
		}
	}
	return invalidRequestBodyError()
}
