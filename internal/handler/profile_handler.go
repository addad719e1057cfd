package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/workflowhub/internal/middleware"
	"github.com/hitoshi/workflowhub/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, fullName, avatarURL *string) (*model.Profile, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// 指定されなかったフィールド（null）は変更しない。
type updateProfileRequest struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url" validate:"omitnil,url"`
}

// GetProfile は現在のユーザーのプロフィールを返す。
// プロフィール未作成の場合はフィールドがnullのレスポンスを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := profileResponse{}
	if profile != nil {
		resp.FullName = profile.FullName
		resp.AvatarURL = profile.AvatarURL
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateProfile はプロフィールを部分更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if err := validate.Struct(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFieldError("avatar_url", "URL形式で入力してください"))
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), userID, req.FullName, req.AvatarURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse{
		FullName:  profile.FullName,
		AvatarURL: profile.AvatarURL,
	})
}
