package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/workflowhub/internal/middleware"
	"github.com/hitoshi/workflowhub/internal/model"
)

// RunServiceInterface は実行ハンドラーが必要とするサービスインターフェース。
type RunServiceInterface interface {
	// Trigger はワークフローをトリガーし、成功時に実行レコードを返す。
	Trigger(ctx context.Context, userID, title string, params map[string]string) (*model.WorkflowRun, error)
	// RecentActivity は直近の実行レコードを新しい順で返す。
	RecentActivity(ctx context.Context, limit int) ([]*model.WorkflowRun, error)
}

// RunHandler はワークフロー実行のHTTPハンドラー。
type RunHandler struct {
	service RunServiceInterface
}

// NewRunHandler はRunHandlerを生成する。
func NewRunHandler(service RunServiceInterface) *RunHandler {
	return &RunHandler{service: service}
}

// triggerRequest はワークフロートリガーリクエストのボディ。
type triggerRequest struct {
	Title  string            `json:"title" validate:"required"`
	Params map[string]string `json:"params"`
}

// runResponse は実行レコードのAPIレスポンス。
type runResponse struct {
	ID            string    `json:"id"`
	WorkflowTitle string    `json:"workflow_title"`
	CreatedAt     time.Time `json:"created_at"`
}

// Trigger はワークフローのトリガーを処理する。
// POST /api/runs
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if err := validate.Struct(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFieldError("title", "ワークフロー名は必須です"))
		return
	}

	run, err := h.service.Trigger(r.Context(), userID, req.Title, req.Params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	// 実行レコードの挿入に失敗してもトリガー自体は成功扱い
	resp := map[string]any{"status": "triggered"}
	if run != nil {
		resp["run"] = toRunResponse(run)
	}
	json.NewEncoder(w).Encode(resp)
}

// RecentActivity は直近の実行レコードを返す。
// GET /api/runs/recent?limit=5
func (h *RunHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidFieldError("limit", "1以上の整数を指定してください"))
			return
		}
		limit = parsed
	}

	runs, err := h.service.RecentActivity(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"runs": resp,
	})
}

// toRunResponse はmodel.WorkflowRunからAPIレスポンスに変換する。
func toRunResponse(run *model.WorkflowRun) runResponse {
	return runResponse{
		ID:            run.ID,
		WorkflowTitle: run.WorkflowTitle,
		CreatedAt:     run.CreatedAt,
	}
}
