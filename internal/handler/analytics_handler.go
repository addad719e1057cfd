package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/workflowhub/internal/model"
)

// analyticsSeries は分析チャートの1系列を表す。
type analyticsSeries struct {
	Range  string   `json:"range"`
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// 分析チャートの固定データセット。実行データからの集計は行わない。
var (
	weeklySeries = analyticsSeries{
		Range:  "weekly",
		Labels: []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		Values: []int{12, 21, 8, 15, 13, 33, 22},
	}

	monthlySeries = analyticsSeries{
		Range:  "monthly",
		Labels: []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
		Values: []int{820, 932, 901, 934, 1290, 1330, 1320, 1450, 1500, 1680, 1890, 2300},
	}
)

// AnalyticsHandler はダッシュボード分析チャートのHTTPハンドラー。
type AnalyticsHandler struct{}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler() *AnalyticsHandler {
	return &AnalyticsHandler{}
}

// GetRunSeries は実行数チャートの固定データを返す。
// GET /api/analytics/runs?range=weekly|monthly（省略時はweekly）
func (h *AnalyticsHandler) GetRunSeries(w http.ResponseWriter, r *http.Request) {
	var series analyticsSeries

	switch r.URL.Query().Get("range") {
	case "", "weekly":
		series = weeklySeries
	case "monthly":
		series = monthlySeries
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFieldError("range", "weeklyまたはmonthlyを指定してください"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(series)
}
