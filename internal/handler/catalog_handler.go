package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/workflowhub/internal/catalog"
)

// CatalogHandler はワークフローカタログのHTTPハンドラー。
// カタログは起動時に固定されるため、認可チェック以外の処理は持たない。
type CatalogHandler struct {
	catalog *catalog.Catalog
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// ListServices は8件のプリセットワークフローを定義順で返す。
// GET /api/services
func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"services": h.catalog.List(),
	})
}
