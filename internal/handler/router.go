package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/workflowhub/internal/catalog"
	"github.com/hitoshi/workflowhub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証・アカウント
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	ProfileService ProfileServiceInterface

	// ワークフロー
	Catalog    *catalog.Catalog
	RunService RunServiceInterface

	// リアルタイム配信
	EventSubscriber EventSubscriber

	// Prometheusメトリクス（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF → SessionMiddleware → RateLimit(General)
//
// 認証ルート（/auth/*）とヘルスチェックはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	catalogHandler := NewCatalogHandler(deps.Catalog)
	runHandler := NewRunHandler(deps.RunService)
	analyticsHandler := NewAnalyticsHandler()
	eventsHandler := NewEventsHandler(deps.EventSubscriber, deps.CORSAllowedOrigin)

	// --- 認証不要のルート ---

	r.Get("/health", handleHealth)
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	if deps.MetricsHandler != nil {
		r.Get("/metrics", deps.MetricsHandler.ServeHTTP)
	}

	// 認証ルート（セッション確立前でも呼べる）
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.SignUp)
		r.Post("/signin", authHandler.SignIn)
		r.Post("/signout", authHandler.SignOut)
		r.Get("/session", authHandler.Session)
		r.Put("/password", authHandler.UpdatePassword)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ワークフローカタログ
		r.Get("/api/services", catalogHandler.ListServices)

		// 実行管理
		r.Route("/api/runs", func(r chi.Router) {
			// POST /api/runs - トリガー（トリガー専用レート制限を追加）
			r.With(deps.RateLimiter.TriggerMiddleware()).Post("/", runHandler.Trigger)
			r.Get("/recent", runHandler.RecentActivity)
		})

		// 分析チャート
		r.Get("/api/analytics/runs", analyticsHandler.GetRunSeries)

		// プロフィール管理
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
		})

		// リアルタイムイベント配信
		r.Get("/api/events", eventsHandler.Stream)
	})

	return r
}

// handleHealth はヘルスチェックエンドポイント。
// GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}
