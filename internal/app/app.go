package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/workflowhub/internal/account"
	"github.com/hitoshi/workflowhub/internal/auth"
	"github.com/hitoshi/workflowhub/internal/catalog"
	"github.com/hitoshi/workflowhub/internal/config"
	"github.com/hitoshi/workflowhub/internal/database"
	"github.com/hitoshi/workflowhub/internal/eventbus"
	"github.com/hitoshi/workflowhub/internal/handler"
	"github.com/hitoshi/workflowhub/internal/logger"
	"github.com/hitoshi/workflowhub/internal/metrics"
	"github.com/hitoshi/workflowhub/internal/middleware"
	"github.com/hitoshi/workflowhub/internal/repository"
	"github.com/hitoshi/workflowhub/internal/run"
	"github.com/hitoshi/workflowhub/internal/security"
	"github.com/hitoshi/workflowhub/internal/worker/cleanup"
)

// Init はログと設定をまとめて立ち上げる。
// writerを渡すとログの出力先を差し替えられる（テスト用）。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みの失敗もログに残せるよう、ロガーを先に用意する
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はエントリーポイント。os.Args[1:]を受け取り、
// サブコマンドに応じてサーバー起動・マイグレーション・ヘルスチェックを行う。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheckはDBにもConfigにも触らないため、初期化前に分岐する
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe は依存関係を組み立ててHTTPサーバーを起動する。
// SIGINT/SIGTERMで処理中のリクエストを待ってから終了する。
func runServe(cfg *config.Config) error {
	// DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	runRepo := repository.NewPostgresWorkflowRunRepo(db)

	// イベントバスとメトリクス
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// スクレイプ時に直近24時間の実行件数をDBから数えるゲージ
	metrics.RegisterRunActivityGauge(registry, func() (int, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return runRepo.CountSince(ctx, time.Now().Add(-24*time.Hour))
	})

	// ドメインサービス
	authService := auth.NewService(
		userRepo, sessionRepo, bus, collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	accountService := account.NewService(profileRepo)

	workflowCatalog := catalog.New(cfg.WebhookBaseURL)

	// トリガー実行方式の選択: simulate（疑似実行）またはdispatch（実HTTP）
	var dispatcher run.Dispatcher
	if cfg.TriggerMode == config.TriggerModeDispatch {
		ssrfGuard := security.NewSSRFGuard()
		dispatcher = run.NewWebhookDispatcher(ssrfGuard, cfg.TriggerTimeout)
	} else {
		dispatcher = run.NewSimulatedDispatcher(cfg.TriggerDelay, cfg.TriggerSuccessRate)
	}

	runService := run.NewService(workflowCatalog, runRepo, dispatcher, bus, collector, cfg.ActivityWindow)

	// レート制限。設定はreq/min、rate.Limitはreq/secなので60で割る
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.TriggerRate = rate.Limit(float64(cfg.RateLimitTrigger) / 60.0)
	rateLimiterCfg.TriggerBurst = cfg.RateLimitTrigger
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// ルーター
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		ProfileService: accountService,

		Catalog:    workflowCatalog,
		RunService: runService,

		EventSubscriber: bus,

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 期限切れセッションの定期削除
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupJob := cleanup.NewSessionCleanupJob(sessionRepo, slog.Default())
	cleanupJob.Interval = cfg.SessionCleanupInterval
	go cleanupJob.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// シグナル待ち。受信後はタイムアウト付きでシャットダウンする
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("trigger_mode", string(cfg.TriggerMode)),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate は未適用のスキーママイグレーションをすべて適用して終了する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck は同一コンテナ内のサーバーの/healthを叩く。
// シェルのないdistrolessイメージでDockerのHEALTHCHECKから呼ばれる。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL は接続URLの認証情報部分を伏せてログに出せる形にする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
