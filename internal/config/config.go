package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TriggerMode はワークフロートリガーの実行方式を表す。
type TriggerMode string

const (
	// TriggerModeSimulate は遅延＋重み付き乱数による疑似実行を示す。
	TriggerModeSimulate TriggerMode = "simulate"
	// TriggerModeDispatch はWebhook URLへの実HTTPディスパッチを示す。
	TriggerModeDispatch TriggerMode = "dispatch"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Trigger
	TriggerMode        TriggerMode
	TriggerTimeout     time.Duration
	TriggerDelay       time.Duration
	TriggerSuccessRate float64

	// カタログのWebhook URLベース
	WebhookBaseURL string

	// Activity
	ActivityWindow int

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitTrigger int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour)
	cfg.TriggerMode = parseTriggerMode(getEnvString("TRIGGER_MODE", string(TriggerModeSimulate)))
	cfg.TriggerTimeout = getEnvDuration("TRIGGER_TIMEOUT", 10*time.Second)
	cfg.TriggerDelay = getEnvDuration("TRIGGER_DELAY", 1500*time.Millisecond)
	cfg.TriggerSuccessRate = getEnvFloat("TRIGGER_SUCCESS_RATE", 0.8)
	cfg.WebhookBaseURL = getEnvString("WEBHOOK_BASE_URL", "https://hooks.workflowhub.app/v1")
	cfg.ActivityWindow = getEnvInt("ACTIVITY_WINDOW", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTrigger = getEnvInt("RATE_LIMIT_TRIGGER", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.TriggerSuccessRate < 0 || cfg.TriggerSuccessRate > 1 {
		return nil, fmt.Errorf("TRIGGER_SUCCESS_RATE must be in [0, 1], got %v", cfg.TriggerSuccessRate)
	}

	return cfg, nil
}

// parseTriggerMode はトリガー実行方式を解析する。
// 未知の値はsimulate（従来動作）にフォールバックする。
func parseTriggerMode(v string) TriggerMode {
	if TriggerMode(v) == TriggerModeDispatch {
		return TriggerModeDispatch
	}
	return TriggerModeSimulate
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
