package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/workflowhub/internal/model"
)

// RateLimiterConfig はユーザー単位レート制限の設定。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 通常APIの補充レート (req/sec)
	GeneralBurst    int           // 通常APIのバースト許容量
	TriggerRate     rate.Limit    // 実行トリガーの補充レート (req/sec)
	TriggerBurst    int           // 実行トリガーのバースト許容量
	CleanupInterval time.Duration // 未使用エントリの回収周期
}

// DefaultRateLimiterConfig は既定値を返す。
// 通常APIは120 req/min、ワークフロートリガーは10 req/minをユーザーごとに許容する。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		TriggerRate:     rate.Limit(10.0 / 60.0),
		TriggerBurst:    10,
		CleanupInterval: 5 * time.Minute,
	}
}

// limiterEntry は1ユーザー分のトークンバケットと最終利用時刻。
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool は同一レート設定を共有するユーザー別リミッター群。
type limiterPool struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
}

func newLimiterPool(limit rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		entries: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
	}
}

// acquire はユーザーのリミッターを返す。初回アクセス時に作成する。
func (p *limiterPool) acquire(userID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.entries[userID] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// evictIdle は最終利用からttlを超えたエントリを破棄する。
func (p *limiterPool) evictIdle(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, entry := range p.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(p.entries, userID)
		}
	}
}

// RateLimiter は通常API用とトリガー用の独立した2系統のレート制限を提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterPool
	trigger *limiterPool
	stopCh  chan struct{}
}

// NewRateLimiter はRateLimiterを生成し、未使用エントリを回収する
// バックグラウンドゴルーチンを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterPool(config.GeneralRate, config.GeneralBurst),
		trigger: newLimiterPool(config.TriggerRate, config.TriggerBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.reapLoop()

	return rl
}

// Stop は回収ゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware は通常API向けのレート制限ミドルウェアを返す。
// SessionMiddlewareより後段に配置すること。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middlewareFor(rl.general, "general")
}

// TriggerMiddleware はワークフロートリガー専用のレート制限ミドルウェアを返す。
// 通常APIの制限とは別のバケットで数える。
func (rl *RateLimiter) TriggerMiddleware() func(next http.Handler) http.Handler {
	return rl.middlewareFor(rl.trigger, "trigger")
}

func (rl *RateLimiter) middlewareFor(pool *limiterPool, kind string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !pool.acquire(userID).Allow() {
				writeRateLimited(w, pool.limit)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", kind),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は通常API系統の現在のエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.size()
}

// TriggerLimiterCount はトリガー系統の現在のエントリ数を返す。
func (rl *RateLimiter) TriggerLimiterCount() int {
	return rl.trigger.size()
}

func (rl *RateLimiter) reapLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	// 回収周期の2倍アクセスがなければ破棄する
	ttl := rl.config.CleanupInterval * 2

	for {
		select {
		case <-ticker.C:
			rl.general.evictIdle(ttl)
			rl.trigger.evictIdle(ttl)
		case <-rl.stopCh:
			return
		}
	}
}

// writeRateLimited は429レスポンスを書き込む。
// Retry-Afterには次のトークン補充までの概算秒数を入れる。
func writeRateLimited(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := int(math.Ceil(1.0 / float64(limit)))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
