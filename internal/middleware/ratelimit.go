package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/universal/internal/model"
)

// RejectionRecorder はミドルウェアが拒否したリクエストを記録する。
// metrics.Collectorが実装する。
type RejectionRecorder interface {
	RecordRejection(reason string)
}

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	MaxRequests     int           // Timespan内に許可するリクエスト数
	Timespan        time.Duration // MaxRequestsを数える期間
	BlockDuration   time.Duration // 上限超過後に拒否し続ける期間
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
	Recorder        RejectionRecorder
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 300秒あたり1000リクエスト、超過時は300秒ブロックする。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxRequests:     1000,
		Timespan:        300 * time.Second,
		BlockDuration:   300 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとの固定ウィンドウとブロック状態を保持する。
// limiterは補充なし（rate 0）のバケットで、ウィンドウ内の残りリクエスト数を数える。
type clientLimiter struct {
	limiter      *rate.Limiter
	windowStart  time.Time
	blockedUntil time.Time
	lastAccess   time.Time
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// 最初のリクエストから始まるTimespanのウィンドウ内でMaxRequestsを超えたクライアントは
// BlockDurationの間すべて429で拒否される。カウントはウィンドウ経過時とブロック明けにリセットされる。
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:   config,
		now:      time.Now,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware はクライアントIPをキーにレート制限を行うミドルウェアを返す。
// プロキシヘッダーを信頼する場合は、chiのRealIPの後に配置する。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			if retryAfter, ok := rl.allow(key); !ok {
				if rl.config.Recorder != nil {
					rl.config.Recorder.RecordRejection("rate_limit")
				}
				slog.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているクライアントのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// allow はkeyのリクエストを許可するかを判定する。
// 拒否する場合はブロック解除までの残り時間を返す。
func (rl *RateLimiter) allow(key string) (time.Duration, bool) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, exists := rl.limiters[key]
	if !exists {
		cl = &clientLimiter{limiter: rl.newLimiter(), windowStart: now}
		rl.limiters[key] = cl
	}
	cl.lastAccess = now

	if !cl.blockedUntil.IsZero() {
		if now.Before(cl.blockedUntil) {
			return cl.blockedUntil.Sub(now), false
		}
		// ブロック明けはカウントをリセットする
		cl.blockedUntil = time.Time{}
		cl.limiter, cl.windowStart = rl.newLimiter(), now
	}

	if now.Sub(cl.windowStart) >= rl.config.Timespan {
		cl.limiter, cl.windowStart = rl.newLimiter(), now
	}

	if !cl.limiter.AllowN(now, 1) {
		cl.blockedUntil = now.Add(rl.config.BlockDuration)
		return rl.config.BlockDuration, false
	}
	return 0, true
}

// newLimiter はMaxRequests個のトークンを持ち、補充されないバケットを返す。
func (rl *RateLimiter) newLimiter() *rate.Limiter {
	return rate.NewLimiter(0, rl.config.MaxRequests)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はブロック中でなく、最終アクセスからTimespanとCleanupIntervalを
// 超えて経過したエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.Timespan + rl.config.CleanupInterval
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, cl := range rl.limiters {
		if now.Before(cl.blockedUntil) {
			continue
		}
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}

// clientKey はリクエスト元のIPアドレスを返す。
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはブロック解除までの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
