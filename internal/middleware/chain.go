package middleware

import (
	"log/slog"
	"net/http"
	"slices"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// gzipLevel はレスポンス圧縮の圧縮レベル。
const gzipLevel = 5

// ChainConfig は全リクエストに適用するミドルウェアチェーンの設定。
type ChainConfig struct {
	Logger      *slog.Logger
	Environment string
	ServiceTag  string

	// RateLimiter がnilの場合はレート制限を行わない。MaxBodyBytesが0以下の場合はボディサイズを制限しない。
	RateLimiter *RateLimiter
	CSRF        CSRFConfig

	HTTPSRedirect     bool
	TrustProxyHeaders bool
	AllowedHosts      []string
	MaxBodyBytes      int64

	// HealthPaths はHTTPSリダイレクトとホスト検証を適用しないパス。
	// コンテナ内からlocalhostへ送るヘルスチェック用。
	HealthPaths []string

	CORSEnabled bool
	CORS        CORSConfig

	LogRequests bool
}

// NewChain は固定順のミドルウェアチェーンを組み立てる。
// 外側から順に recovery → rate limit → CSRF → HTTPS redirect → trusted host →
// body limit → CORS → CSP → gzip → correlation ID → logging → X-Service →
// X-Process-Time → security headers の順で適用する。
func NewChain(cfg ChainConfig) func(next http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stages []func(http.Handler) http.Handler
	stages = append(stages, NewRecoveryMiddleware())
	if cfg.TrustProxyHeaders {
		stages = append(stages, chimw.RealIP)
	}
	if cfg.RateLimiter != nil {
		stages = append(stages, cfg.RateLimiter.Middleware())
	}
	stages = append(stages, NewCSRFMiddleware(cfg.CSRF))
	if cfg.HTTPSRedirect {
		stages = append(stages, skipPaths(cfg.HealthPaths, NewHTTPSRedirectMiddleware(cfg.TrustProxyHeaders)))
	}
	stages = append(stages, skipPaths(cfg.HealthPaths, NewTrustedHostMiddleware(cfg.AllowedHosts)))
	if cfg.MaxBodyBytes > 0 {
		stages = append(stages, NewBodyLimitMiddleware(cfg.MaxBodyBytes))
	}
	if cfg.CORSEnabled {
		stages = append(stages, NewCORSMiddleware(cfg.CORS))
	}
	stages = append(stages,
		NewCSPMiddleware(cfg.Environment),
		chimw.Compress(gzipLevel),
		NewCorrelationIDMiddleware(),
		NewLoggingMiddleware(logger, LoggingOptions{LogBodies: cfg.LogRequests}),
		NewServiceHeaderMiddleware(cfg.ServiceTag),
		NewProcessTimeMiddleware(),
		NewSecurityHeadersMiddleware(),
	)

	return func(next http.Handler) http.Handler {
		h := next
		for i := len(stages) - 1; i >= 0; i-- {
			h = stages[i](h)
		}
		return h
	}
}

// skipPaths はpathsに一致するリクエストではmwを通さずに後続へ渡す。
func skipPaths(paths []string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if len(paths) == 0 {
		return mw
	}
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(paths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
