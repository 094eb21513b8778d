package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/universal/internal/database"
	"github.com/hitoshi/universal/internal/metrics"
	"github.com/hitoshi/universal/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Chain    middleware.ChainConfig
	Resolver middleware.ProfileResolver

	// メトリクス（nilの場合は計測しない）
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	// ヘルスチェック
	DB database.Pinger

	// リソース
	UserService    UserServiceInterface
	MessageService MessageServiceInterface
	MapService     MapServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	metrics → middleware.NewChain(...) → IdentityMiddleware（認証が必要なルートのみ）
//
// /, /health, /csrf-token, /metrics は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	var writes WriteRecorder
	if deps.Metrics != nil {
		r.Use(metrics.NewHTTPMiddleware(deps.Metrics))
		writes = deps.Metrics
	}
	r.Use(middleware.NewChain(deps.Chain))

	systemHandler := NewSystemHandler(deps.DB)
	userHandler := NewUserHandler(deps.UserService, writes)
	messageHandler := NewMessageHandler(deps.MessageService, deps.UserService, writes)
	mapHandler := NewMapHandler(deps.MapService, deps.UserService, writes)

	// --- 認証不要のルート ---
	r.Get("/", systemHandler.Ping)
	r.Get("/health", systemHandler.Health)
	r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.Chain.CSRF).ServeHTTP)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.Resolver))

		r.Get("/profile", systemHandler.Profile)
		r.Mount("/users", SetupUserRoutes(userHandler))
		r.Mount("/messages", SetupMessageRoutes(messageHandler))
		r.Mount("/maps", SetupMapRoutes(mapHandler))
	})

	return r
}
