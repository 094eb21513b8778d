package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/universal/internal/auth"
	"github.com/hitoshi/universal/internal/config"
	"github.com/hitoshi/universal/internal/database"
	"github.com/hitoshi/universal/internal/handler"
	"github.com/hitoshi/universal/internal/logger"
	"github.com/hitoshi/universal/internal/mapstate"
	"github.com/hitoshi/universal/internal/message"
	"github.com/hitoshi/universal/internal/metrics"
	"github.com/hitoshi/universal/internal/middleware"
	"github.com/hitoshi/universal/internal/repository"
	"github.com/hitoshi/universal/internal/user"
)

const (
	startupPingTimeout = 5 * time.Second
	shutdownTimeout    = 30 * time.Second

	// healthPath はhealthcheckサブコマンドが叩くパス。
	healthPath = "/health"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、設定に従って構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// ログファイルを開いた場合はそのCloserを返す（未使用時はnil）。
func Init(w io.Writer) (*config.Config, io.Closer, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってロガーを再構成する
	closer, err := logger.Configure(w, logger.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure logger: %w", err)
	}

	return cfg, closer, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, closer, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.Any("config", cfg),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandRollback:
		steps, err := parseSteps(args)
		if err != nil {
			return err
		}
		return runRollback(cfg, steps)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, startupPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスレジストリ
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 3. ルーターの構築
	router, limiter := buildRouter(cfg, db, reg)
	if limiter != nil {
		defer limiter.Stop()
	}

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はリポジトリ・サービス・ミドルウェアを組み立ててルーターを返す。
// レート制限が有効な場合は生成したRateLimiterも返す。呼び出し側でStopすること。
func buildRouter(cfg *config.Config, db *sqlx.DB, reg *prometheus.Registry) (http.Handler, *middleware.RateLimiter) {
	// リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	mapRepo := repository.NewPostgresMapRepo(db)

	// ドメインサービスの初期化
	userService := user.NewService(userRepo)
	messageService := message.NewService(userRepo, messageRepo)
	mapService := mapstate.NewService(userRepo, mapRepo)

	collector := metrics.NewCollector(reg)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			MaxRequests:   cfg.RateLimitMaxRequests,
			Timespan:      cfg.RateLimitTimespan,
			BlockDuration: cfg.RateLimitBlockDuration,
			Recorder:      collector,
		})
	}

	deps := &handler.RouterDeps{
		Chain: middleware.ChainConfig{
			Logger:      slog.Default(),
			Environment: cfg.Environment,
			ServiceTag:  cfg.ServiceTag(),
			RateLimiter: limiter,
			CSRF: middleware.CSRFConfig{
				CookieSecure: cfg.CookieSecure,
				CookieDomain: cfg.CookieDomain,
			},
			HTTPSRedirect:     cfg.HTTPSRedirect,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
			AllowedHosts:      cfg.AllowedHosts,
			MaxBodyBytes:      cfg.MaxBodySizeBytes,
			HealthPaths:       []string{healthPath},
			CORSEnabled:       cfg.CORSEnabled,
			CORS: middleware.CORSConfig{
				FQDN:             cfg.FQDN,
				AllowCredentials: cfg.CORSAllowCredentials,
			},
			LogRequests: cfg.LogRequests,
		},
		Resolver: auth.NewResolver(cfg.OIDCIssuerURL, cfg.OIDCClientID),
		Metrics:  collector,
		Gatherer: reg,
		DB:       db,

		UserService:    userService,
		MessageService: messageService,
		MapService:     mapService,
	}

	return handler.NewRouter(deps), limiter
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", config.MaskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runRollback は直近steps件のマイグレーションを取り消す。
func runRollback(cfg *config.Config, steps int) error {
	slog.Info("rolling back database migrations",
		slog.String("database_url", config.MaskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("steps", steps),
	)

	if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	slog.Info("database rollback completed successfully")
	return nil
}

// parseSteps は "rollback [steps]" の件数を解釈する。省略時は1件。
func parseSteps(args []string) (int, error) {
	if len(args) < 2 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[1])
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("invalid rollback steps: %q", args[1])
	}
	return steps, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s%s", port, healthPath)
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
