// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Service
	ProjectName string
	Version     string
	Environment string
	FQDN        string
	ServerPort  string

	// Database
	DatabaseURL      string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string

	// Logging
	LogLevel    string
	LogFile     string
	LogJSON     bool
	LogRequests bool

	// OIDC
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string

	// CORS
	CORSEnabled          bool
	CORSAllowCredentials bool

	// CSRF Cookie
	CookieSecure bool
	CookieDomain string

	// Transport
	HTTPSRedirect     bool
	AllowedHosts      []string
	TrustProxyHeaders bool
	MaxBodySizeBytes  int64

	// Rate Limit
	RateLimitEnabled       bool
	RateLimitMaxRequests   int
	RateLimitTimespan      time.Duration
	RateLimitBlockDuration time.Duration
}

// Load は環境変数からConfigを読み込む。
// ENV_FILE（デフォルト: .env）が存在する場合は先に読み込むが、既存の環境変数を上書きしない。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	envFile := getEnvString("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := &Config{}

	cfg.ProjectName = getEnvString("APP_NAME", "api")
	cfg.Version = getEnvString("APP_VERSION", "0.1.0")
	cfg.Environment = strings.ToLower(getEnvString("APP_ENV", "development"))
	cfg.FQDN = getEnvString("FQDN", "localhost")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	cfg.DatabaseHost = getEnvString("DATABASE_HOST", "localhost")
	cfg.DatabasePort = getEnvInt("DATABASE_PORT", 5432)
	cfg.DatabaseUser = getEnvString("DATABASE_USER", "postgres")
	cfg.DatabasePassword = os.Getenv("DATABASE_PASSWORD")
	cfg.DatabaseName = getEnvString("DATABASE_NAME", "universal")
	cfg.DatabaseSSLMode = getEnvString("DATABASE_SSLMODE", "disable")

	// DATABASE_URLが指定されていれば個別項目より優先する
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		if cfg.DatabasePassword == "" {
			return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL or DATABASE_PASSWORD"})
		}
		cfg.DatabaseURL = cfg.buildDatabaseURL()
	}

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogFile = getEnvString("LOG_FILE", "")
	cfg.LogJSON = getEnvBool("LOG_JSON", true)
	cfg.LogRequests = getEnvBool("LOG_REQUESTS", false)

	cfg.OIDCIssuerURL = getEnvString("OIDC_ISSUER_URL", "")
	cfg.OIDCClientID = getEnvString("OIDC_CLIENT_ID", "")
	cfg.OIDCClientSecret = getEnvString("OIDC_CLIENT_SECRET", "")

	cfg.CORSEnabled = getEnvBool("CORS_ENABLED", true)
	cfg.CORSAllowCredentials = getEnvBool("CORS_ALLOW_CREDENTIALS", true)

	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", !cfg.IsDevelopment())
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	cfg.HTTPSRedirect = getEnvBool("HTTPS_REDIRECT", false)
	cfg.AllowedHosts = getEnvList("ALLOWED_HOSTS", []string{"*"})
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.MaxBodySizeBytes = getEnvInt64("MAX_BODY_SIZE_BYTES", 10<<20)

	cfg.RateLimitEnabled = getEnvBool("RATE_LIMIT_ENABLED", false)
	cfg.RateLimitMaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 1000)
	cfg.RateLimitTimespan = getEnvDuration("RATE_LIMIT_TIMESPAN", 300*time.Second)
	cfg.RateLimitBlockDuration = getEnvDuration("RATE_LIMIT_BLOCK_DURATION", 300*time.Second)

	if cfg.MaxBodySizeBytes <= 0 {
		return nil, fmt.Errorf("MAX_BODY_SIZE_BYTES must be positive, got %d", cfg.MaxBodySizeBytes)
	}
	if cfg.RateLimitEnabled && cfg.RateLimitMaxRequests <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive, got %d", cfg.RateLimitMaxRequests)
	}
	if cfg.RateLimitEnabled && cfg.RateLimitTimespan <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_TIMESPAN must be positive, got %s", cfg.RateLimitTimespan)
	}

	return cfg, nil
}

// ServiceTag はX-Serviceヘッダーに載せる "name@version" を返す。
func (c *Config) ServiceTag() string {
	return c.ProjectName + "@" + c.Version
}

// IsDevelopment は開発・デモ環境として扱うかを返す。
func (c *Config) IsDevelopment() bool {
	switch c.Environment {
	case "dev", "development", "demo", "demonstration":
		return true
	default:
		return false
	}
}

// LogValue は秘匿情報をマスクした設定サマリーを返す。
// slog.LogValuerを実装し、起動時のログ出力に使用する。
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_name", c.ProjectName),
		slog.String("version", c.Version),
		slog.String("environment", c.Environment),
		slog.String("fqdn", c.FQDN),
		slog.String("port", c.ServerPort),
		slog.String("database_url", MaskDatabaseURL(c.DatabaseURL)),
		slog.String("log_level", c.LogLevel),
		slog.String("oidc_issuer_url", c.OIDCIssuerURL),
		slog.String("oidc_client_id", c.OIDCClientID),
		slog.String("oidc_client_secret", mask(c.OIDCClientSecret)),
		slog.Bool("cors_enabled", c.CORSEnabled),
		slog.Bool("https_redirect", c.HTTPSRedirect),
		slog.Bool("rate_limit_enabled", c.RateLimitEnabled),
		slog.Int64("max_body_size_bytes", c.MaxBodySizeBytes),
	)
}

// buildDatabaseURL は個別のDATABASE_*項目から接続URLを組み立てる。
func (c *Config) buildDatabaseURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DatabaseUser, c.DatabasePassword),
		Host:     fmt.Sprintf("%s:%d", c.DatabaseHost, c.DatabasePort),
		Path:     "/" + c.DatabaseName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DatabaseSSLMode),
	}
	return u.String()
}

// MaskDatabaseURL はデータベースURLのパスワードをマスクする。
func MaskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(strings.ReplaceAll(v, "_", ""), 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvDuration はGoのduration形式（"5m"）に加え、秒数のみの指定（"300"）も受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
