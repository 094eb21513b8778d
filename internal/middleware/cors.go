package middleware

import (
	"net/http"
	"regexp"

	"github.com/rs/cors"
)

// CORSConfig はCORSミドルウェアの設定。
type CORSConfig struct {
	FQDN             string
	AllowCredentials bool
}

// OriginPattern はFQDNから許可オリジンの正規表現を組み立てる。
// スキームはhttp/https、ポートは任意。
func OriginPattern(fqdn string) *regexp.Regexp {
	return regexp.MustCompile(`^https?://` + regexp.QuoteMeta(fqdn) + `(:\d+)?$`)
}

// NewCORSMiddleware はデプロイ先のFQDNに一致するオリジンのみを許可するCORSミドルウェアを返す。
// 一致したオリジンはそのままAccess-Control-Allow-Originに返し、ワイルドカード(*)は使用しない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(config CORSConfig) func(next http.Handler) http.Handler {
	pattern := OriginPattern(config.FQDN)
	c := cors.New(cors.Options{
		AllowOriginFunc: pattern.MatchString,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{CorrelationIDHeader, ProcessTimeHeader, ServiceHeader},
		AllowCredentials: config.AllowCredentials,
		MaxAge:           86400,
	})
	return c.Handler
}
