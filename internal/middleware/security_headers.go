package middleware

import (
	"net/http"
	"strings"
)

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			next.ServeHTTP(w, r)
		})
	}
}

// cspDirective はContent-Security-Policyの1ディレクティブ。
type cspDirective struct {
	name    string
	sources []string
}

var (
	permissiveCSP = []cspDirective{
		{"default-src", []string{"'self'"}},
		{"script-src", []string{"'self'", "'unsafe-inline'", "https://cdn.jsdelivr.net"}},
		{"style-src", []string{"'self'", "'unsafe-inline'", "https://fonts.googleapis.com"}},
		{"font-src", []string{"'self'", "https://fonts.gstatic.com"}},
		{"img-src", []string{"*", "data:"}},
		{"connect-src", []string{"*"}},
	}

	strictCSP = []cspDirective{
		{"default-src", []string{"'self'"}},
		{"script-src", []string{"'self'"}},
		{"style-src", []string{"'self'"}},
		{"font-src", []string{"'self'"}},
		{"img-src", []string{"'self'"}},
		{"connect-src", []string{"'self'"}},
	}
)

// ContentSecurityPolicy は実行環境に応じたCSPヘッダー値を返す。
// 開発・デモ環境は外部CDNを許可し、それ以外は本番の厳格なポリシーを適用する。
func ContentSecurityPolicy(environment string) string {
	directives := strictCSP
	switch strings.ToLower(environment) {
	case "dev", "development", "demo", "demonstration":
		directives = permissiveCSP
	}

	parts := make([]string, 0, len(directives))
	for _, d := range directives {
		parts = append(parts, d.name+" "+strings.Join(d.sources, " "))
	}
	return strings.Join(parts, "; ") + ";"
}

// NewCSPMiddleware は環境別のContent-Security-Policyヘッダーを付与するミドルウェアを返す。
func NewCSPMiddleware(environment string) func(next http.Handler) http.Handler {
	policy := ContentSecurityPolicy(environment)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", policy)
			next.ServeHTTP(w, r)
		})
	}
}
