package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/hitoshi/universal/internal/model"
)

// NewHTTPSRedirectMiddleware はHTTPで届いたリクエストを同じURLのHTTPSへ307でリダイレクトする。
// trustProxyがtrueの場合はX-Forwarded-Protoでスキームを判定する。
func NewHTTPSRedirectMiddleware(trustProxy bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHTTPS(r, trustProxy) {
				next.ServeHTTP(w, r)
				return
			}

			host := r.Host
			if h, port, err := net.SplitHostPort(host); err == nil && port == "80" {
				host = h
			}
			target := "https://" + host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		})
	}
}

func isHTTPS(r *http.Request, trustProxy bool) bool {
	if r.TLS != nil {
		return true
	}
	if trustProxy {
		return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	}
	return false
}

// NewTrustedHostMiddleware はHostヘッダーが許可リストに含まれないリクエストを400で拒否する。
// 許可リストが空か "*" を含む場合は全ホストを許可し、"*.example.com" はサブドメインに一致する。
func NewTrustedHostMiddleware(allowedHosts []string) func(next http.Handler) http.Handler {
	allowAll := len(allowedHosts) == 0
	for _, h := range allowedHosts {
		if h == "*" {
			allowAll = true
		}
	}

	return func(next http.Handler) http.Handler {
		if allowAll {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := hostWithoutPort(r.Host)
			if !hostAllowed(host, allowedHosts) {
				slog.Warn("rejected request with invalid host header",
					slog.String("host", r.Host),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidHostError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func hostAllowed(host string, allowedHosts []string) bool {
	host = strings.ToLower(host)
	for _, pattern := range allowedHosts {
		pattern = strings.ToLower(pattern)
		if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
			if strings.HasSuffix(host, suffix) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}
