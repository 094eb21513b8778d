package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newChainConfig() ChainConfig {
	return ChainConfig{
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Environment:  "production",
		ServiceTag:   "api@1.2.3",
		AllowedHosts: []string{"*"},
		MaxBodyBytes: 1024,
		CORSEnabled:  true,
		CORS:         CORSConfig{FQDN: "app.example.com", AllowCredentials: true},
	}
}

func newChainRouter(cfg ChainConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(NewChain(cfg))
	r.Get("/csrf-token", NewCSRFTokenHandler(cfg.CSRF).ServeHTTP)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ping":"pong"}`))
	})
	r.Get("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":"` + strings.Repeat("a", 4096) + `"}`))
	})
	r.Post("/maps", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write(b)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return r
}

// fetchCSRFToken は/csrf-tokenからトークンとCookieを取得する。
func fetchCSRFToken(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/csrf-token", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d", w.Code)
	}
	c := findCookie(w.Result(), CSRFCookieName)
	if c == nil {
		t.Fatal("csrf cookie not issued")
	}
	return c
}

func TestChain_ResponseHeaders(t *testing.T) {
	h := newChainRouter(newChainConfig())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get(ServiceHeader); got != "api@1.2.3" {
		t.Errorf("X-Service = %q, want %q", got, "api@1.2.3")
	}
	if got := w.Header().Get(ProcessTimeHeader); !regexp.MustCompile(`^\d+\.\d{4}$`).MatchString(got) {
		t.Errorf("X-Process-Time = %q, want seconds with 4 decimals", got)
	}
	if w.Header().Get(CorrelationIDHeader) == "" {
		t.Error("X-Correlation-ID should be generated")
	}
	if w.Header().Get(TraceIDHeader) == "" {
		t.Error("X-Trace-Id should be set")
	}
	if got := w.Header().Get("Content-Security-Policy"); got != ContentSecurityPolicy("production") {
		t.Errorf("Content-Security-Policy = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestChain_EchoesCorrelationID(t *testing.T) {
	h := newChainRouter(newChainConfig())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get(CorrelationIDHeader); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want %q", got, "abc-123")
	}
}

// TestChain_BodyTooLarge_Returns413 は上限を超えるボディが413になることを検証する。
func TestChain_BodyTooLarge_Returns413(t *testing.T) {
	h := newChainRouter(newChainConfig())
	cookie := fetchCSRFToken(t, h)

	req := httptest.NewRequest(http.MethodPost, "/maps", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, cookie.Value)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["detail"] != "Request body too large." {
		t.Errorf("detail = %q, want %q", body["detail"], "Request body too large.")
	}
}

func TestChain_BodyWithinLimit_PassesThrough(t *testing.T) {
	h := newChainRouter(newChainConfig())
	cookie := fetchCSRFToken(t, h)

	req := httptest.NewRequest(http.MethodPost, "/maps", strings.NewReader(`{"name":"Map"}`))
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, cookie.Value)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != `{"name":"Map"}` {
		t.Errorf("body = %q", w.Body.String())
	}
}

// TestChain_PostWithoutCSRFHeader_Returns403 はCookie取得後にヘッダーなしでPOSTすると403になることを検証する。
func TestChain_PostWithoutCSRFHeader_Returns403(t *testing.T) {
	h := newChainRouter(newChainConfig())
	cookie := fetchCSRFToken(t, h)

	req := httptest.NewRequest(http.MethodPost, "/maps", strings.NewReader(`{}`))
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if !strings.Contains(w.Body.String(), "CSRF token") {
		t.Errorf("body = %q, want CSRF token mention", w.Body.String())
	}
}

func TestChain_InvalidHost_Returns400(t *testing.T) {
	cfg := newChainConfig()
	cfg.AllowedHosts = []string{"api.example.com", "*.internal.example.com"}
	h := newChainRouter(cfg)

	tests := []struct {
		host string
		want int
	}{
		{"api.example.com", http.StatusOK},
		{"api.example.com:8080", http.StatusOK},
		{"svc.internal.example.com", http.StatusOK},
		{"evil.com", http.StatusBadRequest},
		{"internal.example.com.evil.com", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestChain_HTTPSRedirect(t *testing.T) {
	cfg := newChainConfig()
	cfg.HTTPSRedirect = true
	cfg.TrustProxyHeaders = true
	h := newChainRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/maps/me?x=1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if got := w.Header().Get("Location"); got != "https://api.example.com/maps/me?x=1" {
		t.Errorf("Location = %q", got)
	}

	// プロキシがHTTPS終端した場合はリダイレクトしない
	req = httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("forwarded https: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestChain_GzipCompression(t *testing.T) {
	h := newChainRouter(newChainConfig())

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gzip read: %v", err)
	}
	if !strings.HasPrefix(string(plain), `{"data":"aaa`) {
		t.Errorf("decompressed body = %q", string(plain[:20]))
	}
}

func TestChain_RateLimitRunsBeforeCSRF(t *testing.T) {
	cfg := newChainConfig()
	rl := NewRateLimiter(RateLimiterConfig{
		MaxRequests:   1,
		Timespan:      time.Minute,
		BlockDuration: time.Minute,
	})
	defer rl.Stop()
	cfg.RateLimiter = rl
	h := newChainRouter(cfg)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}

	// CSRFトークンなしのPOSTでも先にレート制限で拒否される
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/maps", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", w.Code)
	}
}

func TestChain_PanicRecovered(t *testing.T) {
	h := newChainRouter(newChainConfig())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("panic detail must not leak to the client")
	}
}

func TestChain_CORSDisabled(t *testing.T) {
	cfg := newChainConfig()
	cfg.CORSEnabled = false
	h := newChainRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}

// TestChain_HealthPathsBypassHTTPSRedirectAndHostCheck はlocalhostからのヘルスチェックが
// HTTPSリダイレクトとホスト検証で弾かれないことを検証する。
func TestChain_HealthPathsBypassHTTPSRedirectAndHostCheck(t *testing.T) {
	cfg := newChainConfig()
	cfg.HTTPSRedirect = true
	cfg.AllowedHosts = []string{"api.example.com"}
	cfg.HealthPaths = []string{"/health"}
	h := newChainRouter(cfg)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"localhostの/healthは200", "http://localhost:8080/health", http.StatusOK},
		{"localhostの他のパスはリダイレクト", "http://localhost:8080/", http.StatusTemporaryRedirect},
		{"許可ホストの他のパスもリダイレクト", "http://api.example.com/", http.StatusTemporaryRedirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	t.Run("リダイレクト無効でも未許可ホストは/health以外400", func(t *testing.T) {
		cfg := newChainConfig()
		cfg.AllowedHosts = []string{"api.example.com"}
		cfg.HealthPaths = []string{"/health"}
		h := newChainRouter(cfg)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost:8080/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("/health status = %d, want 200", w.Code)
		}

		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost:8080/", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("/ status = %d, want 400", w.Code)
		}
	})
}
