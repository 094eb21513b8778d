// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute はルーティングに一致しなかったリクエストのrouteラベル。
// 生のパスをラベルに使うとカーディナリティが発散するため、まとめて計上する。
const unmatchedRoute = "unmatched"

// MetricsCollector はメトリクス収集のインターフェース。
// HTTPミドルウェアやレートリミッターから利用する。
type MetricsCollector interface {
	RecordRequest(method, route string, statusCode int, duration time.Duration)
	RecordRejection(reason string)
	RecordRecordWrite(resource, operation string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	rejections   *prometheus.CounterVec
	recordWrites *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "universal_http_requests_total",
			Help: "ルート・メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "universal_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "universal_http_requests_in_flight",
			Help: "処理中のHTTPリクエスト数",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "universal_http_rejections_total",
			Help: "ミドルウェアが拒否したリクエスト数",
		}, []string{"reason"}),
		recordWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "universal_record_writes_total",
			Help: "リソース・操作別の永続化成功数",
		}, []string{"resource", "operation"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.inFlight,
		c.rejections,
		c.recordWrites,
	)

	return c
}

// RecordRequest はHTTPリクエストの完了を記録する。
func (c *Collector) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRejection はミドルウェアによる拒否を記録する。
func (c *Collector) RecordRejection(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// RecordRecordWrite は作成・更新・削除の成功を記録する。
func (c *Collector) RecordRecordWrite(resource, operation string) {
	c.recordWrites.WithLabelValues(resource, operation).Inc()
}

// statusWriter はステータスコードを記録するResponseWriter。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// NewHTTPMiddleware はリクエスト数と処理時間を記録するミドルウェアを返す。
// routeラベルにはchiのルートパターン（例: /maps/{id}）を用いる。
func NewHTTPMiddleware(c *Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			c.inFlight.Inc()
			defer c.inFlight.Dec()

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			c.RecordRequest(r.Method, routePattern(r), status, time.Since(start))
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
