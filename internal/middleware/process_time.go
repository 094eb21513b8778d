package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// 処理時間ミドルウェアが付与するレスポンスヘッダー名。
const (
	ProcessTimeHeader = "X-Process-Time"
	TraceIDHeader     = "X-Trace-Id"
)

// timingWriter はレスポンスヘッダー送出の直前に処理時間ヘッダーを書き込む。
type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.wroteHeader {
		tw.wroteHeader = true
		tw.Header().Set(ProcessTimeHeader, formatSeconds(time.Since(tw.start)))
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを参照できるようにする。
func (tw *timingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

// NewProcessTimeMiddleware はX-Trace-Idと、秒単位（小数点以下4桁）の
// X-Process-Timeをレスポンスに付与するミドルウェアを返す。
func NewProcessTimeMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(TraceIDHeader, uuid.NewString())

			tw := &timingWriter{ResponseWriter: w, start: time.Now()}
			next.ServeHTTP(tw, r)

			// ボディを書かなかったハンドラーにもヘッダーを付ける
			if !tw.wroteHeader {
				w.Header().Set(ProcessTimeHeader, formatSeconds(time.Since(tw.start)))
			}
		})
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 4, 64)
}

// ServiceHeader はサービス名とバージョンを返すレスポンスヘッダー名。
const ServiceHeader = "X-Service"

// NewServiceHeaderMiddleware は全レスポンスに "name@version" 形式のX-Serviceヘッダーを付与する。
func NewServiceHeaderMiddleware(tag string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(ServiceHeader, tag)
			next.ServeHTTP(w, r)
		})
	}
}
