package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxLoggedBodyBytes はリクエストボディをログに含める際の上限バイト数。
const maxLoggedBodyBytes = 64 << 10

// requestStateContextKey はロギングミドルウェアと内側のミドルウェアで共有する状態のキー。
var requestStateContextKey = contextKey("request_state")

// requestState は内側のミドルウェアがロギング用に書き戻す値を保持する。
// 1リクエストに閉じており、ゴルーチン間では共有しない。
type requestState struct {
	userID string
}

func requestStateFrom(ctx context.Context) *requestState {
	state, _ := ctx.Value(requestStateContextKey).(*requestState)
	return state
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを参照できるようにする。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// LoggingOptions はリクエストログの出力内容を制御する。
type LoggingOptions struct {
	// LogBodies がtrueの場合、リクエストボディをログに含める。
	LogBodies bool
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、correlation_id、user_id（認証済みの場合）を含む。
func NewLoggingMiddleware(logger *slog.Logger, opts LoggingOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var body any
			if opts.LogBodies && r.Body != nil {
				body = captureBody(r)
			}

			state := &requestState{}
			r = r.WithContext(context.WithValue(r.Context(), requestStateContextKey, state))

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}
			if id := CorrelationIDFromContext(r.Context()); id != "" {
				args = append(args, slog.String("correlation_id", id))
			}
			if state.userID != "" {
				args = append(args, slog.String("user_id", state.userID))
			}
			if body != nil {
				args = append(args, slog.Any("body", body))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// captureBody はボディの先頭を読み取り、後続のハンドラー向けに元へ戻す。
// JSONとして解釈できればデコード結果を、できなければ文字列を返す。
func captureBody(r *http.Request) any {
	head, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
	if err != nil || len(head) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(head, &decoded); err == nil {
		return decoded
	}
	return string(head)
}

type readCloser struct {
	io.Reader
	io.Closer
}
