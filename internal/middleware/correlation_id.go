package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CorrelationIDHeader はリクエスト追跡用の相関IDヘッダー名。
const CorrelationIDHeader = "X-Correlation-ID"

var correlationIDContextKey = contextKey("correlation_id")

// NewCorrelationIDMiddleware は受信ヘッダーの相関IDを引き継ぎ、無ければ新規に採番する。
// 相関IDは常にレスポンスヘッダーに返す。
func NewCorrelationIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(CorrelationIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(CorrelationIDHeader, id)

			ctx := context.WithValue(r.Context(), correlationIDContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CorrelationIDFromContext はリクエストコンテキストから相関IDを取得する。
// 相関IDミドルウェアを通過していない場合は空文字を返す。
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDContextKey).(string)
	return id
}
