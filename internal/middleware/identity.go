// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/universal/internal/auth"
	"github.com/hitoshi/universal/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// profileContextKey はリクエストコンテキストに呼び出し元プロフィールを格納するためのキー。
var profileContextKey = contextKey("profile")

// ProfileResolver はリクエストから呼び出し元のプロフィールを解決する。
// auth.Resolverが実装する。
type ProfileResolver interface {
	Resolve(r *http.Request) (*model.Profile, error)
}

// NewIdentityMiddleware は上流が注入したクレームを型付きプロフィールに変換し、
// リクエストコンテキストに注入するミドルウェアを返す。
// クレームが無い、または不正なリクエストには401 Unauthorizedを返す。
func NewIdentityMiddleware(resolver ProfileResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, err := resolver.Resolve(r)
			if err != nil {
				slog.Warn("identity resolution failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, auth.ToAPIError(err))
				return
			}

			// 外側のロギングミドルウェアにも呼び出し元を伝える
			if state := requestStateFrom(r.Context()); state != nil {
				state.userID = profile.Sub
			}

			next.ServeHTTP(w, r.WithContext(ContextWithProfile(r.Context(), profile)))
		})
	}
}

// ProfileFromContext はリクエストコンテキストから呼び出し元プロフィールを取得する。
// アイデンティティミドルウェアを通過したリクエストでのみ有効。
func ProfileFromContext(ctx context.Context) (*model.Profile, error) {
	profile, ok := ctx.Value(profileContextKey).(*model.Profile)
	if !ok || profile == nil || profile.Sub == "" {
		return nil, fmt.Errorf("profile not found in context")
	}
	return profile, nil
}

// ContextWithProfile はコンテキストにプロフィールを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithProfile(ctx context.Context, profile *model.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey, profile)
}
