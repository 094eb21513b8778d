package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/universal/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// detailキーは既存クライアントとの互換のため維持する。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Detail   string `json:"detail"`
	Category string `json:"category"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ミドルウェアとハンドラーの双方から使用する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Detail:   apiErr.Message,
		Category: apiErr.Category,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
