package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // クライアントに返すメッセージ
	Category string // カテゴリ: auth, validation, resource, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeMapNotFound     = "MAP_NOT_FOUND"
	ErrCodeMessageNotFound = "MESSAGE_NOT_FOUND"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeBodyTooLarge    = "BODY_TOO_LARGE"
	ErrCodeCSRF            = "CSRF_FAILED"
	ErrCodeInvalidHost     = "INVALID_HOST"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("User not found: %s", userID),
		Category: "resource",
	}
}

// NewMapNotFoundError は地図が見つからない場合のエラーを生成する。
func NewMapNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeMapNotFound,
		Message:  fmt.Sprintf("Map not found: %d", id),
		Category: "resource",
	}
}

// NewMessageNotFoundError はメッセージが見つからない場合のエラーを生成する。
func NewMessageNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFound,
		Message:  fmt.Sprintf("Message not found: %d", id),
		Category: "resource",
	}
}

// NewForbiddenError は認証済みだが権限がない場合のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
	}
}

// NewAdminRequiredError は管理者ロールが必要な操作のエラーを生成する。
func NewAdminRequiredError() *APIError {
	return NewForbiddenError("Admin privileges required")
}

// NewUnauthenticatedError はIDクレームが存在しない場合のエラーを生成する。
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  message,
		Category: "auth",
	}
}

// NewValidationError はリクエストの形式不正エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
	}
}

// NewBodyTooLargeError はリクエストボディサイズ超過エラーを生成する。
func NewBodyTooLargeError() *APIError {
	return &APIError{
		Code:     ErrCodeBodyTooLarge,
		Message:  "Request body too large.",
		Category: "validation",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  message,
		Category: "auth",
	}
}

// NewInvalidHostError は許可されていないHostヘッダーのエラーを生成する。
func NewInvalidHostError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHost,
		Message:  "Invalid host header",
		Category: "validation",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal server error occurred.",
		Category: "system",
	}
}
