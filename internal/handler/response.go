package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/universal/internal/middleware"
	"github.com/hitoshi/universal/internal/model"
)

// WriteRecorder は永続化の成功を記録する。metrics.Collectorが実装する。
type WriteRecorder interface {
	RecordRecordWrite(resource, operation string)
}

type nopWriteRecorder struct{}

func (nopWriteRecorder) RecordRecordWrite(string, string) {}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserNotFound, model.ErrCodeMapNotFound, model.ErrCodeMessageNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden, model.ErrCodeCSRF:
		return http.StatusForbidden
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeInvalidHost:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// callerFromRequest はアイデンティティミドルウェアが注入したプロフィールを取得する。
// 取得できない場合は401を書き込んでfalseを返す。
func callerFromRequest(w http.ResponseWriter, r *http.Request) (*model.Profile, bool) {
	caller, err := middleware.ProfileFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError("Not authenticated"))
		return nil, false
	}
	return caller, true
}

// decodeJSON はリクエストボディをvにデコードする。失敗時は422を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		detail := "Request body must be a valid JSON object."
		if errors.Is(err, io.EOF) {
			detail = "Request body is required."
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			detail = "Invalid type for field: " + typeErr.Field
		}
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(detail))
		return false
	}
	return true
}

// parseIDParam はURLパスの{id}を整数IDとして解釈する。失敗時は422を書き込んでfalseを返す。
func parseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError("Invalid id: "+raw))
		return 0, false
	}
	return id, true
}

// ownerResponse は一覧取得時にJOINで読み込んだ所有ユーザーの要約。
type ownerResponse struct {
	ID                string `json:"id"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
}

func toOwnerResponse(u *model.User) *ownerResponse {
	if u == nil {
		return nil
	}
	return &ownerResponse{
		ID:                u.ID,
		PreferredUsername: u.PreferredUsername,
		Email:             u.Email,
	}
}

// embeddedProfile は呼び出し元自身のレコードであればそのプロフィールを返す。
func embeddedProfile(caller *model.Profile, ownerID string) *model.Profile {
	if caller != nil && caller.Sub == ownerID {
		return caller
	}
	return nil
}
