package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/universal/internal/model"
	"github.com/hitoshi/universal/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	UserEnsurer
	Get(ctx context.Context, caller *model.Profile, id string) (*model.User, error)
	List(ctx context.Context, caller *model.Profile) ([]*model.User, error)
	Update(ctx context.Context, caller *model.Profile, id string, fields user.Fields) (*model.User, error)
	// Delete はユーザーを削除する。messagesとmapsはスキーマ上CASCADE削除される。
	Delete(ctx context.Context, caller *model.Profile, id string) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	writes  WriteRecorder
}

// NewUserHandler はUserHandlerを生成する。writesがnilの場合は記録しない。
func NewUserHandler(service UserServiceInterface, writes WriteRecorder) *UserHandler {
	if writes == nil {
		writes = nopWriteRecorder{}
	}
	return &UserHandler{service: service, writes: writes}
}

// userRequest はユーザー更新リクエストのボディ。
type userRequest struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

// userResponse はユーザーのAPIレスポンス。
type userResponse struct {
	ID                string `json:"id"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:                u.ID,
		PreferredUsername: u.PreferredUsername,
		Email:             u.Email,
	}
}

// Register は呼び出し元のユーザーをプロフィールからget-or-createする。
// POST /users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	u, err := h.service.EnsureUser(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Me は呼び出し元のユーザーを返す。未登録であれば作成する。
// GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	h.Register(w, r)
}

// List は全ユーザーを返す。管理者のみ。
// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	users, err := h.service.List(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get はユーザーを1件返す。本人または管理者のみ。
// GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Update はユーザーの表示名とメールアドレスを書き換える。本人または管理者のみ。
// PUT /users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Update(r.Context(), caller, chi.URLParam(r, "id"), user.Fields{
		PreferredUsername: req.PreferredUsername,
		Email:             req.Email,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writes.RecordRecordWrite("users", "update")
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Delete はユーザーを削除し、削除前の表現を返す。本人または管理者のみ。
// DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	u, err := h.service.Delete(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writes.RecordRecordWrite("users", "delete")
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// SetupUserRoutes はユーザー管理関連のルーティングを設定したchi.Routerを返す。
func SetupUserRoutes(h *UserHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.Register)
	r.Get("/", h.List)
	r.Get("/me", h.Me)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
	return r
}
