package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/universal/internal/model"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	Create(ctx context.Context, caller *model.Profile, userID, body string) (*model.Message, error)
	Get(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error)
	List(ctx context.Context, caller *model.Profile) ([]*model.Message, error)
	ListMine(ctx context.Context, caller *model.Profile) ([]*model.Message, error)
	ListByUser(ctx context.Context, caller *model.Profile, userID string) ([]*model.Message, error)
	Update(ctx context.Context, caller *model.Profile, id int64, body string) (*model.Message, error)
	Delete(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error)
}

// MessageHandler はメッセージリソースのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
	users   UserEnsurer
	writes  WriteRecorder
}

// NewMessageHandler はMessageHandlerを生成する。writesがnilの場合は記録しない。
func NewMessageHandler(service MessageServiceInterface, users UserEnsurer, writes WriteRecorder) *MessageHandler {
	if writes == nil {
		writes = nopWriteRecorder{}
	}
	return &MessageHandler{service: service, users: users, writes: writes}
}

// messageRequest はメッセージの作成・更新リクエストのボディ。
// user_idは作成時のみ参照し、省略時は呼び出し元になる。
type messageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// messageResponse はメッセージのAPIレスポンス。
type messageResponse struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"user_id"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	User      *model.Profile `json:"user,omitempty"`
	Owner     *ownerResponse `json:"owner,omitempty"`
}

func toMessageResponse(m *model.Message, caller *model.Profile) messageResponse {
	return messageResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		User:      embeddedProfile(caller, m.UserID),
		Owner:     toOwnerResponse(m.Owner),
	}
}

func toMessageResponses(msgs []*model.Message, caller *model.Profile) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m, caller))
	}
	return out
}

// Create はメッセージを作成する。
// 呼び出し元名義の投稿ではユーザーをget-or-createし、他人名義（管理者のみ）では既存ユーザーを要求する。
// POST /messages
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.UserID == "" || req.UserID == caller.Sub {
		if _, err := h.users.EnsureUser(r.Context(), caller); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	msg, err := h.service.Create(r.Context(), caller, req.UserID, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writes.RecordRecordWrite("messages", "create")
	writeJSON(w, http.StatusCreated, toMessageResponse(msg, caller))
}

// List は全メッセージを返す。管理者のみ。
// GET /messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.List(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponses(msgs, caller))
}

// ListMine は呼び出し元のメッセージを返す。
// GET /messages/me
func (h *MessageHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.ListMine(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponses(msgs, caller))
}

// ListByUser は指定ユーザーのメッセージを返す。管理者のみ。
// GET /messages/by/{userId}
func (h *MessageHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.ListByUser(r.Context(), caller, chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponses(msgs, caller))
}

// Get はメッセージを1件返す。
// GET /messages/{id}
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	msg, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg, caller))
}

// Update はメッセージ本文を書き換える。
// PUT /messages/{id}
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Update(r.Context(), caller, id, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writes.RecordRecordWrite("messages", "update")
	writeJSON(w, http.StatusOK, toMessageResponse(msg, caller))
}

// Delete はメッセージを削除し、削除前の表現を返す。
// DELETE /messages/{id}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	msg, err := h.service.Delete(r.Context(), caller, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writes.RecordRecordWrite("messages", "delete")
	writeJSON(w, http.StatusOK, toMessageResponse(msg, caller))
}

// SetupMessageRoutes はメッセージ関連のルーティングを設定したchi.Routerを返す。
func SetupMessageRoutes(h *MessageHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/me", h.ListMine)
	r.Get("/by/{userId}", h.ListByUser)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
	return r
}
