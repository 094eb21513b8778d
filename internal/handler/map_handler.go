package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/universal/internal/model"
)

// MapServiceInterface は地図ハンドラーが必要とするサービスインターフェース。
type MapServiceInterface interface {
	// Save はidの有無で作成と所有者による更新を切り替える。
	Save(ctx context.Context, caller *model.Profile, id *int64, fields model.MapFields) (*model.Map, bool, error)
	Get(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error)
	List(ctx context.Context, caller *model.Profile) ([]*model.Map, error)
	ListMine(ctx context.Context, caller *model.Profile) ([]*model.Map, error)
	ListByUser(ctx context.Context, caller *model.Profile, userID string) ([]*model.Map, error)
	Update(ctx context.Context, caller *model.Profile, id int64, fields model.MapFields) (*model.Map, error)
	Delete(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error)
}

// UserEnsurer は呼び出し元ユーザーのget-or-createを行う。
type UserEnsurer interface {
	EnsureUser(ctx context.Context, caller *model.Profile) (*model.User, error)
}

// MapHandler は地図リソースのHTTPハンドラー。
type MapHandler struct {
	service MapServiceInterface
	users   UserEnsurer
	writes  WriteRecorder
}

// NewMapHandler はMapHandlerを生成する。writesがnilの場合は記録しない。
func NewMapHandler(service MapServiceInterface, users UserEnsurer, writes WriteRecorder) *MapHandler {
	if writes == nil {
		writes = nopWriteRecorder{}
	}
	return &MapHandler{service: service, users: users, writes: writes}
}

// mapRequest は地図の作成・保存・更新リクエストのボディ。
// idはPOST /mapsでのみ意味を持つ。
type mapRequest struct {
	ID          *int64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"state"`
}

func (req mapRequest) fields() model.MapFields {
	return model.MapFields{
		Name:        req.Name,
		Description: req.Description,
		State:       req.State,
	}
}

// mapResponse は地図のAPIレスポンス。
type mapResponse struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	State       string         `json:"state"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	User        *model.Profile `json:"user,omitempty"`
	Owner       *ownerResponse `json:"owner,omitempty"`
}

func toMapResponse(m *model.Map, caller *model.Profile) mapResponse {
	return mapResponse{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Description: m.Description,
		State:       m.State,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		User:        embeddedProfile(caller, m.UserID),
		Owner:       toOwnerResponse(m.Owner),
	}
}

func toMapResponses(maps []*model.Map, caller *model.Profile) []mapResponse {
	out := make([]mapResponse, 0, len(maps))
	for _, m := range maps {
		out = append(out, toMapResponse(m, caller))
	}
	return out
}

// Save は地図を作成、またはidが指定された場合は所有する地図を更新する。
// POST /maps
func (h *MapHandler) Save(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req mapRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.users.EnsureUser(r.Context(), caller); err != nil {
		handleServiceError(w, err)
		return
	}

	m, created, err := h.service.Save(r.Context(), caller, req.ID, req.fields())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status, op := http.StatusOK, "update"
	if created {
		status, op = http.StatusCreated, "create"
	}
	h.writes.RecordRecordWrite("maps", op)
	writeJSON(w, status, toMapResponse(m, caller))
}

// List は全地図を返す。管理者のみ。
// GET /maps
func (h *MapHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	maps, err := h.service.List(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMapResponses(maps, caller))
}

// ListMine は呼び出し元の地図を返す。
// GET /maps/me
func (h *MapHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	maps, err := h.service.ListMine(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMapResponses(maps, caller))
}

// ListByUser は指定ユーザーの地図を返す。管理者のみ。
// GET /maps/by/{userId}
func (h *MapHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	maps, err := h.service.ListByUser(r.Context(), caller, chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMapResponses(maps, caller))
}

// Get は地図を1件返す。
// GET /maps/{id}
func (h *MapHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	m, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMapResponse(m, caller))
}

// Update は地図の全フィールドを書き換える。
// PUT /maps/{id}
func (h *MapHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req mapRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.service.Update(r.Context(), caller, id, req.fields())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writes.RecordRecordWrite("maps", "update")
	writeJSON(w, http.StatusOK, toMapResponse(m, caller))
}

// Delete は地図を削除し、削除前の表現を返す。
// DELETE /maps/{id}
func (h *MapHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	m, err := h.service.Delete(r.Context(), caller, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writes.RecordRecordWrite("maps", "delete")
	writeJSON(w, http.StatusOK, toMapResponse(m, caller))
}

// SetupMapRoutes は地図関連のルーティングを設定したchi.Routerを返す。
func SetupMapRoutes(h *MapHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.Save)
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
