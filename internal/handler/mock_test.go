package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/universal/internal/middleware"
	"github.com/hitoshi/universal/internal/model"
	"github.com/hitoshi/universal/internal/user"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	ensureUserFn func(ctx context.Context, caller *model.Profile) (*model.User, error)
	getFn        func(ctx context.Context, caller *model.Profile, id string) (*model.User, error)
	listFn       func(ctx context.Context, caller *model.Profile) ([]*model.User, error)
	updateFn     func(ctx context.Context, caller *model.Profile, id string, fields user.Fields) (*model.User, error)
	deleteFn     func(ctx context.Context, caller *model.Profile, id string) (*model.User, error)
}

func (m *mockUserService) EnsureUser(ctx context.Context, caller *model.Profile) (*model.User, error) {
	if m.ensureUserFn != nil {
		return m.ensureUserFn(ctx, caller)
	}
	return caller.ToUser(), nil
}

func (m *mockUserService) Get(ctx context.Context, caller *model.Profile, id string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, caller, id)
	}
	return nil, model.NewUserNotFoundError(id)
}

func (m *mockUserService) List(ctx context.Context, caller *model.Profile) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockUserService) Update(ctx context.Context, caller *model.Profile, id string, fields user.Fields) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, caller, id, fields)
	}
	return nil, model.NewUserNotFoundError(id)
}

func (m *mockUserService) Delete(ctx context.Context, caller *model.Profile, id string) (*model.User, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, caller, id)
	}
	return nil, model.NewUserNotFoundError(id)
}

// mockMapService はMapServiceInterfaceのモック実装。
type mockMapService struct {
	saveFn       func(ctx context.Context, caller *model.Profile, id *int64, fields model.MapFields) (*model.Map, bool, error)
	getFn        func(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error)
	listFn       func(ctx context.Context, caller *model.Profile) ([]*model.Map, error)
	listMineFn   func(ctx context.Context, caller *model.Profile) ([]*model.Map, error)
	listByUserFn func(ctx context.Context, caller *model.Profile, userID string) ([]*model.Map, error)
	updateFn     func(ctx context.Context, caller *model.Profile, id int64, fields model.MapFields) (*model.Map, error)
	deleteFn     func(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error)
}

func (m *mockMapService) Save(ctx context.Context, caller *model.Profile, id *int64, fields model.MapFields) (*model.Map, bool, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, caller, id, fields)
	}
	return nil, false, nil
}

func (m *mockMapService) Get(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error) {
	if m.getFn != nil {
		return m.getFn(ctx, caller, id)
	}
	return nil, model.NewMapNotFoundError(id)
}

func (m *mockMapService) List(ctx context.Context, caller *model.Profile) ([]*model.Map, error) {
	if m.listFn != nil {
		return m.listFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockMapService) ListMine(ctx context.Context, caller *model.Profile) ([]*model.Map, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockMapService) ListByUser(ctx context.Context, caller *model.Profile, userID string) ([]*model.Map, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, caller, userID)
	}
	return nil, nil
}

func (m *mockMapService) Update(ctx context.Context, caller *model.Profile, id int64, fields model.MapFields) (*model.Map, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, caller, id, fields)
	}
	return nil, model.NewMapNotFoundError(id)
}

func (m *mockMapService) Delete(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, caller, id)
	}
	return nil, model.NewMapNotFoundError(id)
}

// mockMessageService はMessageServiceInterfaceのモック実装。
type mockMessageService struct {
	createFn     func(ctx context.Context, caller *model.Profile, userID, body string) (*model.Message, error)
	getFn        func(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error)
	listFn       func(ctx context.Context, caller *model.Profile) ([]*model.Message, error)
	listMineFn   func(ctx context.Context, caller *model.Profile) ([]*model.Message, error)
	listByUserFn func(ctx context.Context, caller *model.Profile, userID string) ([]*model.Message, error)
	updateFn     func(ctx context.Context, caller *model.Profile, id int64, body string) (*model.Message, error)
	deleteFn     func(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error)
}

func (m *mockMessageService) Create(ctx context.Context, caller *model.Profile, userID, body string) (*model.Message, error) {
	if m.createFn != nil {
		return m.createFn(ctx, caller, userID, body)
	}
	return nil, nil
}

func (m *mockMessageService) Get(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error) {
	if m.getFn != nil {
		return m.getFn(ctx, caller, id)
	}
	return nil, model.NewMessageNotFoundError(id)
}

func (m *mockMessageService) List(ctx context.Context, caller *model.Profile) ([]*model.Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockMessageService) ListMine(ctx context.Context, caller *model.Profile) ([]*model.Message, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockMessageService) ListByUser(ctx context.Context, caller *model.Profile, userID string) ([]*model.Message, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, caller, userID)
	}
	return nil, nil
}

func (m *mockMessageService) Update(ctx context.Context, caller *model.Profile, id int64, body string) (*model.Message, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, caller, id, body)
	}
	return nil, model.NewMessageNotFoundError(id)
}

func (m *mockMessageService) Delete(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, caller, id)
	}
	return nil, model.NewMessageNotFoundError(id)
}

// mockWriteRecorder はWriteRecorderのモック実装。
type mockWriteRecorder struct {
	writes []string
}

func (m *mockWriteRecorder) RecordRecordWrite(resource, operation string) {
	m.writes = append(m.writes, resource+":"+operation)
}

// --- テストヘルパー ---

// newRequest はプロフィールとchiのURLパラメータを注入したリクエストを生成する。
func newRequest(method, target, body string, caller *model.Profile, params map[string]string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)

	ctx := req.Context()
	if caller != nil {
		ctx = middleware.ContextWithProfile(ctx, caller)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return v
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, want, w.Body.String())
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != want {
		t.Errorf("code = %q, want %q", body.Code, want)
	}
}

var (
	profileU1    = &model.Profile{Sub: "u1", PreferredUsername: "alice", Roles: []string{}, Groups: []string{}}
	profileU2    = &model.Profile{Sub: "u2", PreferredUsername: "bob", Roles: []string{}, Groups: []string{}}
	profileAdmin = &model.Profile{Sub: "root", Roles: []string{model.RoleAdmin}, Groups: []string{}}
)
