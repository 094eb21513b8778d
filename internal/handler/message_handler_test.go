package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/universal/internal/model"
)

func sampleMessage(id int64, owner, body string) *model.Message {
	return &model.Message{
		ID:        id,
		UserID:    owner,
		Message:   body,
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

func TestMessageHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		caller     *model.Profile
		body       string
		wantEnsure bool
		err        error
		wantStatus int
	}{
		{"user_id省略は呼び出し元名義で201", profileU1, `{"message":"hi"}`, true, nil, http.StatusCreated},
		{"自分のuser_idは201", profileU1, `{"user_id":"u1","message":"hi"}`, true, nil, http.StatusCreated},
		{"一般ユーザーの他人名義は403", profileU1, `{"user_id":"u2","message":"hi"}`, false, model.NewForbiddenError("no"), http.StatusForbidden},
		{"管理者の他人名義で未登録ユーザーは404", profileAdmin, `{"user_id":"ghost","message":"hi"}`, false, model.NewUserNotFoundError("ghost"), http.StatusNotFound},
		{"サービスの検証エラーは422", profileU1, `{"message":"hello"}`, true, model.NewValidationError("invalid"), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ensured := false
			users := &mockUserService{
				ensureUserFn: func(ctx context.Context, caller *model.Profile) (*model.User, error) {
					ensured = true
					return caller.ToUser(), nil
				},
			}
			svc := &mockMessageService{
				createFn: func(ctx context.Context, caller *model.Profile, userID, body string) (*model.Message, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					owner := userID
					if owner == "" {
						owner = caller.Sub
					}
					return sampleMessage(1, owner, body), nil
				},
			}
			writes := &mockWriteRecorder{}
			h := NewMessageHandler(svc, users, writes)

			w := httptest.NewRecorder()
			h.Create(w, newRequest(http.MethodPost, "/messages", tt.body, tt.caller, nil))

			assertStatus(t, w, tt.wantStatus)
			if ensured != tt.wantEnsure {
				t.Errorf("EnsureUser called = %v, want %v", ensured, tt.wantEnsure)
			}
			wantWrites := 0
			if tt.err == nil {
				wantWrites = 1
			}
			if len(writes.writes) != wantWrites {
				t.Errorf("writes = %v", writes.writes)
			}
		})
	}
}

func TestMessageHandler_Create_ResponseShape(t *testing.T) {
	svc := &mockMessageService{
		createFn: func(ctx context.Context, caller *model.Profile, userID, body string) (*model.Message, error) {
			return sampleMessage(5, caller.Sub, body), nil
		},
	}
	h := NewMessageHandler(svc, &mockUserService{}, nil)

	w := httptest.NewRecorder()
	h.Create(w, newRequest(http.MethodPost, "/messages", `{"message":"hello"}`, profileU1, nil))

	assertStatus(t, w, http.StatusCreated)
	resp := decodeBody[messageResponse](t, w)
	if resp.ID != 5 || resp.UserID != "u1" || resp.Message != "hello" {
		t.Errorf("response = %+v", resp)
	}
	if resp.User == nil || resp.User.PreferredUsername != "alice" {
		t.Error("caller profile should be embedded as user")
	}
	if resp.Owner != nil {
		t.Error("owner should be omitted when not loaded")
	}
}

func TestMessageHandler_Create_EnsureFailure(t *testing.T) {
	users := &mockUserService{
		ensureUserFn: func(ctx context.Context, caller *model.Profile) (*model.User, error) {
			return nil, context.DeadlineExceeded
		},
	}
	svc := &mockMessageService{
		createFn: func(ctx context.Context, caller *model.Profile, userID, body string) (*model.Message, error) {
			t.Error("Create should not be called when EnsureUser fails")
			return nil, nil
		},
	}
	h := NewMessageHandler(svc, users, nil)

	w := httptest.NewRecorder()
	h.Create(w, newRequest(http.MethodPost, "/messages", `{"message":"hi"}`, profileU1, nil))

	assertStatus(t, w, http.StatusInternalServerError)
	assertErrorCode(t, w, model.ErrCodeInternal)
}

func TestMessageHandler_GetUpdateDelete(t *testing.T) {
	store := map[int64]*model.Message{
		1: sampleMessage(1, "u1", "first"),
	}
	svc := &mockMessageService{
		getFn: func(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error) {
			m, ok := store[id]
			if !ok {
				return nil, model.NewMessageNotFoundError(id)
			}
			if !caller.CanAccess(m.UserID) {
				return nil, model.NewForbiddenError("no")
			}
			return m, nil
		},
		updateFn: func(ctx context.Context, caller *model.Profile, id int64, body string) (*model.Message, error) {
			m, ok := store[id]
			if !ok {
				return nil, model.NewMessageNotFoundError(id)
			}
			if !caller.CanAccess(m.UserID) {
				return nil, model.NewForbiddenError("no")
			}
			m.Message = body
			return m, nil
		},
		deleteFn: func(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error) {
			m, ok := store[id]
			if !ok {
				return nil, model.NewMessageNotFoundError(id)
			}
			if !caller.CanAccess(m.UserID) {
				return nil, model.NewForbiddenError("no")
			}
			delete(store, id)
			return m, nil
		},
	}
	h := NewMessageHandler(svc, &mockUserService{}, nil)
	idParam := map[string]string{"id": "1"}

	t.Run("他人の参照は403", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Get(w, newRequest(http.MethodGet, "/messages/1", "", profileU2, idParam))
		assertStatus(t, w, http.StatusForbidden)
		assertErrorCode(t, w, model.ErrCodeForbidden)
	})

	t.Run("管理者は参照できる", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Get(w, newRequest(http.MethodGet, "/messages/1", "", profileAdmin, idParam))
		assertStatus(t, w, http.StatusOK)
	})

	t.Run("本人が更新", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Update(w, newRequest(http.MethodPut, "/messages/1", `{"message":"edited"}`, profileU1, idParam))
		assertStatus(t, w, http.StatusOK)
		if resp := decodeBody[messageResponse](t, w); resp.Message != "edited" {
			t.Errorf("message = %q, want edited", resp.Message)
		}
	})

	t.Run("更新の不正JSONは422", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Update(w, newRequest(http.MethodPut, "/messages/1", `{`, profileU1, idParam))
		assertStatus(t, w, http.StatusUnprocessableEntity)
	})

	t.Run("本人が削除すると削除前の表現を返す", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Delete(w, newRequest(http.MethodDelete, "/messages/1", "", profileU1, idParam))
		assertStatus(t, w, http.StatusOK)
		if resp := decodeBody[messageResponse](t, w); resp.ID != 1 || resp.Message != "edited" {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("削除後の参照は404", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Get(w, newRequest(http.MethodGet, "/messages/1", "", profileU1, idParam))
		assertStatus(t, w, http.StatusNotFound)
		assertErrorCode(t, w, model.ErrCodeMessageNotFound)
	})
}

func TestMessageHandler_Lists(t *testing.T) {
	listed := sampleMessage(1, "u1", "hi")
	listed.Owner = &model.User{ID: "u1", PreferredUsername: "alice", Email: "a@example.com"}

	svc := &mockMessageService{
		listFn: func(ctx context.Context, caller *model.Profile) ([]*model.Message, error) {
			if !caller.IsAdmin() {
				return nil, model.NewAdminRequiredError()
			}
			return []*model.Message{listed}, nil
		},
		listMineFn: func(ctx context.Context, caller *model.Profile) ([]*model.Message, error) {
			return []*model.Message{listed}, nil
		},
		listByUserFn: func(ctx context.Context, caller *model.Profile, userID string) ([]*model.Message, error) {
			if !caller.IsAdmin() {
				return nil, model.NewAdminRequiredError()
			}
			return nil, nil
		},
	}
	h := NewMessageHandler(svc, &mockUserService{}, nil)

	t.Run("一般ユーザーの全件取得は403", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.List(w, newRequest(http.MethodGet, "/messages", "", profileU1, nil))
		assertStatus(t, w, http.StatusForbidden)
	})

	t.Run("管理者の全件取得はownerを含みuserを含まない", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.List(w, newRequest(http.MethodGet, "/messages", "", profileAdmin, nil))
		assertStatus(t, w, http.StatusOK)
		resp := decodeBody[[]messageResponse](t, w)
		if len(resp) != 1 {
			t.Fatalf("len = %d, want 1", len(resp))
		}
		if resp[0].Owner == nil || resp[0].Owner.Email != "a@example.com" {
			t.Errorf("owner = %+v", resp[0].Owner)
		}
		if resp[0].User != nil {
			t.Error("admin profile must not be embedded for another user's message")
		}
	})

	t.Run("自分の一覧はuserとownerを含む", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListMine(w, newRequest(http.MethodGet, "/messages/me", "", profileU1, nil))
		assertStatus(t, w, http.StatusOK)
		resp := decodeBody[[]messageResponse](t, w)
		if len(resp) != 1 || resp[0].User == nil || resp[0].Owner == nil {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("管理者のユーザー指定一覧が空なら[]", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListByUser(w, newRequest(http.MethodGet, "/messages/by/u9", "", profileAdmin, map[string]string{"userId": "u9"}))
		assertStatus(t, w, http.StatusOK)
		if got := w.Body.String(); got != "[]\n" {
			t.Errorf("body = %q, want []", got)
		}
	})
}
