// Package mapstate はユーザーが保存する地図状態のドメインロジックを提供する。
package mapstate

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/hitoshi/universal/internal/model"
	"github.com/hitoshi/universal/internal/repository"
)

// maxNameLength はmaps.name列（VARCHAR(255)）の文字数上限。
const maxNameLength = 255

// OwnerFinder は所有ユーザーの存在確認に必要なインターフェース。
type OwnerFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Service は地図のサービス層。
type Service struct {
	users OwnerFinder
	maps  repository.MapRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users OwnerFinder, maps repository.MapRepository) *Service {
	return &Service{
		users: users,
		maps:  maps,
	}
}

// Create は呼び出し元を所有者とする地図を作成する。
// 所有ユーザーが存在しない場合はUSER_NOT_FOUNDを返し、行は作成しない。
func (s *Service) Create(ctx context.Context, caller *model.Profile, fields model.MapFields) (*model.Map, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	owner, err := s.users.FindByID(ctx, caller.Sub)
	if err != nil {
		return nil, fmt.Errorf("所有ユーザーの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError(caller.Sub)
	}

	m, err := s.maps.Create(ctx, owner.ID, fields)
	if err != nil {
		return nil, fmt.Errorf("地図の作成に失敗しました: %w", err)
	}

	slog.Info("map created",
		slog.Int64("map_id", m.ID),
		slog.String("user_id", owner.ID),
	)
	return m, nil
}

// Save はidの有無で作成と更新を切り替える。createdは新規作成した場合にtrue。
//
//   - idなし: 新規作成
//   - idあり、存在しない: MAP_NOT_FOUND
//   - idあり、呼び出し元の所有: 更新
//   - idあり、他人の所有: FORBIDDEN
func (s *Service) Save(ctx context.Context, caller *model.Profile, id *int64, fields model.MapFields) (m *model.Map, created bool, err error) {
	if id == nil {
		m, err = s.Create(ctx, caller, fields)
		return m, err == nil, err
	}

	if err := validateFields(fields); err != nil {
		return nil, false, err
	}

	existing, err := s.find(ctx, *id)
	if err != nil {
		return nil, false, err
	}
	if existing.UserID != caller.Sub {
		return nil, false, model.NewForbiddenError("Not authorized to modify this map")
	}

	// 所有者確認と書き込みを同一文で行い、確認後の削除にも対応する
	updated, err := s.maps.UpdateOwned(ctx, *id, caller.Sub, fields)
	if err != nil {
		return nil, false, fmt.Errorf("地図の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, false, model.NewMapNotFoundError(*id)
	}
	return updated, false, nil
}

// Get は指定地図を取得する。所有者または管理者のみ。
func (s *Service) Get(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error) {
	m, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(m.UserID) {
		return nil, model.NewForbiddenError("Not authorized to access this map")
	}
	return m, nil
}

// List は全地図を返す。管理者のみ。
func (s *Service) List(ctx context.Context, caller *model.Profile) ([]*model.Map, error) {
	if !caller.IsAdmin() {
		return nil, model.NewAdminRequiredError()
	}

	maps, err := s.maps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("地図一覧の取得に失敗しました: %w", err)
	}
	return maps, nil
}

// ListMine は呼び出し元の地図を返す。
func (s *Service) ListMine(ctx context.Context, caller *model.Profile) ([]*model.Map, error) {
	return s.listByUser(ctx, caller.Sub)
}

// ListByUser は指定ユーザーの地図を返す。管理者のみ。
func (s *Service) ListByUser(ctx context.Context, caller *model.Profile, userID string) ([]*model.Map, error) {
	if !caller.IsAdmin() {
		return nil, model.NewAdminRequiredError()
	}
	return s.listByUser(ctx, userID)
}

// Update は可変フィールドをすべて書き換える。所有者または管理者のみ。
// user_idは変更しない。
func (s *Service) Update(ctx context.Context, caller *model.Profile, id int64, fields model.MapFields) (*model.Map, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	m, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(m.UserID) {
		return nil, model.NewForbiddenError("Not authorized to update this map")
	}

	updated, err := s.maps.Update(ctx, id, fields)
	if err != nil {
		return nil, fmt.Errorf("地図の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewMapNotFoundError(id)
	}
	return updated, nil
}

// Delete は指定地図を削除し、削除前の表現を返す。所有者または管理者のみ。
func (s *Service) Delete(ctx context.Context, caller *model.Profile, id int64) (*model.Map, error) {
	m, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(m.UserID) {
		return nil, model.NewForbiddenError("Not authorized to delete this map")
	}

	deleted, err := s.maps.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("地図の削除に失敗しました: %w", err)
	}
	if !deleted {
		return nil, model.NewMapNotFoundError(id)
	}

	slog.Info("map deleted",
		slog.Int64("map_id", id),
		slog.String("user_id", caller.Sub),
	)
	return m, nil
}

func (s *Service) find(ctx context.Context, id int64) (*model.Map, error) {
	m, err := s.maps.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("地図の取得に失敗しました: %w", err)
	}
	if m == nil {
		return nil, model.NewMapNotFoundError(id)
	}
	return m, nil
}

func (s *Service) listByUser(ctx context.Context, userID string) ([]*model.Map, error) {
	maps, err := s.maps.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("地図一覧の取得に失敗しました: %w", err)
	}
	return maps, nil
}

// validateFields は列の制約を超える値を拒否する。値は書き換えずにそのまま保存する。
// stateは不透明な文字列として扱う。
func validateFields(fields model.MapFields) error {
	if utf8.RuneCountInString(fields.Name) > maxNameLength {
		return model.NewValidationError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return nil
}
