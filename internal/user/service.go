// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/universal/internal/model"
	"github.com/hitoshi/universal/internal/repository"
)

// maxFieldLength はusersテーブルのVARCHAR列の上限。
const maxFieldLength = 255

// Fields はユーザーの可変フィールド。更新時はすべて書き換える。
type Fields struct {
	PreferredUsername string
	Email             string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// EnsureUser は呼び出し元のユーザーを取得し、存在しなければプロフィールから作成する。
func (s *Service) EnsureUser(ctx context.Context, caller *model.Profile) (*model.User, error) {
	if caller == nil {
		return nil, model.NewUnauthenticatedError("Not authenticated")
	}

	user, err := s.userRepo.GetOrCreate(ctx, caller.ToUser())
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得または作成に失敗しました: %w", err)
	}
	return user, nil
}

// Get は指定ユーザーを取得する。本人または管理者のみ参照できる。
func (s *Service) Get(ctx context.Context, caller *model.Profile, id string) (*model.User, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(user.ID) {
		return nil, model.NewForbiddenError("Not authorized to access this user")
	}
	return user, nil
}

// List は全ユーザーを返す。管理者のみ。
func (s *Service) List(ctx context.Context, caller *model.Profile) ([]*model.User, error) {
	if !caller.IsAdmin() {
		return nil, model.NewAdminRequiredError()
	}

	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Update は指定ユーザーの表示名とメールアドレスを書き換える。本人または管理者のみ。
func (s *Service) Update(ctx context.Context, caller *model.Profile, id string, fields Fields) (*model.User, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(user.ID) {
		return nil, model.NewForbiddenError("Not authorized to update this user")
	}

	updated, err := s.userRepo.Update(ctx, &model.User{
		ID:                id,
		PreferredUsername: strings.TrimSpace(fields.PreferredUsername),
		Email:             strings.TrimSpace(fields.Email),
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return updated, nil
}

// Delete は指定ユーザーを削除し、削除前の表現を返す。本人または管理者のみ。
// messagesとmapsはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, caller *model.Profile, id string) (*model.User, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(user.ID) {
		return nil, model.NewForbiddenError("Not authorized to delete this user")
	}

	deleted, err := s.userRepo.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if !deleted {
		return nil, model.NewUserNotFoundError(id)
	}

	slog.Info("user deleted",
		slog.String("user_id", id),
		slog.String("deleted_by", caller.Sub),
	)
	return user, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}

func validateFields(fields Fields) error {
	if len(fields.PreferredUsername) > maxFieldLength {
		return model.NewValidationError("preferred_username must be at most 255 characters")
	}
	if len(fields.Email) > maxFieldLength {
		return model.NewValidationError("email must be at most 255 characters")
	}
	if email := strings.TrimSpace(fields.Email); email != "" && !strings.Contains(email, "@") {
		return model.NewValidationError("email is not a valid address")
	}
	return nil
}
