// Package message はメッセージ投稿のドメインロジックを提供する。
package message

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/universal/internal/model"
	"github.com/hitoshi/universal/internal/repository"
)

// OwnerFinder は所有ユーザーの存在確認に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type OwnerFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Service はメッセージのサービス層。
type Service struct {
	users    OwnerFinder
	messages repository.MessageRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users OwnerFinder, messages repository.MessageRepository) *Service {
	return &Service{
		users:    users,
		messages: messages,
	}
}

// Create はuserIDを所有者とするメッセージを作成する。
// userIDが空の場合は呼び出し元を所有者とする。他人名義の投稿は管理者のみ。
// 所有ユーザーが存在しない場合はUSER_NOT_FOUNDを返し、行は作成しない。
// 本文は加工せずにそのまま保存する。
func (s *Service) Create(ctx context.Context, caller *model.Profile, userID, body string) (*model.Message, error) {
	if userID == "" {
		userID = caller.Sub
	}
	if !caller.CanAccess(userID) {
		return nil, model.NewForbiddenError("Not authorized to post as this user")
	}

	owner, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("所有ユーザーの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	msg, err := s.messages.Create(ctx, owner.ID, body)
	if err != nil {
		return nil, fmt.Errorf("メッセージの作成に失敗しました: %w", err)
	}

	slog.Info("message created",
		slog.Int64("message_id", msg.ID),
		slog.String("user_id", owner.ID),
	)
	return msg, nil
}

// Get は指定メッセージを取得する。所有者または管理者のみ。
func (s *Service) Get(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error) {
	msg, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(msg.UserID) {
		return nil, model.NewForbiddenError("Not authorized to access this message")
	}
	return msg, nil
}

// List は全メッセージを返す。管理者のみ。
func (s *Service) List(ctx context.Context, caller *model.Profile) ([]*model.Message, error) {
	if !caller.IsAdmin() {
		return nil, model.NewAdminRequiredError()
	}

	msgs, err := s.messages.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	return msgs, nil
}

// ListMine は呼び出し元のメッセージを返す。
func (s *Service) ListMine(ctx context.Context, caller *model.Profile) ([]*model.Message, error) {
	return s.listByUser(ctx, caller.Sub)
}

// ListByUser は指定ユーザーのメッセージを返す。管理者のみ。
func (s *Service) ListByUser(ctx context.Context, caller *model.Profile, userID string) ([]*model.Message, error) {
	if !caller.IsAdmin() {
		return nil, model.NewAdminRequiredError()
	}
	return s.listByUser(ctx, userID)
}

// Update は本文を書き換える。所有者または管理者のみ。
func (s *Service) Update(ctx context.Context, caller *model.Profile, id int64, body string) (*model.Message, error) {
	msg, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(msg.UserID) {
		return nil, model.NewForbiddenError("Not authorized to update this message")
	}

	updated, err := s.messages.Update(ctx, id, body)
	if err != nil {
		return nil, fmt.Errorf("メッセージの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewMessageNotFoundError(id)
	}
	return updated, nil
}

// Delete は指定メッセージを削除し、削除前の表現を返す。所有者または管理者のみ。
func (s *Service) Delete(ctx context.Context, caller *model.Profile, id int64) (*model.Message, error) {
	msg, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(msg.UserID) {
		return nil, model.NewForbiddenError("Not authorized to delete this message")
	}

	deleted, err := s.messages.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("メッセージの削除に失敗しました: %w", err)
	}
	if !deleted {
		return nil, model.NewMessageNotFoundError(id)
	}

	slog.Info("message deleted",
		slog.Int64("message_id", id),
		slog.String("user_id", caller.Sub),
	)
	return msg, nil
}

func (s *Service) find(ctx context.Context, id int64) (*model.Message, error) {
	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	if msg == nil {
		return nil, model.NewMessageNotFoundError(id)
	}
	return msg, nil
}

func (s *Service) listByUser(ctx context.Context, userID string) ([]*model.Message, error) {
	msgs, err := s.messages.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	return msgs, nil
}
