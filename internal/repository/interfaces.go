// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/universal/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// List は全ユーザーをID順に返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) (*model.User, error)

	// GetOrCreate は既存ユーザーを返し、存在しなければ作成する。
	// 既存ユーザーの属性は上書きしない。
	GetOrCreate(ctx context.Context, user *model.User) (*model.User, error)

	// Update は表示名とメールアドレスを書き換える。見つからない場合はnilを返す。
	Update(ctx context.Context, user *model.User) (*model.User, error)

	// Delete は指定IDのユーザーを削除する。削除できた場合にtrueを返す。
	// 関連するmessages、mapsはCASCADE削除される。
	Delete(ctx context.Context, id string) (bool, error)
}

// MessageRepository はメッセージデータの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを作成し、採番されたIDとタイムスタンプを含めて返す。
	Create(ctx context.Context, userID, body string) (*model.Message, error)

	// FindByID は指定IDのメッセージを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Message, error)

	// List は全メッセージを所有ユーザー付きで返す。
	List(ctx context.Context) ([]*model.Message, error)

	// ListByUserID は指定ユーザーのメッセージを所有ユーザー付きで返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Message, error)

	// Update は本文を書き換えupdated_atを更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id int64, body string) (*model.Message, error)

	// Delete は指定IDのメッセージを削除する。削除できた場合にtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)
}

// MapRepository は地図データの永続化インターフェース。
type MapRepository interface {
	// Create は地図を作成し、採番されたIDとタイムスタンプを含めて返す。
	Create(ctx context.Context, userID string, fields model.MapFields) (*model.Map, error)

	// FindByID は指定IDの地図を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Map, error)

	// List は全地図を所有ユーザー付きで返す。
	List(ctx context.Context) ([]*model.Map, error)

	// ListByUserID は指定ユーザーの地図を所有ユーザー付きで返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Map, error)

	// Update は可変フィールドをすべて書き換える。見つからない場合はnilを返す。
	Update(ctx context.Context, id int64, fields model.MapFields) (*model.Map, error)

	// UpdateOwned はuser_idが一致する場合のみ更新する。
	// 所有者確認と書き込みを1文で行い、該当行がなければnilを返す。
	UpdateOwned(ctx context.Context, id int64, userID string, fields model.MapFields) (*model.Map, error)

	// Delete は指定IDの地図を削除する。削除できた場合にtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)
}
