package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/universal/internal/model"
)

const messageColumns = `id, user_id, message, created_at, updated_at`

// messageListQuery は所有ユーザーをJOINで同時に読み込む。
const messageListQuery = `SELECT m.id, m.user_id, m.message, m.created_at, m.updated_at,
	u.preferred_username AS owner_preferred_username, u.email AS owner_email
	FROM messages m
	JOIN users u ON u.id = m.user_id`

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sqlx.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sqlx.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create はメッセージを作成し、採番されたIDとタイムスタンプを含めて返す。
func (r *PostgresMessageRepo) Create(ctx context.Context, userID, body string) (*model.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO messages (user_id, message)
		 VALUES ($1, $2)
		 RETURNING `+messageColumns,
		userID, body,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return row.toModel(), nil
}

// FindByID は指定IDのメッセージを取得する。見つからない場合はnilを返す。
func (r *PostgresMessageRepo) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by ID: %w", err)
	}
	return row.toModel(), nil
}

// List は全メッセージを所有ユーザー付きで返す。
func (r *PostgresMessageRepo) List(ctx context.Context) ([]*model.Message, error) {
	return r.list(ctx, messageListQuery+` ORDER BY m.id`)
}

// ListByUserID は指定ユーザーのメッセージを所有ユーザー付きで返す。
func (r *PostgresMessageRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Message, error) {
	return r.list(ctx, messageListQuery+` WHERE m.user_id = $1 ORDER BY m.id`, userID)
}

func (r *PostgresMessageRepo) list(ctx context.Context, query string, args ...any) ([]*model.Message, error) {
	var rows []messageWithOwnerRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]*model.Message, 0, len(rows))
	for _, row := range rows {
		m := row.messageRow.toModel()
		m.Owner = row.ownerColumns.toModel(row.UserID)
		messages = append(messages, m)
	}
	return messages, nil
}

// Update は本文を書き換えupdated_atを更新する。見つからない場合はnilを返す。
func (r *PostgresMessageRepo) Update(ctx context.Context, id int64, body string) (*model.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE messages SET message = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+messageColumns,
		id, body,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return row.toModel(), nil
}

// Delete は指定IDのメッセージを削除する。削除できた場合にtrueを返す。
func (r *PostgresMessageRepo) Delete(ctx context.Context, id int64) (bool, error) {
	return deleteByID(ctx, r.db, `DELETE FROM messages WHERE id = $1`, id)
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
