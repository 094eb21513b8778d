package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/universal/internal/model"
)

const userColumns = `id, preferred_username, email`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sqlx.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sqlx.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return row.toModel(), nil
}

// List は全ユーザーをID順に返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toModel())
	}
	return users, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) (*model.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO users (id, preferred_username, email)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		user.ID, nullString(user.PreferredUsername), nullString(user.Email),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return row.toModel(), nil
}

// GetOrCreate は既存ユーザーを返し、存在しなければ作成する。
// 同時作成で競合した場合もON CONFLICTで吸収し、既存行を読み直す。
func (r *PostgresUserRepo) GetOrCreate(ctx context.Context, user *model.User) (*model.User, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, preferred_username, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		user.ID, nullString(user.PreferredUsername), nullString(user.Email),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	found, err := r.FindByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("user disappeared after insert: %s", user.ID)
	}
	return found, nil
}

// Update は表示名とメールアドレスを書き換える。見つからない場合はnilを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) (*model.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE users SET preferred_username = $2, email = $3
		 WHERE id = $1
		 RETURNING `+userColumns,
		user.ID, nullString(user.PreferredUsername), nullString(user.Email),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return row.toModel(), nil
}

// Delete は指定IDのユーザーを削除する。
// 関連するmessages、mapsはCASCADE削除される。
func (r *PostgresUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	return deleteByID(ctx, r.db, `DELETE FROM users WHERE id = $1`, id)
}

// deleteByID は1行削除を実行し、削除できたかどうかを返す。
func deleteByID(ctx context.Context, db *sqlx.DB, query string, id any) (bool, error) {
	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
