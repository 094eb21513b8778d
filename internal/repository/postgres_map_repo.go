package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/universal/internal/model"
)

const mapColumns = `id, user_id, name, description, state, created_at, updated_at`

// mapListQuery は所有ユーザーをJOINで同時に読み込む。
const mapListQuery = `SELECT m.id, m.user_id, m.name, m.description, m.state, m.created_at, m.updated_at,
	u.preferred_username AS owner_preferred_username, u.email AS owner_email
	FROM maps m
	JOIN users u ON u.id = m.user_id`

// PostgresMapRepo はPostgreSQLを使用した地図リポジトリ。
type PostgresMapRepo struct {
	db *sqlx.DB
}

// NewPostgresMapRepo はPostgresMapRepoを生成する。
func NewPostgresMapRepo(db *sqlx.DB) *PostgresMapRepo {
	return &PostgresMapRepo{db: db}
}

// Create は地図を作成し、採番されたIDとタイムスタンプを含めて返す。
func (r *PostgresMapRepo) Create(ctx context.Context, userID string, fields model.MapFields) (*model.Map, error) {
	var row mapRow
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO maps (user_id, name, description, state)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+mapColumns,
		userID, fields.Name, fields.Description, fields.State,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert map: %w", err)
	}
	return row.toModel(), nil
}

// FindByID は指定IDの地図を取得する。見つからない場合はnilを返す。
func (r *PostgresMapRepo) FindByID(ctx context.Context, id int64) (*model.Map, error) {
	var row mapRow
	err := r.db.GetContext(ctx, &row, `SELECT `+mapColumns+` FROM maps WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find map by ID: %w", err)
	}
	return row.toModel(), nil
}

// List は全地図を所有ユーザー付きで返す。
func (r *PostgresMapRepo) List(ctx context.Context) ([]*model.Map, error) {
	return r.list(ctx, mapListQuery+` ORDER BY m.id`)
}

// ListByUserID は指定ユーザーの地図を所有ユーザー付きで返す。
func (r *PostgresMapRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Map, error) {
	return r.list(ctx, mapListQuery+` WHERE m.user_id = $1 ORDER BY m.id`, userID)
}

func (r *PostgresMapRepo) list(ctx context.Context, query string, args ...any) ([]*model.Map, error) {
	var rows []mapWithOwnerRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}

	maps := make([]*model.Map, 0, len(rows))
	for _, row := range rows {
		m := row.mapRow.toModel()
		m.Owner = row.ownerColumns.toModel(row.UserID)
		maps = append(maps, m)
	}
	return maps, nil
}

// Update は可変フィールドをすべて書き換える。見つからない場合はnilを返す。
func (r *PostgresMapRepo) Update(ctx context.Context, id int64, fields model.MapFields) (*model.Map, error) {
	var row mapRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE maps SET name = $2, description = $3, state = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+mapColumns,
		id, fields.Name, fields.Description, fields.State,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update map: %w", err)
	}
	return row.toModel(), nil
}

// UpdateOwned はuser_idが一致する場合のみ更新する。該当行がなければnilを返す。
func (r *PostgresMapRepo) UpdateOwned(ctx context.Context, id int64, userID string, fields model.MapFields) (*model.Map, error) {
	var row mapRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE maps SET name = $3, description = $4, state = $5, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+mapColumns,
		id, userID, fields.Name, fields.Description, fields.State,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update owned map: %w", err)
	}
	return row.toModel(), nil
}

// Delete は指定IDの地図を削除する。削除できた場合にtrueを返す。
func (r *PostgresMapRepo) Delete(ctx context.Context, id int64) (bool, error) {
	return deleteByID(ctx, r.db, `DELETE FROM maps WHERE id = $1`, id)
}

// compile-time interface check
var _ MapRepository = (*PostgresMapRepo)(nil)
