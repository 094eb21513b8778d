package repository

import (
	"database/sql"
	"time"

	"github.com/hitoshi/universal/internal/model"
)

// userRow はusersテーブルの1行。preferred_usernameとemailはNULL許容。
type userRow struct {
	ID                string         `db:"id"`
	PreferredUsername sql.NullString `db:"preferred_username"`
	Email             sql.NullString `db:"email"`
}

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:                r.ID,
		PreferredUsername: r.PreferredUsername.String,
		Email:             r.Email.String,
	}
}

// ownerColumns は一覧取得時にJOINで読み込む所有ユーザーの列。
type ownerColumns struct {
	OwnerPreferredUsername sql.NullString `db:"owner_preferred_username"`
	OwnerEmail             sql.NullString `db:"owner_email"`
}

func (o ownerColumns) toModel(userID string) *model.User {
	return &model.User{
		ID:                userID,
		PreferredUsername: o.OwnerPreferredUsername.String,
		Email:             o.OwnerEmail.String,
	}
}

type messageRow struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r messageRow) toModel() *model.Message {
	return &model.Message{
		ID:        r.ID,
		UserID:    r.UserID,
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type messageWithOwnerRow struct {
	messageRow
	ownerColumns
}

type mapRow struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	State       string    `db:"state"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r mapRow) toModel() *model.Map {
	return &model.Map{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		State:       r.State,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type mapWithOwnerRow struct {
	mapRow
	ownerColumns
}

// nullString は空文字列をNULLとして保存する。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
