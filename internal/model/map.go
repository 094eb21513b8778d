package model

import "time"

// Map はユーザーが保存した地図の状態を表す。
// Stateは慣例的にJSON文字列だが、永続化層では検証しない。
type Map struct {
	ID          int64
	UserID      string
	Name        string
	Description string
	State       string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Owner は一覧取得時にJOINで読み込まれる所有ユーザー。単体取得ではnil。
	Owner *User
}

// MapFields は地図の可変フィールドをまとめたもの。
// 更新は常に全フィールドを書き換える。
type MapFields struct {
	Name        string
	Description string
	State       string
}
