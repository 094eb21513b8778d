package model

import "time"

// Message はユーザーが投稿したテキストメッセージを表す。
type Message struct {
	ID        int64
	UserID    string
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Owner は一覧取得時にJOINで読み込まれる所有ユーザー。単体取得ではnil。
	Owner *User
}
