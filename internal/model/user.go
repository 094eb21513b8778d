// Package model はドメインモデルを定義する。
package model

import "slices"

// RoleAdmin は全リソースへのアクセスを許可するロール名。
const RoleAdmin = "admin"

// User はサービス利用ユーザーを表す。
// IDはIdPが払い出すsubjectをそのまま使用し、サービス側では生成しない。
type User struct {
	ID                string
	PreferredUsername string
	Email             string
}

// Profile は上流のIdPが主張するクレームを型付けしたものを表す。
// 永続化はせず、リクエストごとに解決する。
type Profile struct {
	Sub               string         `json:"sub"`
	PreferredUsername string         `json:"preferred_username,omitempty"`
	Email             string         `json:"email,omitempty"`
	GivenName         string         `json:"given_name,omitempty"`
	FamilyName        string         `json:"family_name,omitempty"`
	Name              string         `json:"name,omitempty"`
	Picture           string         `json:"picture,omitempty"`
	Locale            string         `json:"locale,omitempty"`
	Roles             []string       `json:"roles"`
	Groups            []string       `json:"groups"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// HasRole は指定ロールを保持しているかを判定する。
func (p *Profile) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}

// IsAdmin は管理者ロールを保持しているかを判定する。
func (p *Profile) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// CanAccess はownerIDのリソースに対する操作が許可されるかを判定する。
// 所有者本人または管理者のみ許可する。
func (p *Profile) CanAccess(ownerID string) bool {
	if p == nil {
		return false
	}
	return ownerID == p.Sub || p.IsAdmin()
}

// ToUser はプロフィールから永続化用のUserを組み立てる。
func (p *Profile) ToUser() *User {
	return &User{
		ID:                p.Sub,
		PreferredUsername: p.PreferredUsername,
		Email:             p.Email,
	}
}
