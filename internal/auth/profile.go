package auth

import (
	"fmt"
	"slices"

	"github.com/hitoshi/universal/internal/model"
)

// ProfileError は必須クレームの欠落または型不正を表す。
type ProfileError struct {
	Claim  string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ProfileError) Error() string {
	return fmt.Sprintf("invalid claim %q: %s", e.Claim, e.Reason)
}

// knownClaims はProfileの型付きフィールドに変換されるクレーム。残りはExtraに入る。
var knownClaims = map[string]bool{
	"sub": true, "preferred_username": true, "email": true,
	"given_name": true, "family_name": true, "name": true,
	"picture": true, "locale": true,
	"roles": true, "groups": true,
	"realm_access": true, "resource_access": true,
}

// ParseProfile はクレームをmodel.Profileに変換する。
// subは必須で空文字列を許さない。ロールやグループの型が不正な場合もエラーとし、
// 既定値で補うことはしない。
// clientIDが空でなければresource_access.<clientID>.rolesもロールに含める。
func ParseProfile(claims Claims, clientID string) (*model.Profile, error) {
	if len(claims) == 0 {
		return nil, ErrNoClaims
	}

	sub, err := requiredString(claims, "sub")
	if err != nil {
		return nil, err
	}

	p := &model.Profile{Sub: sub}
	stringFields := []struct {
		claim string
		dst   *string
	}{
		{"preferred_username", &p.PreferredUsername},
		{"email", &p.Email},
		{"given_name", &p.GivenName},
		{"family_name", &p.FamilyName},
		{"name", &p.Name},
		{"picture", &p.Picture},
		{"locale", &p.Locale},
	}
	for _, f := range stringFields {
		v, err := optionalString(claims, f.claim)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	roles, err := collectRoles(claims, clientID)
	if err != nil {
		return nil, err
	}
	p.Roles = roles

	groups, err := stringList(claims["groups"], "groups")
	if err != nil {
		return nil, err
	}
	p.Groups = groups

	for k, v := range claims {
		if knownClaims[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = v
	}

	return p, nil
}

func requiredString(claims Claims, key string) (string, error) {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return "", &ProfileError{Claim: key, Reason: "missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ProfileError{Claim: key, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	if s == "" {
		return "", &ProfileError{Claim: key, Reason: "empty"}
	}
	return s, nil
}

func optionalString(claims Claims, key string) (string, error) {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ProfileError{Claim: key, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	return s, nil
}

// collectRoles はトップレベルのroles、realm_access.roles、resource_access.<clientID>.rolesを
// 重複なく結合する。
func collectRoles(claims Claims, clientID string) ([]string, error) {
	roles, err := stringList(claims["roles"], "roles")
	if err != nil {
		return nil, err
	}

	realmRoles, err := nestedRoles(claims["realm_access"], "realm_access")
	if err != nil {
		return nil, err
	}
	roles = append(roles, realmRoles...)

	if clientID != "" && claims["resource_access"] != nil {
		access, ok := claims["resource_access"].(map[string]any)
		if !ok {
			return nil, &ProfileError{Claim: "resource_access", Reason: "expected object"}
		}
		clientRoles, err := nestedRoles(access[clientID], "resource_access."+clientID)
		if err != nil {
			return nil, err
		}
		roles = append(roles, clientRoles...)
	}

	slices.Sort(roles)
	return slices.Compact(roles), nil
}

// nestedRoles は {"roles": [...]} 形式のオブジェクトからロールを取り出す。
func nestedRoles(raw any, claim string) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &ProfileError{Claim: claim, Reason: "expected object"}
	}
	return stringList(obj["roles"], claim+".roles")
}

// stringList は[]stringまたは文字列のみを含む[]anyを受け付ける。未設定は空スライス。
func stringList(raw any, claim string) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return slices.Clone(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &ProfileError{Claim: claim, Reason: fmt.Sprintf("expected string element, got %T", item)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &ProfileError{Claim: claim, Reason: fmt.Sprintf("expected list, got %T", raw)}
	}
}
