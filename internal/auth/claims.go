// Package auth は上流のIdPが主張するクレームを取得し、型付きのプロフィールに変換する。
// 署名検証やトークン更新はリバースプロキシ側の責務であり、ここでは行わない。
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// リバースプロキシが注入するヘッダー名。
const (
	HeaderRemoteUser = "X-Remote-User"
	HeaderEmail      = "X-Email"
	HeaderName       = "X-Name"
	HeaderGivenName  = "X-Given-Name"
	HeaderFamilyName = "X-Family-Name"
	HeaderLocale     = "X-Locale"
	HeaderPicture    = "X-Picture"
	HeaderRoles      = "X-Roles"
	HeaderGroups     = "X-Groups"
)

// Claims はIdPが主張する属性の集合。値の型はJSONデコード結果に準ずる。
type Claims map[string]any

// ErrNoClaims はリクエストにクレームが存在しないことを表す。
var ErrNoClaims = errors.New("no identity claims present")

// ErrInvalidToken はBearerトークンが解析できないか、発行者が一致しないことを表す。
var ErrInvalidToken = errors.New("invalid bearer token")

// ClaimsFromHeaders はリバースプロキシが注入したヘッダーからクレームを組み立てる。
// X-Remote-Userが無い場合はnilを返す。
func ClaimsFromHeaders(h http.Header) Claims {
	remoteUser := strings.TrimSpace(h.Get(HeaderRemoteUser))
	if remoteUser == "" {
		return nil
	}

	claims := Claims{
		"sub":                remoteUser,
		"preferred_username": remoteUser,
		"roles":              splitList(h.Get(HeaderRoles)),
		"groups":             splitList(h.Get(HeaderGroups)),
	}

	optional := map[string]string{
		"email":       HeaderEmail,
		"name":        HeaderName,
		"given_name":  HeaderGivenName,
		"family_name": HeaderFamilyName,
		"locale":      HeaderLocale,
		"picture":     HeaderPicture,
	}
	for claim, header := range optional {
		if v := strings.TrimSpace(h.Get(header)); v != "" {
			claims[claim] = v
		}
	}

	return claims
}

// ClaimsFromBearer はAuthorizationヘッダーのBearerトークンからクレームを取り出す。
// 署名は上流で検証済みとしてParseUnverifiedで読み取る。
// issuerが空でなければissクレームの一致を要求する。
// Authorizationヘッダーが無い場合はnil, nilを返す。
func ClaimsFromBearer(authorization, issuer string) (Claims, error) {
	if authorization == "" {
		return nil, nil
	}

	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), mapClaims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if issuer != "" {
		iss, err := mapClaims.GetIssuer()
		if err != nil || strings.TrimRight(iss, "/") != strings.TrimRight(issuer, "/") {
			return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, iss)
		}
	}

	return Claims(mapClaims), nil
}

// splitList はカンマ区切りの値を空要素を除いたスライスに変換する。
func splitList(raw string) []string {
	items := []string{}
	for part := range strings.SplitSeq(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			items = append(items, v)
		}
	}
	return items
}
