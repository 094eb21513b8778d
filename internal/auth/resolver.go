package auth

import (
	"errors"
	"net/http"

	"github.com/hitoshi/universal/internal/model"
)

// Resolver はリクエストから呼び出し元のプロフィールを解決する。
// プロキシが注入したヘッダーを優先し、無ければBearerトークンのクレームを使う。
type Resolver struct {
	issuer   string
	clientID string
}

// NewResolver はResolverを生成する。issuerが空の場合は発行者を検証しない。
func NewResolver(issuer, clientID string) *Resolver {
	return &Resolver{issuer: issuer, clientID: clientID}
}

// Resolve はリクエストのクレームを解決してProfileを返す。
// クレームが無い場合はErrNoClaims、解析に失敗した場合はErrInvalidTokenまたは*ProfileErrorを返す。
func (r *Resolver) Resolve(req *http.Request) (*model.Profile, error) {
	claims := ClaimsFromHeaders(req.Header)
	if claims == nil {
		var err error
		claims, err = ClaimsFromBearer(req.Header.Get("Authorization"), r.issuer)
		if err != nil {
			return nil, err
		}
	}
	if claims == nil {
		return nil, ErrNoClaims
	}
	return ParseProfile(claims, r.clientID)
}

// ToAPIError は解決エラーを401のAPIErrorに変換する。
func ToAPIError(err error) *model.APIError {
	var profileErr *ProfileError
	switch {
	case errors.Is(err, ErrNoClaims):
		return model.NewUnauthenticatedError("Not authenticated")
	case errors.Is(err, ErrInvalidToken):
		return model.NewUnauthenticatedError("Invalid bearer token")
	case errors.As(err, &profileErr):
		return model.NewUnauthenticatedError("Invalid identity claims: " + profileErr.Claim)
	default:
		return model.NewUnauthenticatedError("Not authenticated")
	}
}
