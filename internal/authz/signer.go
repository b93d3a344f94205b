package authz

import (
	"errors"
	"time"

	"chatcore/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues HS256 tokens accepted by HMACValidator. It exists for local
// development and tests; production tokens come from the auth service.
type Signer struct {
	secret []byte
	Issuer string
}

func NewSigner(secret, issuer string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("authz: signer secret is required")
	}
	return &Signer{secret: []byte(secret), Issuer: issuer}, nil
}

// Issue signs a token for userID valid for ttl, merged with extra claims.
func (s *Signer) Issue(userID domain.UserID, ttl time.Duration, extra map[string]any) (string, error) {
	now := time.Now()
	m := jwt.MapClaims{}
	for k, v := range extra {
		m[k] = v
	}
	m["sub"] = userID.String()
	m["iat"] = now.Unix()
	m["exp"] = now.Add(ttl).Unix()
	if s.Issuer != "" {
		m["iss"] = s.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, m).SignedString(s.secret)
}
