package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatcore/internal/domain"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// JWKSValidator checks asymmetric tokens against the auth service key set.
type JWKSValidator struct {
	jwks   *keyfunc.JWKS
	issuer string
}

func NewJWKSValidator(_ context.Context, jwksURL, issuer string) (*JWKSValidator, error) {
	options := keyfunc.Options{
		RefreshInterval:   time.Minute * 15,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, err
	}
	return &JWKSValidator{jwks: jwks, issuer: issuer}, nil
}

// NewJWKSValidatorFromJSON builds a validator over a static key set.
func NewJWKSValidatorFromJSON(raw json.RawMessage, issuer string) (*JWKSValidator, error) {
	jwks, err := keyfunc.NewJSON(raw)
	if err != nil {
		return nil, err
	}
	return &JWKSValidator{jwks: jwks, issuer: issuer}, nil
}

func (j *JWKSValidator) Method() string { return "jwks" }

func (j *JWKSValidator) Validate(_ context.Context, raw string) (domain.UserID, error) {
	token, err := jwt.Parse(raw, j.jwks.Keyfunc)
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	if iss, _ := claims["iss"].(string); iss != "" && j.issuer != "" && iss != j.issuer {
		return uuid.Nil, ErrIssuerMismatch
	}
	sub, _ := claims["sub"].(string)
	return subjectToUserID(sub)
}

// Close stops background key refreshes.
func (j *JWKSValidator) Close() {
	j.jwks.EndBackground()
}
