package authz

import (
	"context"
	"fmt"

	"chatcore/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type HMACValidator struct {
	secret []byte
	issuer string
}

func NewHMACValidator(secret, issuer string) *HMACValidator {
	return &HMACValidator{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (h *HMACValidator) Method() string { return "hmac" }

func (h *HMACValidator) Validate(_ context.Context, raw string) (domain.UserID, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		// HS* only
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
		}
		return h.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	if iss, _ := claims["iss"].(string); iss != "" && h.issuer != "" && iss != h.issuer {
		return uuid.Nil, ErrIssuerMismatch
	}
	sub, _ := claims["sub"].(string)
	return subjectToUserID(sub)
}
