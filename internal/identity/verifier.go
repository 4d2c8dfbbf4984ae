package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jkoski/splitsecond/internal/models"
)

// ErrInvalidToken covers every verification failure; callers fall back to
// the client-declared identity.
var ErrInvalidToken = errors.New("invalid identity token")

// Claims are the identity claims carried in a player token.
type Claims struct {
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 player tokens issued by the identity provider.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier sharing the provider's signing secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and validates the token. The returned player is marked
// verified; any failure returns ErrInvalidToken.
func (v *JWTVerifier) Verify(_ context.Context, token string) (models.Player, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.Player{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return models.Player{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	name := claims.DisplayName
	if name == "" {
		name = claims.Subject
	}
	return models.Player{ID: claims.Subject, DisplayName: name, Verified: true}, nil
}
