package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RoomClaims is a room-scoped access token.
type RoomClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// JWTValidator accepts HMAC-signed tokens whose room claim matches.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator returns a validator for tokens signed with secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate reports whether token is a valid, unexpired token for roomCode.
// A malformed or foreign token is a rejection, not an error.
func (v *JWTValidator) Validate(_ context.Context, token, roomCode string) (bool, error) {
	if token == "" {
		return false, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &RoomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		// Every parse failure is a property of the token, not of the validator.
		return false, nil
	}

	claims, ok := parsed.Claims.(*RoomClaims)
	if !ok || !parsed.Valid {
		return false, nil
	}
	return claims.Room == roomCode, nil
}

// Issue signs a room token with the validator's secret.
func (v *JWTValidator) Issue(claims RoomClaims) (string, error) {
	if claims.Room == "" {
		return "", errors.New("room claim required")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
