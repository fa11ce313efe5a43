package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind selects the signing secret and lifetime policy of a token
type TokenKind string

const (
	TokenKindSession    TokenKind = "session"
	TokenKindActivation TokenKind = "activation"
	TokenKindReset      TokenKind = "reset"
)

// TokenClaims is the payload shared by all token kinds. Fields a kind does not use stay empty.
type TokenClaims struct {
	Type      TokenKind `json:"type"`
	Email     string    `json:"email"`
	AccountID string    `json:"id,omitempty"`
	Variant   Variant   `json:"userType,omitempty"`
	jwt.RegisteredClaims
}
