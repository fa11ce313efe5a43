package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/agrirent/agrirent/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenConfig holds one signing secret per token kind and the lifetimes of the expiring kinds
type TokenConfig struct {
	SessionSecret    string
	ActivationSecret string
	ResetSecret      string
	SessionTTL       time.Duration
	ResetTTL         time.Duration
	Now              func() time.Time // defaults to time.Now
}

// TokenManager issues and verifies session, activation and reset tokens
type TokenManager struct {
	secrets    map[models.TokenKind][]byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

func NewTokenManager(cfg TokenConfig) *TokenManager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		secrets: map[models.TokenKind][]byte{
			models.TokenKindSession:    []byte(cfg.SessionSecret),
			models.TokenKindActivation: []byte(cfg.ActivationSecret),
			models.TokenKindReset:      []byte(cfg.ResetSecret),
		},
		sessionTTL: cfg.SessionTTL,
		resetTTL:   cfg.ResetTTL,
		now:        now,
	}
}

// ResetTTL is the lifetime of reset tokens and of the stored reset expiry
func (tm *TokenManager) ResetTTL() time.Duration {
	return tm.resetTTL
}

// Issue signs claims for kind with exp set to now+ttl. A ttl of zero or less yields an
// already expired token.
func (tm *TokenManager) Issue(kind models.TokenKind, claims models.TokenClaims, ttl time.Duration) (string, error) {
	now := tm.now()
	return tm.sign(kind, claims, now, jwt.NewNumericDate(now.Add(ttl)))
}

// sign stamps kind, jti and iat onto claims. A nil expires leaves exp unset.
func (tm *TokenManager) sign(kind models.TokenKind, claims models.TokenClaims, now time.Time, expires *jwt.NumericDate) (string, error) {
	secret, ok := tm.secrets[kind]
	if !ok || len(secret) == 0 {
		return "", fmt.Errorf("no secret configured for %s tokens", kind)
	}

	claims.Type = kind
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: expires,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, expiry and kind. Every failure is models.ErrInvalidOrExpired.
func (tm *TokenManager) Verify(kind models.TokenKind, tokenString string) (*models.TokenClaims, error) {
	secret, ok := tm.secrets[kind]
	if !ok || len(secret) == 0 || tokenString == "" {
		return nil, models.ErrInvalidOrExpired
	}

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil || !token.Valid {
		return nil, errors.Join(models.ErrInvalidOrExpired, err)
	}

	if claims.Type != kind || claims.Email == "" {
		return nil, models.ErrInvalidOrExpired
	}
	switch kind {
	case models.TokenKindSession:
		if claims.AccountID == "" || claims.Variant == "" {
			return nil, models.ErrInvalidOrExpired
		}
	case models.TokenKindReset:
		if claims.Variant == "" {
			return nil, models.ErrInvalidOrExpired
		}
	}

	return claims, nil
}

// IssueSession creates the bearer token returned by signin
func (tm *TokenManager) IssueSession(account *models.Account) (string, error) {
	return tm.Issue(models.TokenKindSession, models.TokenClaims{
		Email:     account.Email,
		AccountID: account.ID,
		Variant:   account.Variant,
	}, tm.sessionTTL)
}

// IssueActivation creates a non-expiring activation token. Its single use is enforced by the stored copy.
func (tm *TokenManager) IssueActivation(email string, variant models.Variant) (string, error) {
	return tm.sign(models.TokenKindActivation, models.TokenClaims{
		Email:   email,
		Variant: variant,
	}, tm.now(), nil)
}

// IssueReset creates a reset token and returns the expiry to persist next to it
func (tm *TokenManager) IssueReset(email string, variant models.Variant) (string, time.Time, error) {
	expires := tm.now().Add(tm.resetTTL)
	token, err := tm.Issue(models.TokenKindReset, models.TokenClaims{
		Email:   email,
		Variant: variant,
	}, tm.resetTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}
