package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrSecretTooWeak = errors.New("auth: signing secret too short")
)

const (
	// DefaultTokenTTL matches the session lifetime.
	DefaultTokenTTL = 24 * time.Hour

	minSecretLength = 32
)

// Token is the validated view of an issued JWT.
type Token struct {
	Raw       string
	ID        string
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns how long the token stays valid from now.
func (t Token) Remaining(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

// tokenClaims is the internal claims type used for JWT signing and parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// TokenProvider issues and parses HMAC-signed JWTs. Each token carries a
// unique jti so individual tokens can be revoked.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenProviderConfig wires a TokenProvider.
type TokenProviderConfig struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

// NewTokenProvider validates the secret and builds a provider.
func NewTokenProvider(cfg TokenProviderConfig) (*TokenProvider, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, ErrSecretTooWeak
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenProvider{secret: cfg.Secret, ttl: cfg.TTL, now: cfg.Now}, nil
}

// TTL exposes the configured token lifetime.
func (p *TokenProvider) TTL() time.Duration { return p.ttl }

// Issue signs a token for the given user.
func (p *TokenProvider) Issue(userID, email string) (Token, error) {
	now := p.now().UTC()
	id := uuid.NewString()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		UserID: userID,
		Email:  email,
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{
		Raw:       raw,
		ID:        id,
		UserID:    userID,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: now.Add(p.ttl),
	}, nil
}

// Parse verifies the signature and standard claims of a raw token.
func (p *TokenProvider) Parse(raw string) (Token, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Token{}, ErrTokenExpired
		}
		return Token{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ID == "" || claims.UserID == "" {
		return Token{}, ErrTokenInvalid
	}

	token := Token{Raw: raw, ID: claims.ID, UserID: claims.UserID, Email: claims.Email}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		token.ExpiresAt = claims.ExpiresAt.Time
	}
	return token, nil
}
