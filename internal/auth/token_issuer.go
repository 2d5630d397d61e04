package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 10 * 24 * time.Hour
)

// TokenKind distinguishes short-lived access tokens from long-lived refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	ErrMissingIssuer        = errors.New("auth: issuer must be provided")
	ErrMissingSubject       = errors.New("auth: subject must be provided")
	ErrUnknownTokenKind     = errors.New("auth: unknown token kind")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrExpiredToken         = errors.New("auth: token expired")
)

// TokenIssuerConfig configures access and refresh token signing.
type TokenIssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         func() time.Time
}

// IssuedToken is a signed token together with its identifier and expiry.
type IssuedToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
	TTL       time.Duration
}

// TokenClaims are the validated contents of a token.
type TokenClaims struct {
	UserID    string
	TokenID   string
	Kind      TokenKind
	ExpiresAt time.Time
}

type signedClaims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 tokens. Each kind has its own secret and audience,
// so an access token is never accepted where a refresh token is expected and vice versa.
type TokenIssuer struct {
	secrets map[TokenKind][]byte
	ttls    map[TokenKind]time.Duration
	issuer  string
	clock   func() time.Time
}

// NewTokenIssuer validates configuration and constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		secrets: map[TokenKind][]byte{
			TokenKindAccess:  append([]byte(nil), cfg.AccessSecret...),
			TokenKindRefresh: append([]byte(nil), cfg.RefreshSecret...),
		},
		ttls: map[TokenKind]time.Duration{
			TokenKindAccess:  accessTTL,
			TokenKindRefresh: refreshTTL,
		},
		issuer: issuer,
		clock:  clock,
	}, nil
}

// TTL returns the configured lifetime for the kind.
func (i *TokenIssuer) TTL(kind TokenKind) time.Duration {
	return i.ttls[kind]
}

// Issue signs a token of the given kind for userID.
func (i *TokenIssuer) Issue(kind TokenKind, userID string) (IssuedToken, error) {
	secret, ok := i.secrets[kind]
	if !ok {
		return IssuedToken{}, fmt.Errorf("%w: %q", ErrUnknownTokenKind, kind)
	}
	subject := strings.TrimSpace(userID)
	if subject == "" {
		return IssuedToken{}, ErrMissingSubject
	}

	now := i.clock().UTC()
	ttl := i.ttls[kind]
	expiresAt := now.Add(ttl)
	tokenID := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, signedClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  []string{string(kind)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Value: signed, ID: tokenID, ExpiresAt: expiresAt, TTL: ttl}, nil
}

// Validate checks signature, expiry, issuer and kind, returning the token claims.
func (i *TokenIssuer) Validate(kind TokenKind, tokenString string) (TokenClaims, error) {
	secret, ok := i.secrets[kind]
	if !ok {
		return TokenClaims{}, fmt.Errorf("%w: %q", ErrUnknownTokenKind, kind)
	}
	raw := strings.TrimSpace(tokenString)
	if raw == "" {
		return TokenClaims{}, ErrInvalidToken
	}

	claims := &signedClaims{}
	parsed, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(kind)),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid || claims.Kind != kind {
		return TokenClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, ErrMissingSubject)
	}

	result := TokenClaims{
		UserID:  claims.Subject,
		TokenID: claims.ID,
		Kind:    claims.Kind,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// FingerprintToken returns a SHA-256 base64url digest so tokens can be compared without storing them.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
