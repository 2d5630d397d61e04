package auth

import (
	"errors"
	"net/http"
	"strings"
)

const (
	// AccessTokenCookie holds the access token for browser clients.
	AccessTokenCookie = "accessToken"
	// RefreshTokenCookie holds the refresh token for browser clients.
	RefreshTokenCookie = "refreshToken"

	accessTokenQueryParam = "access_token"
	bearerPrefix          = "Bearer "
)

var (
	ErrMissingTokenValidator = errors.New("session validator: token validator required")
	ErrMissingSessionToken   = errors.New("session validator: token required")
)

// AccessTokenValidator validates tokens of a given kind.
type AccessTokenValidator interface {
	Validate(kind TokenKind, token string) (TokenClaims, error)
}

// SessionValidatorConfig describes where access tokens are read from.
type SessionValidatorConfig struct {
	Tokens     AccessTokenValidator
	CookieName string
}

// SessionValidator resolves access token claims from incoming requests.
type SessionValidator struct {
	tokens     AccessTokenValidator
	cookieName string
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Tokens == nil {
		return nil, ErrMissingTokenValidator
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = AccessTokenCookie
	}
	return &SessionValidator{
		tokens:     cfg.Tokens,
		cookieName: cookieName,
	}, nil
}

// CookieName returns the cookie name consulted first for access tokens.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateRequest extracts an access token from the request and validates it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (TokenClaims, error) {
	token := ExtractAccessToken(r, v.cookieName)
	if token == "" {
		return TokenClaims{}, ErrMissingSessionToken
	}
	return v.tokens.Validate(TokenKindAccess, token)
}

// ExtractAccessToken reads the token from the cookie, the bearer header, or the access_token query parameter, in that order.
func ExtractAccessToken(r *http.Request, cookieName string) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil && cookie != nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		if value := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)); value != "" {
			return value
		}
	}
	if r.URL != nil {
		return strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam))
	}
	return ""
}
