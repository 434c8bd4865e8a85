package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenType discriminates what an issued token may be used for. Consumers must
// check the decoded type against the operation; Decode itself does not.
type TokenType string

const (
	TokenTypeAccess    TokenType = "access"
	TokenTypeRefresh   TokenType = "refresh"
	TokenTypeMagicLink TokenType = "magic-link"
)

// Claims is the signed claim set carried by every token: subject, email, type,
// issued-at, and expiry. The field names are part of the wire contract with
// clients that decode claims for display.
type Claims struct {
	jwt.RegisteredClaims
	Email     string    `json:"email,omitempty"`
	TokenType TokenType `json:"token_type,omitempty"`
}

// RequireType fails with ErrWrongTokenType unless the claim set carries the
// expected token type.
func (c *Claims) RequireType(expected TokenType) error {
	if c.TokenType != expected {
		return goerrors.New(ErrWrongTokenType.Message, ErrWrongTokenType.Category).
			WithTextCode(ErrWrongTokenType.TextCode).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{
				"expected": string(expected),
				"actual":   string(c.TokenType),
			})
	}
	return nil
}

// TokenService signs and verifies the self-contained tokens used across the
// auth flows. The signing key and issuer are fixed at construction.
type TokenService struct {
	signingKey []byte
	issuer     string
	logger     Logger
}

// NewTokenService creates a TokenService from the process configuration.
func NewTokenService(cfg Config, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		logger:     logger,
	}
}

// Issue mints a signed token embedding subject, email, type, issued-at, and
// expiry (issued-at + ttl). The ttl must be positive: expiry is always strictly
// after issued-at.
func (ts *TokenService) Issue(subject, email string, tokenType TokenType, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", goerrors.New("token TTL must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"ttl": ttl.String()})
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     email,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Decode verifies signature and expiry and returns the structured claims. Any
// malformed, unverifiable, or expired token fails with the invalid-token kind.
func (ts *TokenService) Decode(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService decode encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	})

	if err != nil {
		return nil, goerrors.Wrap(err, ErrInvalidToken.Category, ErrInvalidToken.Message).
			WithTextCode(ErrInvalidToken.TextCode).
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService decode could not map claims")
		return nil, goerrors.New(ErrInvalidToken.Message, ErrInvalidToken.Category).
			WithTextCode(ErrInvalidToken.TextCode).
			WithCode(goerrors.CodeUnauthorized)
	}

	return claims, nil
}

// TokenFromAuthorizationHeader extracts the bearer token from an Authorization
// header value, failing with ErrMissingToken when absent or malformed.
func TokenFromAuthorizationHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}

	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}

	raw := strings.TrimSpace(header[len(prefix):])
	if raw == "" {
		return "", ErrMissingToken
	}

	return raw, nil
}
