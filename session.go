package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// RefreshCookieName is the cookie the refresh token travels in.
const RefreshCookieName = "refresh_token"

// TokenPair is a freshly minted access/refresh pair. The refresh token is
// excluded from JSON: it reaches clients only through the cookie.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
	TokenType    string `json:"token_type"`
}

// SessionIssuer mints access/refresh token pairs and rotates them. Refresh
// tokens are self-contained: rotation validates the presented token and
// re-reads the user, no server-side session record is kept.
type SessionIssuer struct {
	tokens *TokenService
	repo   RepositoryManager
	cfg    Config
	logger Logger
}

func NewSessionIssuer(tokens *TokenService, repo RepositoryManager, cfg Config) *SessionIssuer {
	return &SessionIssuer{
		tokens: tokens,
		repo:   repo,
		cfg:    cfg.WithDefaults(),
		logger: defLogger{},
	}
}

func (si *SessionIssuer) WithLogger(l Logger) *SessionIssuer {
	if l != nil {
		si.logger = l
	}
	return si
}

// IssuePair mints a new access/refresh pair for the user. Both tokens carry the
// user ID as subject and the email claim; they differ in type and lifetime.
func (si *SessionIssuer) IssuePair(user *User) (*TokenPair, error) {
	access, err := si.tokens.Issue(user.ID.String(), user.Email, TokenTypeAccess, si.cfg.AccessTokenTTL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint access token")
	}

	refresh, err := si.tokens.Issue(user.ID.String(), user.Email, TokenTypeRefresh, si.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint refresh token")
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

// Rotate validates a presented refresh token and mints a replacement pair. The
// old refresh token is not revoked; it simply ages out at its embedded expiry.
func (si *SessionIssuer) Rotate(ctx context.Context, refreshToken string) (*TokenPair, *User, error) {
	if refreshToken == "" {
		return nil, nil, ErrMissingToken
	}

	claims, err := si.tokens.Decode(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if err := claims.RequireType(TokenTypeRefresh); err != nil {
		return nil, nil, err
	}

	user, err := si.repo.Users().GetByEmailExact(ctx, claims.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			si.logger.Debug("refresh token for unknown email: %s", claims.Email)
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during token rotation")
	}

	pair, err := si.IssuePair(user)
	if err != nil {
		return nil, nil, err
	}

	return pair, user, nil
}

// RefreshCookie wraps a refresh token in the cookie clients send back to the
// refresh endpoint. HTTP-only and lax so scripts never read it and top-level
// navigation still carries it.
func (si *SessionIssuer) RefreshCookie(refreshToken string) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(si.cfg.RefreshTokenTTL / time.Second),
		HTTPOnly: true,
		Secure:   si.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

// ClearRefreshCookie expires the refresh cookie, for logout.
func (si *SessionIssuer) ClearRefreshCookie() *fiber.Cookie {
	return &fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   si.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}
