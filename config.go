package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Default TTLs match the values the web client was built against.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultMagicLinkTTL    = 15 * time.Minute
)

// Config carries the process-wide signing and expiration settings. It is read
// once at startup and passed to constructors; nothing in this package reads
// configuration from globals.
type Config struct {
	// SigningKey is the HMAC secret used for every token this process issues.
	SigningKey string
	// Issuer is stamped into the iss claim when set.
	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	MagicLinkTTL    time.Duration

	// SecureCookies marks the refresh cookie Secure. Off for local HTTP dev.
	SecureCookies bool

	// AppURL is the web client base URL embedded in emailed links.
	AppURL string
}

// WithDefaults returns a copy with zero TTLs replaced by package defaults.
func (c Config) WithDefaults() Config {
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.MagicLinkTTL == 0 {
		c.MagicLinkTTL = DefaultMagicLinkTTL
	}
	return c
}

// Validate rejects configurations we cannot operate with.
func (c Config) Validate() error {
	if c.SigningKey == "" {
		return goerrors.New("config requires a signing key", goerrors.CategoryValidation)
	}
	if c.AccessTokenTTL < 0 || c.RefreshTokenTTL < 0 || c.MagicLinkTTL < 0 {
		return goerrors.New("config TTLs must be non-negative", goerrors.CategoryValidation)
	}
	return nil
}
