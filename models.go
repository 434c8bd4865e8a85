package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the credential record. A user has at most one outstanding magic-link
// token; issuing a new one overwrites the prior value, and verification clears
// it exactly once.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName          string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName           string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Organization       string     `bun:"organization" json:"organization,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"-"`
	Verified           bool       `bun:"is_verified" json:"is_verified"`
	MagicLinkToken     string     `bun:"magic_link_token,nullzero" json:"-"`
	MagicLinkExpiresAt *time.Time `bun:"magic_link_expires_at,nullzero" json:"-"`
	LastLoginAt        *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// PublicUser is the client-facing view of a user record. Password digests and
// magic-link state never leave the process.
type PublicUser struct {
	ID           uuid.UUID  `json:"id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Organization string     `json:"organization,omitempty"`
	Verified     bool       `json:"is_verified"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// Public returns the client-facing view of the record.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Organization: u.Organization,
		Verified:     u.Verified,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
	}
}

// HasMagicLink reports whether the record holds an outstanding magic-link token.
func (u *User) HasMagicLink() bool {
	return u != nil && u.MagicLinkToken != ""
}
