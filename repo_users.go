package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the credential store contract the auth service consumes. Lookups
// return a record-not-found error when nothing matches; Register surfaces the
// storage unique index as ErrDuplicateEmail.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByEmailExact(ctx context.Context, email string) (*User, error)
	GetByEmailExactTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByMagicLinkToken(ctx context.Context, token string) (*User, error)
	GetByMagicLinkTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	SetMagicLink(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	SetMagicLinkTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id uuid.UUID) error
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository builds the bun-backed credential store.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

// GetByEmailTx looks up a user by email, ignoring case.
func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.selectOne(ctx, tx, "lower(?TableAlias.email) = lower(?)", email, map[string]any{
		"email": email,
	})
}

func (a *users) GetByEmailExact(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailExactTx(ctx, a.db, email)
}

// GetByEmailExactTx looks up a user by the email exactly as stored.
func (a *users) GetByEmailExactTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.selectOne(ctx, tx, "?TableAlias.email = ?", email, map[string]any{
		"email": email,
	})
}

func (a *users) GetByMagicLinkToken(ctx context.Context, token string) (*User, error) {
	return a.GetByMagicLinkTokenTx(ctx, a.db, token)
}

// GetByMagicLinkTokenTx looks up the holder of an outstanding magic-link token.
func (a *users) GetByMagicLinkTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	return a.selectOne(ctx, tx, "lower(?TableAlias.magic_link_token) = lower(?)", token, map[string]any{
		"lookup": "magic_link_token",
	})
}

func (a *users) selectOne(ctx context.Context, tx bun.IDB, where string, value string, meta map[string]any) (*User, error) {
	record := &User{}

	err := tx.NewSelect().
		Model(record).
		Where(where, value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(meta)
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	record, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, ErrDuplicateEmail.Category, ErrDuplicateEmail.Message).
				WithTextCode(ErrDuplicateEmail.TextCode).
				WithMetadata(map[string]any{"email": user.Email})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) SetMagicLink(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return a.SetMagicLinkTx(ctx, a.db, id, token, expiresAt)
}

func (a *users) SetMagicLinkTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"magic_link_token" = ?,
			"magic_link_expires_at" = ?,
			"updated_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, token, expiresAt, time.Now(), id).Exec(ctx)

	return err
}

// MarkVerifiedTx flips the record to verified, clears the magic-link columns,
// and refreshes last_login_at in one statement.
func (a *users) MarkVerified(ctx context.Context, id uuid.UUID) error {
	return a.MarkVerifiedTx(ctx, a.db, id)
}

func (a *users) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	now := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"is_verified" = TRUE,
			"magic_link_token" = NULL,
			"magic_link_expires_at" = NULL,
			"last_login_at" = ?,
			"updated_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, now, now, id).Exec(ctx)

	return err
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, id)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"last_login_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, time.Now(), id).Exec(ctx)

	return err
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"password_hash" = ?,
			"updated_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, passwordHash, time.Now(), id).Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}

// isUniqueViolation matches the unique-index error text of the supported
// drivers (sqlite and postgres). The index is the final arbiter for the
// duplicate-email race between check and insert.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}
