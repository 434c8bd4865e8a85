package auth_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	auth "github.com/judgingapp/auth"
	"github.com/uptrace/bun"
)

// memoryUsers is an in-memory auth.Users used to drive the service flows
// without a database.
type memoryUsers struct {
	mu      sync.Mutex
	records map[uuid.UUID]*auth.User
	// failWith, when set, makes every store operation fail with it.
	failWith error
}

var _ auth.Users = (*memoryUsers)(nil)

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{records: make(map[uuid.UUID]*auth.User)}
}

func (m *memoryUsers) get(id uuid.UUID) *auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.records[id])
}

func cloneUser(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (m *memoryUsers) find(match func(*auth.User) bool, meta map[string]any) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	for _, u := range m.records {
		if u.DeletedAt == nil && match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound().WithMetadata(meta)
}

func (m *memoryUsers) update(id uuid.UUID, apply func(*auth.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	if u, ok := m.records[id]; ok && u.DeletedAt == nil {
		apply(u)
	}
	return nil
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return m.GetByEmailTx(ctx, nil, email)
}

func (m *memoryUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	return m.find(func(u *auth.User) bool {
		return strings.EqualFold(u.Email, email)
	}, map[string]any{"email": email})
}

func (m *memoryUsers) GetByEmailExact(ctx context.Context, email string) (*auth.User, error) {
	return m.GetByEmailExactTx(ctx, nil, email)
}

func (m *memoryUsers) GetByEmailExactTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	return m.find(func(u *auth.User) bool {
		return u.Email == email
	}, map[string]any{"email": email})
}

func (m *memoryUsers) GetByMagicLinkToken(ctx context.Context, token string) (*auth.User, error) {
	return m.GetByMagicLinkTokenTx(ctx, nil, token)
}

func (m *memoryUsers) GetByMagicLinkTokenTx(ctx context.Context, tx bun.IDB, token string) (*auth.User, error) {
	return m.find(func(u *auth.User) bool {
		return u.MagicLinkToken != "" && strings.EqualFold(u.MagicLinkToken, token)
	}, map[string]any{"lookup": "magic_link_token"})
}

func (m *memoryUsers) Register(ctx context.Context, user *auth.User) (*auth.User, error) {
	return m.RegisterTx(ctx, nil, user)
}

func (m *memoryUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	for _, u := range m.records {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, user.Email) {
			return nil, auth.ErrDuplicateEmail
		}
	}

	record := cloneUser(user)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
	m.records[record.ID] = record

	return cloneUser(record), nil
}

func (m *memoryUsers) SetMagicLink(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return m.SetMagicLinkTx(ctx, nil, id, token, expiresAt)
}

func (m *memoryUsers) SetMagicLinkTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	return m.update(id, func(u *auth.User) {
		u.MagicLinkToken = token
		exp := expiresAt
		u.MagicLinkExpiresAt = &exp
	})
}

func (m *memoryUsers) MarkVerified(ctx context.Context, id uuid.UUID) error {
	return m.MarkVerifiedTx(ctx, nil, id)
}

func (m *memoryUsers) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return m.update(id, func(u *auth.User) {
		now := time.Now()
		u.Verified = true
		u.MagicLinkToken = ""
		u.MagicLinkExpiresAt = nil
		u.LastLoginAt = &now
	})
}

func (m *memoryUsers) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error {
	return m.TrackSuccessfulLoginTx(ctx, nil, id)
}

func (m *memoryUsers) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return m.update(id, func(u *auth.User) {
		now := time.Now()
		u.LastLoginAt = &now
	})
}

func (m *memoryUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return m.ResetPasswordTx(ctx, nil, id, passwordHash)
}

func (m *memoryUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return m.update(id, func(u *auth.User) {
		u.PasswordHash = passwordHash
	})
}

// fakeRepoManager runs transactional closures directly against memoryUsers.
type fakeRepoManager struct {
	users *memoryUsers
}

var _ auth.RepositoryManager = (*fakeRepoManager)(nil)

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{users: newMemoryUsers()}
}

func (f *fakeRepoManager) Validate() error { return nil }
func (f *fakeRepoManager) MustValidate()   {}

func (f *fakeRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepoManager) Users() auth.Users {
	return f.users
}

// sentMail records one delivery attempt made through recordingMailer.
type sentMail struct {
	kind      string
	email     string
	token     string
	firstName string
}

// recordingMailer implements auth.Mailer and records deliveries. Sends happen
// on a background goroutine, so reads go through the mutex.
type recordingMailer struct {
	mu sync.Mutex
	// failWith, when set, makes every send fail with it.
	failWith error
	sent     []sentMail
}

var _ auth.Mailer = (*recordingMailer)(nil)

func (m *recordingMailer) SendVerification(ctx context.Context, email, token, firstName string) error {
	return m.record("verification", email, token, firstName)
}

func (m *recordingMailer) SendMagicLink(ctx context.Context, email, token, firstName string) error {
	return m.record("magic-link", email, token, firstName)
}

func (m *recordingMailer) record(kind, email, token, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, sentMail{kind: kind, email: email, token: token, firstName: firstName})
	return nil
}

func (m *recordingMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) byKind(kind string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, s := range m.sent {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (m *recordingMailer) last() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}
