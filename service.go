package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// MinPasswordLength is the registration password floor.
const MinPasswordLength = 8

// Service orchestrates registration, magic-link verification, sign-in, and
// password reset. It owns no user state: records live in the credential store
// and are re-read on every call.
type Service struct {
	repo   RepositoryManager
	tokens *TokenService
	mailer Mailer
	cfg    Config
	logger Logger
}

// NewService wires the auth flows. A nil mailer disables email side effects.
func NewService(repo RepositoryManager, tokens *TokenService, mailer Mailer, cfg Config) *Service {
	cfg = cfg.WithDefaults()
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{
		repo:   repo,
		tokens: tokens,
		mailer: mailer,
		cfg:    cfg,
		logger: defLogger{},
	}
}

func (s *Service) WithLogger(l Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// RegisterInput is the payload for creating a new, unverified user.
type RegisterInput struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Organization string `json:"organization"`
}

// Register creates an unverified user, mints their first magic-link token, and
// triggers the verification email. The duplicate pre-check and the insert are
// separate statements; the storage unique index settles any race between them.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during registration")
	default:
		return s.register(ctx, input)
	}
}

func (s *Service) register(ctx context.Context, input RegisterInput) (*User, error) {
	if len(input.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	// The magic-link subject carries the first name; it is display-only. The
	// email claim is what Verify resolves users by.
	token, err := s.tokens.Issue(input.FirstName, input.Email, TokenTypeMagicLink, s.cfg.MagicLinkTTL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint magic-link token")
	}
	expiresAt := time.Now().Add(s.cfg.MagicLinkTTL)

	user := &User{
		FirstName:          input.FirstName,
		LastName:           input.LastName,
		Email:              input.Email,
		Organization:       input.Organization,
		PasswordHash:       hash,
		Verified:           false,
		MagicLinkToken:     token,
		MagicLinkExpiresAt: &expiresAt,
	}

	if id, err := hashid.NewUUID(input.Email); err == nil {
		user.ID = id
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := s.repo.Users().GetByEmailTx(ctx, tx, input.Email)
		if err == nil {
			return ErrDuplicateEmail
		}
		if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing email")
		}

		if user, err = s.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEmail(ctx, "verification", func(ctx context.Context) error {
		return s.mailer.SendVerification(ctx, user.Email, token, user.FirstName)
	})

	return user, nil
}

// Verify consumes a magic-link token and flips the holder to verified. A token
// that was already consumed is tolerated while its embedded expiry has not
// passed and its holder is verified: the second click of an emailed link
// succeeds without mutating state.
func (s *Service) Verify(ctx context.Context, token string) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification")
	default:
		return s.verify(ctx, token)
	}
}

func (s *Service) verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	res, err := s.resolveMagicLink(ctx, token)
	if err != nil {
		return nil, err
	}

	if res.expiresAt.IsZero() || res.expiresAt.Before(time.Now()) {
		return nil, ErrLinkExpired
	}

	if res.replay {
		return res.user, nil
	}

	if err := s.repo.Users().MarkVerified(ctx, res.user.ID); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark user as verified")
	}

	now := time.Now()
	res.user.Verified = true
	res.user.MagicLinkToken = ""
	res.user.MagicLinkExpiresAt = nil
	res.user.LastLoginAt = &now

	return res.user, nil
}

type magicLinkResolution struct {
	user      *User
	expiresAt time.Time
	// replay marks a token that was already consumed by a now-verified user;
	// it is honored without mutating state until its embedded expiry.
	replay bool
}

// resolveMagicLink is the two-step lookup behind Verify: first by the stored
// token column, then, when nothing matches, by decoding the token itself and
// looking up the embedded email.
func (s *Service) resolveMagicLink(ctx context.Context, token string) (*magicLinkResolution, error) {
	user, err := s.repo.Users().GetByMagicLinkToken(ctx, token)
	if err == nil {
		res := &magicLinkResolution{user: user}
		if user.MagicLinkExpiresAt != nil {
			res.expiresAt = *user.MagicLinkExpiresAt
		}
		return res, nil
	}
	if !goerrors.IsNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up magic-link token")
	}

	// No record holds this token: either it was consumed already or it never
	// existed. Decoding tells the two apart.
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return nil, err
	}
	if err := claims.RequireType(TokenTypeMagicLink); err != nil {
		return nil, err
	}

	user, err = s.repo.Users().GetByEmailExact(ctx, claims.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrLinkExpired
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user by token email")
	}

	if !user.Verified {
		return nil, ErrLinkExpired
	}

	res := &magicLinkResolution{user: user, replay: true}
	if claims.ExpiresAt != nil {
		res.expiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

// SignIn authenticates an email/password pair. Unknown email, unset password,
// and mismatch all fail with the same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during sign-in")
	default:
		return s.signIn(ctx, email, password)
	}
}

func (s *Service) signIn(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.Users().GetByEmailExact(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			s.logger.Debug("sign-in for unknown email: %s", email)
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during sign-in")
	}

	if user.PasswordHash == "" {
		s.logger.Debug("sign-in for user without password hash: %s", email)
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if ErrorTextCode(err) != TextCodeInvalidCreds {
			s.logger.Error("sign-in digest verification error: %v", err)
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.Users().TrackSuccessfulLogin(ctx, user.ID); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track successful login")
	}

	now := time.Now()
	user.LastLoginAt = &now

	return user, nil
}

// SendMagicLink mints a fresh magic-link token for the user, replacing any
// outstanding one, and emails it.
func (s *Service) SendMagicLink(ctx context.Context, email string) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during magic-link request")
	default:
		return s.sendMagicLink(ctx, email)
	}
}

func (s *Service) sendMagicLink(ctx context.Context, email string) (*User, error) {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for magic link")
	}

	token, err := s.tokens.Issue(user.FirstName, user.Email, TokenTypeMagicLink, s.cfg.MagicLinkTTL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint magic-link token")
	}
	expiresAt := time.Now().Add(s.cfg.MagicLinkTTL)

	if err := s.repo.Users().SetMagicLink(ctx, user.ID, token, expiresAt); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store magic-link token")
	}

	user.MagicLinkToken = token
	user.MagicLinkExpiresAt = &expiresAt

	s.dispatchEmail(ctx, "magic-link", func(ctx context.Context) error {
		return s.mailer.SendMagicLink(ctx, user.Email, token, user.FirstName)
	})

	return user, nil
}

// PasswordReset replaces the user's password digest. It does not verify the
// requester's identity: callers must validate a reset token before invoking it.
func (s *Service) PasswordReset(ctx context.Context, email, newPassword string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset")
	default:
		return s.passwordReset(ctx, email, newPassword)
	}
}

func (s *Service) passwordReset(ctx context.Context, email, newPassword string) error {
	user, err := s.repo.Users().GetByEmailExact(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.Users().ResetPassword(ctx, user.ID, hash); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store new password hash")
	}

	return nil
}

// ActiveLoginMinutes reports how many minutes ago the user last signed in, or
// -1 when they never have.
func (s *Service) ActiveLoginMinutes(ctx context.Context, email string) (int, error) {
	user, err := s.repo.Users().GetByEmailExact(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return 0, ErrUserNotFound
		}
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	if user.LastLoginAt == nil {
		return -1, nil
	}

	return int(time.Since(*user.LastLoginAt).Minutes()), nil
}

// dispatchEmail runs the send in the background; delivery failures are logged,
// never returned to the caller.
func (s *Service) dispatchEmail(ctx context.Context, kind string, send func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := send(ctx); err != nil {
			s.logger.Error("failed to send %s email: %v", kind, err)
		}
	}()
}
