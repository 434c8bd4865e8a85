package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes identify error kinds across process boundaries. The HTTP layer
// and clients key off these rather than error messages.
const (
	TextCodeWeakPassword    = "WEAK_PASSWORD"
	TextCodeDuplicateEmail  = "DUPLICATE_EMAIL"
	TextCodeUserNotFound    = "USER_NOT_FOUND"
	TextCodeInvalidCreds    = "INVALID_CREDENTIALS"
	TextCodeInvalidToken    = "INVALID_TOKEN"
	TextCodeWrongTokenType  = "WRONG_TOKEN_TYPE"
	TextCodeLinkExpired     = "LINK_EXPIRED"
	TextCodeMissingToken    = "MISSING_TOKEN"
	TextCodeEmptyPassword   = "EMPTY_PASSWORD"
	TextCodeMalformedDigest = "MALFORMED_DIGEST"
)

// ErrWeakPassword is returned when a registration password is shorter than 8 characters.
var ErrWeakPassword = goerrors.New("your password must be at least 8 characters", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword)

// ErrDuplicateEmail is returned when the email is already registered, whether the
// pre-check caught it or the storage unique index did.
var ErrDuplicateEmail = goerrors.New("this email is already registered, please log in or use a different email", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail)

// ErrUserNotFound is returned when no user record matches the given email.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound)

// ErrInvalidCredentials is returned uniformly for unknown email, unset password,
// and password mismatch. Never leak which one failed.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is returned for tokens that are malformed, carry a bad
// signature, or are past their embedded expiry.
var ErrInvalidToken = goerrors.New("invalid token, please reset your password to generate a new link", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrWrongTokenType is returned when a decoded token's type does not match the
// operation consuming it.
var ErrWrongTokenType = goerrors.New("invalid token type", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongTokenType).
	WithCode(goerrors.CodeUnauthorized)

// ErrLinkExpired is returned when a magic link is past its stored expiry.
var ErrLinkExpired = goerrors.New("your verification link has expired, please reset your password to generate a new link", goerrors.CategoryAuth).
	WithTextCode(TextCodeLinkExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingToken is returned when a request carries no token at all.
var ErrMissingToken = goerrors.New("missing or invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when an empty password is handed to the hasher.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrMalformedDigest is returned when a stored password digest cannot be parsed.
var ErrMalformedDigest = goerrors.New("stored password digest is malformed", goerrors.CategoryInternal).
	WithTextCode(TextCodeMalformedDigest)

// ErrorTextCode extracts the text code of a rich error, or "" for plain errors.
func ErrorTextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

// IsInvalidTokenError reports whether err carries the invalid-token kind.
func IsInvalidTokenError(err error) bool {
	return ErrorTextCode(err) == TextCodeInvalidToken
}

// IsLinkExpiredError reports whether err carries the link-expired kind.
func IsLinkExpiredError(err error) bool {
	return ErrorTextCode(err) == TextCodeLinkExpired
}

// IsDuplicateEmailError reports whether err carries the duplicate-email kind.
func IsDuplicateEmailError(err error) bool {
	return ErrorTextCode(err) == TextCodeDuplicateEmail
}

// HTTPStatus maps an error to the stable client-visible status code the
// boundary layer responds with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return http.StatusInternalServerError
	}

	switch rich.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
