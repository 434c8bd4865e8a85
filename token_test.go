package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/judgingapp/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.Config{
		SigningKey: "test-signing-key",
		Issuer:     "test-issuer",
	}, nil)
}

func TestIssueAndDecode(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.Issue("user-123", "test@example.com", auth.TokenTypeAccess, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ts.Decode(token)
	require.NoError(t, err)

	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.Equal(t, auth.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "test-issuer", claims.Issuer)

	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
	assert.WithinDuration(t, claims.IssuedAt.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestIssueMagicLinkWindow(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.Issue("Alice", "alice@example.com", auth.TokenTypeMagicLink, auth.DefaultMagicLinkTTL)
	require.NoError(t, err)

	claims, err := ts.Decode(token)
	require.NoError(t, err)

	assert.Equal(t, auth.TokenTypeMagicLink, claims.TokenType)
	assert.Equal(t, 15*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestIssueRejectsNonPositiveTTL(t *testing.T) {
	ts := newTestTokenService()

	_, err := ts.Issue("user-123", "test@example.com", auth.TokenTypeAccess, 0)
	assert.Error(t, err)

	_, err = ts.Issue("user-123", "test@example.com", auth.TokenTypeAccess, -time.Minute)
	assert.Error(t, err)
}

func TestDecodeRejectsExpiredToken(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.Issue("user-123", "test@example.com", auth.TokenTypeAccess, time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = ts.Decode(token)
	require.Error(t, err)
	assert.True(t, auth.IsInvalidTokenError(err))
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.Issue("user-123", "test@example.com", auth.TokenTypeAccess, time.Hour)
	require.NoError(t, err)

	_, err = ts.Decode(token + "tampered")
	require.Error(t, err)
	assert.True(t, auth.IsInvalidTokenError(err))
}

func TestDecodeRejectsForeignKey(t *testing.T) {
	ts := newTestTokenService()

	other := auth.NewTokenService(auth.Config{
		SigningKey: "a-different-signing-key",
		Issuer:     "test-issuer",
	}, nil)

	token, err := other.Issue("user-123", "test@example.com", auth.TokenTypeAccess, time.Hour)
	require.NoError(t, err)

	_, err = ts.Decode(token)
	require.Error(t, err)
	assert.True(t, auth.IsInvalidTokenError(err))
}

func TestDecodeRejectsUnexpectedSigningMethod(t *testing.T) {
	ts := newTestTokenService()

	// alg=none tokens must never pass.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":        "user-123",
		"token_type": "access",
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ts.Decode(raw)
	require.Error(t, err)
	assert.True(t, auth.IsInvalidTokenError(err))
}

func TestRequireType(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.Issue("user-123", "test@example.com", auth.TokenTypeRefresh, time.Hour)
	require.NoError(t, err)

	claims, err := ts.Decode(token)
	require.NoError(t, err)

	assert.NoError(t, claims.RequireType(auth.TokenTypeRefresh))

	err = claims.RequireType(auth.TokenTypeAccess)
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeWrongTokenType, auth.ErrorTextCode(err))
}

func TestTokenFromAuthorizationHeader(t *testing.T) {
	raw, err := auth.TokenFromAuthorizationHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", raw)

	raw, err = auth.TokenFromAuthorizationHeader("bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", raw)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc.def.ghi"} {
		_, err := auth.TokenFromAuthorizationHeader(header)
		assert.Error(t, err, "header %q", header)
		assert.Equal(t, auth.TextCodeMissingToken, auth.ErrorTextCode(err))
	}
}
