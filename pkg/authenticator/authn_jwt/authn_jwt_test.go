package authn_jwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

func newAuthenticator(t *testing.T) (*Authenticator, *storegorm.Store, *model.User) {
	t.Helper()
	gdb := dbtest.New(t)
	st := storegorm.New(gdb)
	user := dbtest.SeedUser(t, gdb, "alice", false)

	auth, err := New(st, Config{Secret: []byte("test-secret"), TTL: time.Hour})
	require.NoError(t, err)
	return auth, st, user
}

func TestNew(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)

	auth, err := New(nil, Config{Secret: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, auth.ttl)
	assert.Equal(t, "authn-jwt", auth.Name())
	assert.NoError(t, auth.Status(context.Background()))
}

func TestIssueAndAuthenticate(t *testing.T) {
	auth, _, user := newAuthenticator(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	token, claims, err := auth.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt.Time)

	got, err := auth.Authenticate(context.Background(), authenticator.AuthenticatorInput{Credentials: []byte(token)})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	t.Run("expired", func(t *testing.T) {
		auth.now = func() time.Time { return now.Add(2 * time.Hour) }
		defer func() { auth.now = func() time.Time { return now } }()

		_, err := auth.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := auth.Verify(token[:len(token)-2] + "xx")
		assert.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := New(nil, Config{Secret: []byte("another-secret")})
		require.NoError(t, err)
		other.now = auth.now
		_, err = other.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := auth.Authenticate(context.Background(), authenticator.AuthenticatorInput{})
		assert.Error(t, err)
	})
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	auth, st, user := newAuthenticator(t)

	token, _, err := auth.Issue(user)
	require.NoError(t, err)
	require.NoError(t, st.Users().Delete(user.ID))

	_, err = auth.Authenticate(context.Background(), authenticator.AuthenticatorInput{Credentials: []byte(token)})
	assert.ErrorIs(t, err, authenticator.ErrInvalidCredentials)
}

func TestAuthenticate_RenamedUser(t *testing.T) {
	auth, st, user := newAuthenticator(t)

	token, _, err := auth.Issue(user)
	require.NoError(t, err)
	user.Username = "alice2"
	require.NoError(t, st.Users().Update(user))

	_, err = auth.Authenticate(context.Background(), authenticator.AuthenticatorInput{Credentials: []byte(token)})
	assert.ErrorIs(t, err, authenticator.ErrInvalidCredentials)
}

func TestClaimsUserID(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}}
	id, err := c.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	c.Subject = "alice"
	_, err = c.UserID()
	assert.Error(t, err)
}
