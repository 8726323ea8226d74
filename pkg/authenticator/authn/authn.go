package authn

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Name is the registry name of the password authenticator
const Name = "authn"

// Authenticator implements username and password authentication
type Authenticator struct {
	store store.Store
}

// New creates a new password authenticator
func New(st store.Store) *Authenticator {
	return &Authenticator{store: st}
}

// Name returns the authenticator name
func (a *Authenticator) Name() string {
	return Name
}

// Authenticate checks the password against the stored bcrypt hash
func (a *Authenticator) Authenticate(ctx context.Context, input authenticator.AuthenticatorInput) (*model.User, error) {
	if input.Login == "" || len(input.Credentials) == 0 {
		return nil, errors.New("username and password are required")
	}

	user, err := a.store.WithContext(ctx).Users().GetByUsername(input.Login)
	if errors.Is(err, store.ErrNotFound) {
		return nil, authenticator.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	if err := CheckPassword(user.PasswordHash, input.Credentials); err != nil {
		return nil, authenticator.ErrInvalidCredentials
	}
	return user, nil
}

// Status checks if the authenticator is healthy
func (a *Authenticator) Status(ctx context.Context) error {
	// Password authn is healthy if we can reach the database
	return a.store.WithContext(ctx).Health().Ping()
}

// HashPassword returns the bcrypt hash stored for a password
func HashPassword(password []byte) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword returns nil when password matches hash
func CheckPassword(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}
