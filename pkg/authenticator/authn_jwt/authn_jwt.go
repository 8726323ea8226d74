package authn_jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Name is the registry name of the token authenticator
const Name = "authn-jwt"

// Issuer is the iss claim of every token handed out
const Issuer = "medcattrainer"

// DefaultTTL is the token lifetime used when none is configured
const DefaultTTL = 24 * time.Hour

// Config holds JWT authenticator configuration
type Config struct {
	// Secret signs and verifies HS256 tokens
	Secret []byte

	// TTL is the lifetime of issued tokens
	TTL time.Duration
}

// Claims are the claims of a trainer API token. The subject is the user id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID returns the user id carried in the subject
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return uint(id), nil
}

// Authenticator issues API tokens and authenticates requests carrying them
type Authenticator struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates a JWT authenticator
func New(st store.Store, cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("a token signing secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{store: st, secret: cfg.Secret, ttl: ttl, now: time.Now}, nil
}

// Name returns the authenticator name
func (a *Authenticator) Name() string {
	return Name
}

// Issue signs a token for user
func (a *Authenticator) Issue(user *model.User) (string, *Claims, error) {
	now := a.now()
	claims := &Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses a token and validates its signature, issuer and expiry
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Authenticate validates the token given as credentials and returns the
// user it was issued to.
func (a *Authenticator) Authenticate(ctx context.Context, input authenticator.AuthenticatorInput) (*model.User, error) {
	user, _, err := a.AuthenticateToken(ctx, string(input.Credentials))
	return user, err
}

// AuthenticateToken is Authenticate returning the verified claims as well.
func (a *Authenticator) AuthenticateToken(ctx context.Context, tokenString string) (*model.User, *Claims, error) {
	if tokenString == "" {
		return nil, nil, errors.New("JWT token is required")
	}

	claims, err := a.Verify(tokenString)
	if err != nil {
		return nil, nil, fmt.Errorf("token validation failed: %w", err)
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, nil, fmt.Errorf("token validation failed: %w", err)
	}

	user, err := a.store.WithContext(ctx).Users().Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, authenticator.ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if user.Username != claims.Username {
		return nil, nil, authenticator.ErrInvalidCredentials
	}
	return user, claims, nil
}

// Status reports the authenticator healthy once a secret is configured
func (a *Authenticator) Status(ctx context.Context) error {
	if len(a.secret) == 0 {
		return errors.New("no signing secret configured")
	}
	return nil
}
