package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn_jwt"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/identity"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

var tokenRegex = regexp.MustCompile(`^(?:Token|Bearer) (\S+)$`)

// TokenAuthenticator resolves an API token to the user it was issued to
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*model.User, *authn_jwt.Claims, error)
}

// JWTAuthenticator is middleware that validates API tokens
type JWTAuthenticator struct {
	Tokens TokenAuthenticator
}

// NewJWTAuthenticator creates a new JWT authenticator middleware
func NewJWTAuthenticator(tokens TokenAuthenticator) *JWTAuthenticator {
	return &JWTAuthenticator{Tokens: tokens}
}

// Middleware returns an HTTP middleware that validates tokens and stores the
// caller's identity in the request context.
func (j *JWTAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")

		if len(authHeader) == 0 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Authorization missing"))
			return
		}

		tokenMatches := tokenRegex.FindStringSubmatch(authHeader)
		if len(tokenMatches) != 2 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Malformed authorization header"))
			return
		}

		user, claims, err := j.Tokens.AuthenticateToken(r.Context(), tokenMatches[1])
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Invalid token"))
			return
		}

		var issuedAt time.Time
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		id := identity.New(user.ID, user.Username, user.IsSuperuser).
			WithTimes(issuedAt, claims.ExpiresAt.Time).
			WithRemoteIP(identity.RemoteIPFromRequest(r.RemoteAddr, r.Header.Get("X-Forwarded-For")))

		next.ServeHTTP(w, r.WithContext(identity.Set(r.Context(), id)))
	})
}
