// Package authenticator defines the interface for trainer authenticators.
//
// An authenticator exchanges a login and a secret for a user account. The
// token endpoint looks authenticators up by name in a Registry and only
// uses the enabled ones.
//
// # Authenticator Interface
//
//	type Authenticator interface {
//	    Name() string
//	    Authenticate(ctx context.Context, input AuthenticatorInput) (*model.User, error)
//	    Status(ctx context.Context) error
//	}
//
// # Built-in Authenticators
//
//   - authn: username and bcrypt password - see [github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn]
//
// Tokens handed out after a successful authentication are HS256 JWTs
// issued and verified by [github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn_jwt].
package authenticator
