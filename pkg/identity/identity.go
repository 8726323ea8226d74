package identity

import (
	"context"
	"net"
	"strings"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// Key is the context key for Identity.
	Key ContextKey = "identity"
)

// Identity represents the authenticated user of a request.
// It combines token claims with request-specific context.
type Identity struct {
	// Token claims
	UserID    uint
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Loaded from the user row on every request
	IsSuperuser bool

	// Request context
	RemoteIP net.IP
}

// New creates an Identity for a user.
func New(userID uint, username string, superuser bool) *Identity {
	return &Identity{UserID: userID, Username: username, IsSuperuser: superuser}
}

// WithTimes sets the token validity window.
func (i *Identity) WithTimes(issuedAt, expiresAt time.Time) *Identity {
	i.IssuedAt = issuedAt
	i.ExpiresAt = expiresAt
	return i
}

// WithRemoteIP sets the remote IP address.
func (i *Identity) WithRemoteIP(ip net.IP) *Identity {
	i.RemoteIP = ip
	return i
}

// ClientIP returns the remote IP as text, empty when unknown.
func (i *Identity) ClientIP() string {
	if i.RemoteIP == nil {
		return ""
	}
	return i.RemoteIP.String()
}

// RemoteIPFromRequest extracts the client address of a request,
// preferring the first X-Forwarded-For entry.
func RemoteIPFromRequest(remoteAddr, forwardedFor string) net.IP {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}

// Get retrieves Identity from context.
func Get(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(Key).(*Identity)
	return id, ok
}

// Set stores Identity in context.
func Set(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, Key, id)
}
