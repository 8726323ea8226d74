// Package identity provides the authenticated identity of trainer requests.
//
// An Identity combines the claims of the request token (user id, username,
// validity window) with request-specific context such as the client IP.
//
// # Basic Usage
//
//	// Create identity for an authenticated user
//	id := identity.New(user.ID, user.Username, user.IsSuperuser).
//	   WithTimes(claims.IssuedAt.Time, claims.ExpiresAt.Time).
//	   WithRemoteIP(identity.RemoteIPFromRequest(r.RemoteAddr, r.Header.Get("X-Forwarded-For")))
//
//	// Store in request context
//	ctx = identity.Set(ctx, id)
//
//	// Retrieve from context
//	id, ok := identity.Get(ctx)
package identity
