// Package auth defines the session contract the gremlin core consumes
// and the session provider implementations shipped with the server.
package auth

import (
	"context"
	"net/http"

	"github.com/gremlinhq/gremlin/internal/errors"
)

// User identifies an authenticated principal.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Session is the ambient per-request auth state. User is nil for
// anonymous requests. Expires is an RFC 3339 timestamp carried verbatim
// on the wire.
type Session struct {
	User    *User  `json:"user"`
	Expires string `json:"expires,omitempty"`
}

// Anonymous returns the no-user session shape.
func Anonymous() Session {
	return Session{}
}

// HasRole reports whether the session's user carries the given role.
func (s Session) HasRole(role string) bool {
	if s.User == nil {
		return false
	}
	for _, r := range s.User.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SessionProvider resolves sessions from inbound requests.
//
// GetSession never fails: implementations return the anonymous session
// when the request carries no usable credentials. RequireSession returns
// an UNAUTHORIZED error when no user is present.
type SessionProvider interface {
	GetSession(ctx context.Context, r *http.Request) Session
	RequireSession(ctx context.Context, r *http.Request) (Session, error)
}

func requireUser(s Session) (Session, error) {
	if s.User == nil {
		return Session{}, errors.Unauthorized("Authentication required.")
	}
	return s, nil
}

// StaticProvider always resolves the same session. It backs tests and
// single-tenant deployments without an identity provider.
type StaticProvider struct {
	Session Session
}

// GetSession returns the configured session.
func (p StaticProvider) GetSession(ctx context.Context, r *http.Request) Session {
	return p.Session
}

// RequireSession returns the configured session, or UNAUTHORIZED when it
// has no user.
func (p StaticProvider) RequireSession(ctx context.Context, r *http.Request) (Session, error) {
	return requireUser(p.Session)
}

// AnonymousProvider resolves every request to the anonymous session.
type AnonymousProvider struct{}

// GetSession returns the anonymous session.
func (AnonymousProvider) GetSession(ctx context.Context, r *http.Request) Session {
	return Anonymous()
}

// RequireSession always returns UNAUTHORIZED.
func (AnonymousProvider) RequireSession(ctx context.Context, r *http.Request) (Session, error) {
	return requireUser(Anonymous())
}
