// Package usersession loads the signed-in user and their profile into a
// single view state, refreshed on demand and whenever the auth platform
// reports a sign-in or sign-out.
package usersession

import (
	"context"
	"encoding/json"
	"time"
)

// Principal is the authenticated identity returned by the auth backend
type Principal struct {
	ID       string    `json:"id"`
	Email    string    `json:"email,omitempty"`
	Role     string    `json:"role,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// Profile is the row of the profiles table keyed by the principal id.
// Columns without a field are kept in Extra.
type Profile struct {
	ID        string                     `json:"id"`
	FullName  string                     `json:"full_name,omitempty"`
	Phone     string                     `json:"phone,omitempty"`
	AvatarURL string                     `json:"avatar_url,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Extra     map[string]json.RawMessage `json:"extra,omitempty"`
}

// AuthEventType names an auth platform state transition
type AuthEventType string

const (
	EventSignedIn         AuthEventType = "SIGNED_IN"
	EventSignedOut        AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed   AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEventType = "USER_UPDATED"
	EventPasswordRecovery AuthEventType = "PASSWORD_RECOVERY"
	EventInitialSession   AuthEventType = "INITIAL_SESSION"
)

// Valid reports whether t is a known event type
func (t AuthEventType) Valid() bool {
	switch t {
	case EventSignedIn, EventSignedOut, EventTokenRefreshed,
		EventUserUpdated, EventPasswordRecovery, EventInitialSession:
		return true
	}
	return false
}

// AuthEvent is one auth state change notification
type AuthEvent struct {
	Type       AuthEventType
	UserID     string
	OccurredAt time.Time
}

// TriggersRefresh reports whether the event should reload the session.
// Only sign-in and sign-out do.
func (e AuthEvent) TriggersRefresh() bool {
	return e.Type == EventSignedIn || e.Type == EventSignedOut
}

// Authenticator returns the current principal, or nil when nobody is signed in
type Authenticator interface {
	CurrentUser(ctx context.Context) (*Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context) (*Principal, error)

func (f AuthenticatorFunc) CurrentUser(ctx context.Context) (*Principal, error) { return f(ctx) }

// ProfileStore looks up a profile by principal id. It returns (nil, nil)
// when no row matches.
type ProfileStore interface {
	GetProfileByID(ctx context.Context, id string) (*Profile, error)
}

// Subscription is a registered auth event callback
type Subscription interface {
	Unsubscribe()
}

// AuthEventSource delivers auth state changes to fn until the returned
// subscription is released.
type AuthEventSource interface {
	Subscribe(ctx context.Context, fn func(AuthEvent)) (Subscription, error)
}

// Navigator sends the user somewhere else, typically the login page
type Navigator interface {
	Redirect(ctx context.Context, location string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(ctx context.Context, location string)

func (f NavigatorFunc) Redirect(ctx context.Context, location string) { f(ctx, location) }
