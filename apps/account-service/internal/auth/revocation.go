package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RevocationKeyPrefix namespaces sign-out markers in Redis
const RevocationKeyPrefix = "auth:signed_out:"

// KeyValue is the byte store behind RevocationStore. *redis.Cache satisfies it.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Revocation is the last sign-out of a user
type Revocation struct {
	At time.Time `json:"at"`
	// SessionID is the auth platform session that ended, when known
	SessionID string `json:"session_id,omitempty"`
}

// Covers reports whether a token issued at issuedAt for sessionID was
// ended by this sign-out. iat has second precision, so a token from the
// sign-out's own second is only accepted when it names a different session.
// Without session ids on both sides such a token stays rejected until the
// marker expires.
func (r Revocation) Covers(issuedAt time.Time, sessionID string) bool {
	cutoff := r.At.Truncate(time.Second)
	switch {
	case issuedAt.Before(cutoff):
		return true
	case issuedAt.After(cutoff):
		return false
	}
	return sessionID == "" || r.SessionID == "" || sessionID == r.SessionID
}

// RevocationStore records the last sign-out of each user. Markers expire
// after ttl, by which point every earlier token has expired too.
type RevocationStore struct {
	kv  KeyValue
	ttl time.Duration
}

// NewRevocationStore creates a RevocationStore; ttl should be at least the
// access token lifetime.
func NewRevocationStore(kv KeyValue, ttl time.Duration) *RevocationStore {
	return &RevocationStore{kv: kv, ttl: ttl}
}

// Revoke marks every token of userID issued up to at as signed out.
// sessionID may be empty.
func (s *RevocationStore) Revoke(ctx context.Context, userID, sessionID string, at time.Time) error {
	data, err := json.Marshal(Revocation{At: at.UTC(), SessionID: sessionID})
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, userID, data, s.ttl); err != nil {
		return fmt.Errorf("failed to store revocation: %w", err)
	}
	return nil
}

// RevokedAt returns the last sign-out of userID
func (s *RevocationStore) RevokedAt(ctx context.Context, userID string) (Revocation, bool, error) {
	raw, ok, err := s.kv.Get(ctx, userID)
	if err != nil || !ok {
		return Revocation{}, false, err
	}
	var rev Revocation
	if err := json.Unmarshal(raw, &rev); err != nil || rev.At.IsZero() {
		return Revocation{}, false, fmt.Errorf("corrupt revocation for %s", userID)
	}
	return rev, true, nil
}
