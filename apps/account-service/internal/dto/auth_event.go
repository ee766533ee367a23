package dto

import (
	"fmt"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
)

// AuthEventRequest is the body the auth platform posts on every auth state change
type AuthEventRequest struct {
	Event      string     `json:"event" binding:"required"`
	UserID     string     `json:"user_id" binding:"required"`
	SessionID  string     `json:"session_id"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// ToEvent validates the event type and fills a missing timestamp with now
func (r *AuthEventRequest) ToEvent(now time.Time) (usersession.AuthEvent, error) {
	t := usersession.AuthEventType(r.Event)
	if !t.Valid() {
		return usersession.AuthEvent{}, fmt.Errorf("unsupported event %q", r.Event)
	}
	at := now
	if r.OccurredAt != nil && !r.OccurredAt.IsZero() {
		at = *r.OccurredAt
	}
	return usersession.AuthEvent{Type: t, UserID: r.UserID, OccurredAt: at.UTC()}, nil
}

// AuthEventAccepted is returned once an event has been fanned out
type AuthEventAccepted struct {
	DeliveryID string                    `json:"delivery_id"`
	Event      usersession.AuthEventType `json:"event"`
	UserID     string                    `json:"user_id"`
}
