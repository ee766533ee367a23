// Package events carries auth state notifications between the auth
// platform webhook and the session loaders of connected clients.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
)

// ErrUnknownEvent is returned when decoding an event type the service does not know
var ErrUnknownEvent = errors.New("unknown auth event")

// wireEvent is the JSON form shared by the webhook body, Redis and Kafka
type wireEvent struct {
	Event      usersession.AuthEventType `json:"event"`
	UserID     string                    `json:"user_id"`
	OccurredAt time.Time                 `json:"occurred_at"`
}

func toWire(ev usersession.AuthEvent) (wireEvent, error) {
	if !ev.Type.Valid() {
		return wireEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return wireEvent{Event: ev.Type, UserID: ev.UserID, OccurredAt: ev.OccurredAt.UTC()}, nil
}

// Encode serializes ev
func Encode(ev usersession.AuthEvent) ([]byte, error) {
	w, err := toWire(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Decode parses an encoded event
func Decode(data []byte) (usersession.AuthEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return usersession.AuthEvent{}, fmt.Errorf("failed to decode auth event: %w", err)
	}
	if !w.Event.Valid() {
		return usersession.AuthEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Event)
	}
	return usersession.AuthEvent{Type: w.Event, UserID: w.UserID, OccurredAt: w.OccurredAt}, nil
}
