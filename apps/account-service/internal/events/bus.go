package events

import (
	"context"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
)

// Publisher sends an auth event to every instance of the service
type Publisher interface {
	Publish(ctx context.Context, ev usersession.AuthEvent) error
}

// Bus is a broker-backed event source. Run consumes the broker and
// dispatches to local subscribers until ctx is done.
type Bus interface {
	usersession.AuthEventSource
	Publisher
	Run(ctx context.Context) error
}

// Listener receives every event the bus consumes, regardless of user
type Listener interface {
	HandleEvent(ev usersession.AuthEvent)
}

// Listen registers l on src for the lifetime of the process
func Listen(ctx context.Context, src usersession.AuthEventSource, l Listener) (usersession.Subscription, error) {
	return src.Subscribe(ctx, l.HandleEvent)
}
