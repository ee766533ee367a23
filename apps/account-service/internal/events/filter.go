package events

import (
	"context"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
)

type userFilter struct {
	src    usersession.AuthEventSource
	userID string
}

// ForUser narrows src to the events of a single user
func ForUser(src usersession.AuthEventSource, userID string) usersession.AuthEventSource {
	return &userFilter{src: src, userID: userID}
}

func (f *userFilter) Subscribe(ctx context.Context, fn func(usersession.AuthEvent)) (usersession.Subscription, error) {
	return f.src.Subscribe(ctx, func(ev usersession.AuthEvent) {
		if ev.UserID == f.userID {
			fn(ev)
		}
	})
}
