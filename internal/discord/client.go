package discord

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned when the service rejects the supplied
	// credentials or token.
	ErrUnauthorized = errors.New("discord: unauthorized")
	// ErrForbidden is returned when the token is valid but the operation
	// is not permitted.
	ErrForbidden = errors.New("discord: forbidden")
	// ErrRateLimited is returned when the service itself throttles the
	// call. Distinct from the gateway's local limiter.
	ErrRateLimited = errors.New("discord: rate limited")
)

// Client is the boundary to the remote service. One implementation talks
// REST+websocket; tests substitute fakes.
type Client interface {
	// Login exchanges email/password for a token and the account profile.
	Login(ctx context.Context, email, password string) (Auth, error)
	// ValidateToken checks a bearer token and returns its profile.
	ValidateToken(ctx context.Context, token string) (Profile, error)
	// ChangeIdentity renames the account. The current password is
	// required by the service; the returned profile reflects the new
	// name.
	ChangeIdentity(ctx context.Context, token, newName, password string) (Profile, error)
	// Logout invalidates the token remotely.
	Logout(ctx context.Context, token string) error
	// ListGuilds returns the guilds the token's account belongs to.
	ListGuilds(ctx context.Context, token string) ([]Guild, error)
	// SendMessage posts text to a channel, tagging it with nonce so the
	// echo on the event stream can be recognized. Returns the message id.
	SendMessage(ctx context.Context, token, channelID, text, nonce string) (string, error)
	// OpenGateway connects the push event stream for the token. The
	// stream stays open until closed or the connection drops.
	OpenGateway(ctx context.Context, token string) (EventStream, error)
}

// EventStream is one live gateway connection. Events is closed when the
// stream ends; Err then reports why, nil meaning a clean close.
type EventStream interface {
	Events() <-chan Event
	Err() error
	Close() error
}
