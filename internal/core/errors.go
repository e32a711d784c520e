// Package core holds the gateway's session machinery: credential
// parsing, the authenticator, the identity/channel directory, the
// per-connection session state machine, and the event bridge that feeds
// remote push events back onto the wire.
package core

import "errors"

var (
	// ErrMalformedCredential means the server password did not parse;
	// the remote service is never contacted.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrRateLimited means the local bucket for this account is empty.
	ErrRateLimited = errors.New("rate limited")
	// ErrLogin means the remote service rejected the credentials or
	// token.
	ErrLogin = errors.New("login failed")
	// ErrRemote wraps network and service failures, including timeouts.
	ErrRemote = errors.New("remote service error")
	// ErrAlreadyAuthenticated rejects a second login on one session.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrDuplicateEntity is the directory's must-create conflict. It is
	// recovered internally and never reaches the wire.
	ErrDuplicateEntity = errors.New("duplicate entity")
	// ErrNotFound is a directory lookup miss, surfaced as the protocol's
	// negative reply rather than a failure.
	ErrNotFound = errors.New("not found")
)
