package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/discord"
	"github.com/vovakirdan/drawbridge/internal/ratelimit"
)

// Authenticator validates one connection's credential against the
// remote service, guarded by the process-wide login limiter. There is
// one Authenticator per connection; the limiter is shared so a
// reconnect cannot reset a penalty.
type Authenticator struct {
	client  discord.Client
	limiter *ratelimit.Registry
	log     zerolog.Logger

	mu      sync.Mutex
	token   string
	profile discord.Profile
}

// NewAuthenticator builds an authenticator over the given remote client
// and login limiter registry.
func NewAuthenticator(client discord.Client, limiter *ratelimit.Registry, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		client:  client,
		limiter: limiter,
		log:     logger.With().Str("component", "auth").Logger(),
	}
}

// CheckCredential parses the raw credential, charges the login bucket,
// and validates against the remote service. On success the token and
// profile are cached for Logout. Failures carry no partial state:
// ErrMalformedCredential and ErrRateLimited happen before any remote
// call, ErrLogin when the service rejects, ErrRemote for everything
// else (timeouts included).
func (a *Authenticator) CheckCredential(ctx context.Context, raw string) (discord.Auth, Credential, error) {
	cred, err := ParseCredential(raw)
	if err != nil {
		return discord.Auth{}, Credential{}, err
	}

	if !a.limiter.Consume(cred.Key(), 1) {
		a.log.Warn().Str("key", cred.Key()).Msg("login attempt rate limited")
		return discord.Auth{}, cred, fmt.Errorf("%w: too many login attempts", ErrRateLimited)
	}

	auth, err := a.resolve(ctx, cred)
	if err != nil {
		return discord.Auth{}, cred, err
	}

	a.mu.Lock()
	a.token = auth.Token
	a.profile = auth.Profile
	a.mu.Unlock()

	a.log.Info().Str("user_id", auth.Profile.ID).Str("username", auth.Profile.Username).Msg("credential accepted")
	return auth, cred, nil
}

// Logout invalidates the cached token remotely and clears it. A no-op
// when nothing is cached, and the local cache is cleared even when the
// remote call fails, so repeated calls stay harmless.
func (a *Authenticator) Logout(ctx context.Context) {
	a.mu.Lock()
	token := a.token
	a.token = ""
	a.profile = discord.Profile{}
	a.mu.Unlock()

	if token == "" {
		return
	}
	if err := a.client.Logout(ctx, token); err != nil {
		a.log.Debug().Err(err).Msg("remote logout failed")
	}
}

// Forget drops the cached token without invalidating it remotely. Used
// when the token is shared with another live session.
func (a *Authenticator) Forget() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.profile = discord.Profile{}
}

// Profile returns the cached profile, valid after a successful
// CheckCredential.
func (a *Authenticator) Profile() discord.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile
}

func (a *Authenticator) resolve(ctx context.Context, cred Credential) (discord.Auth, error) {
	if cred.Token != "" {
		profile, err := a.client.ValidateToken(ctx, cred.Token)
		if err != nil {
			return discord.Auth{}, mapRemoteErr(err)
		}
		return discord.Auth{Token: cred.Token, Profile: profile}, nil
	}

	auth, err := a.client.Login(ctx, cred.Email, cred.Password)
	if err != nil {
		return discord.Auth{}, mapRemoteErr(err)
	}
	return auth, nil
}

// mapRemoteErr folds remote-client failures into the core taxonomy.
func mapRemoteErr(err error) error {
	switch {
	case errors.Is(err, discord.ErrUnauthorized), errors.Is(err, discord.ErrForbidden):
		return fmt.Errorf("%w: %v", ErrLogin, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out: %v", ErrRemote, err)
	default:
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
}
