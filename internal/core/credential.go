package core

import (
	"fmt"
	"strings"
)

// Credential is what the client supplied in its server password: either
// a bare token or an email/password pair. The first field may carry a
// "/guildID" suffix naming the home guild to project.
type Credential struct {
	Email    string
	Password string
	Token    string
	GuildID  string
}

// Key is the rate-limit key for this credential: the email when known,
// otherwise the token.
func (c Credential) Key() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Token
}

// ParseCredential splits the raw server password. One field is a token,
// two colon-separated fields are email and password; any other field
// count is malformed and must fail before the remote service is
// contacted.
func ParseCredential(raw string) (Credential, error) {
	if raw == "" {
		return Credential{}, fmt.Errorf("%w: empty", ErrMalformedCredential)
	}

	fields := strings.Split(raw, ":")
	if len(fields) > 2 {
		return Credential{}, fmt.Errorf("%w: expected token or email:password", ErrMalformedCredential)
	}

	first, guildID := splitGuild(fields[0])
	if first == "" {
		return Credential{}, fmt.Errorf("%w: empty identity", ErrMalformedCredential)
	}

	if len(fields) == 1 {
		return Credential{Token: first, GuildID: guildID}, nil
	}
	return Credential{Email: first, Password: fields[1], GuildID: guildID}, nil
}

// splitGuild peels an optional "/guildID" default-guild suffix off the
// identity field.
func splitGuild(field string) (identity, guildID string) {
	if idx := strings.Index(field, "/"); idx >= 0 {
		return field[:idx], field[idx+1:]
	}
	return field, ""
}
