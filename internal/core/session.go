package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/discord"
	"github.com/vovakirdan/drawbridge/internal/irc"
	"github.com/vovakirdan/drawbridge/internal/ratelimit"
)

// State is the session's position in its lifecycle.
type State int32

const (
	// StateConnected is the moment between accept and transport setup.
	StateConnected State = iota
	// StateAwaitingIdentity waits for the PASS/NICK pair carrying the
	// credential.
	StateAwaitingIdentity
	// StateAuthenticating has a credential check in flight. Only one at
	// a time.
	StateAuthenticating
	// StateAuthenticated has an avatar installed and the event bridge
	// running.
	StateAuthenticated
	// StateClosed is terminal, reachable from every other state.
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the session's side of the client connection. Send must
// be safe for concurrent use and non-blocking; Close must be
// idempotent.
type Transport interface {
	Send(msg irc.Message)
	Close()
}

// AccountRegistry guards the one-active-session-per-account rule across
// the process.
type AccountRegistry interface {
	// Claim marks the account active. False means another session holds
	// it.
	Claim(userID string) bool
	// Release frees the account. Safe to call for unclaimed accounts.
	Release(userID string)
}

// SessionConfig is the session's behavioral knobs.
type SessionConfig struct {
	// ServerName is the hostname the gateway presents on the wire.
	ServerName string
	// MOTD lines sent before authentication starts.
	MOTD []string
	// RemoteTimeout bounds every remote call issued for this session.
	RemoteTimeout time.Duration
}

// Session is the per-connection state machine. Wire commands arrive on
// the connection's read task, push events through the bridge task; both
// serialize on the session mutex. Remote calls run in their own
// goroutine and re-enter under the lock, so the session keeps serving
// other commands while a call is outstanding.
type Session struct {
	id        string
	cfg       SessionConfig
	transport Transport
	client    discord.Client
	auth      *Authenticator
	nickLimit *ratelimit.Registry
	accounts  AccountRegistry
	dir       *Directory
	log       zerolog.Logger

	mu       sync.Mutex
	state    State
	nickname string
	password string
	avatar   *Avatar
	bridge   *EventBridge
}

// NewSession builds a session bound to a transport. loginLimit and
// nickLimit are the process-wide limiter registries; accounts enforces
// single login per remote account.
func NewSession(id string, transport Transport, client discord.Client, loginLimit, nickLimit *ratelimit.Registry, accounts AccountRegistry, cfg SessionConfig, logger zerolog.Logger) *Session {
	log := logger.With().Str("session", id).Logger()
	return &Session{
		id:        id,
		cfg:       cfg,
		transport: transport,
		client:    client,
		auth:      NewAuthenticator(client, loginLimit, log),
		nickLimit: nickLimit,
		accounts:  accounts,
		dir:       NewDirectory(),
		log:       log,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Nick returns the session's current wire nickname.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickname
}

// Directory exposes the session-scoped entity registry.
func (s *Session) Directory() *Directory {
	return s.dir
}

// Start marks the transport established and begins waiting for the
// credential handshake.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected {
		s.state = StateAwaitingIdentity
	}
}

// Close tears the session down: bridge stopped, account released,
// avatar logged out, transport closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked("connection closed")
}

// HandleLine processes one inbound wire line. Lines are handled in
// receipt order on the connection's read task.
func (s *Session) HandleLine(raw string) {
	msg, err := irc.ParseLine(raw)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}

	switch msg.Command {
	case irc.CmdPass:
		s.handlePass(msg)
	case irc.CmdNick:
		s.handleNick(msg)
	case irc.CmdUser:
		// Accepted for client compatibility; identity comes from the
		// remote profile.
	case irc.CmdPrivmsg:
		s.handlePrivmsg(msg)
	case irc.CmdWhois:
		s.handleWhois(msg)
	case irc.CmdPing:
		s.handlePing(msg)
	case irc.CmdQuit:
		s.closeLocked("client quit")
	case irc.CmdPong:
		// Nothing to do.
	default:
		s.send(irc.Numeric(s.cfg.ServerName, irc.ErrUnknownCmd, s.nickname, msg.Command, "Unknown command"))
	}
}

func (s *Session) handlePass(msg irc.Message) {
	if s.state == StateAuthenticated || s.state == StateAuthenticating {
		s.notice("Already logged in. No pod people allowed!")
		return
	}
	if len(msg.Params) < 1 {
		s.notice("PASS requires a credential: email:password or a raw token.")
		return
	}
	s.password = msg.Params[0]
}

func (s *Session) handleNick(msg irc.Message) {
	if len(msg.Params) < 1 {
		s.notice("No nickname given.")
		return
	}
	nick := msg.Params[0]

	switch s.state {
	case StateAuthenticating:
		// Single-flight: the outstanding attempt must resolve first.
		s.notice("Authentication already in progress, hold on.")
	case StateAuthenticated:
		s.handleNickChange(msg)
	default:
		s.beginAuth(nick)
	}
}

// beginAuth starts the asynchronous credential check. Called under the
// lock from the AwaitingIdentity state.
func (s *Session) beginAuth(nick string) {
	if s.password == "" {
		s.notice("You must enter your Discord credentials in the Server " +
			"Password box of your client, like \"user@email.com:hunter2\" or a raw token.")
		s.closeLocked("no credential supplied")
		return
	}

	s.nickname = nick
	s.sendMOTD()

	raw := s.password
	s.password = ""
	s.state = StateAuthenticating
	s.log.Debug().Str("nick", nick).Msg("authenticating")

	go s.runAuth(raw)
}

// runAuth performs the remote credential check and gateway connect off
// the session lock, then re-enters through finishAuth.
func (s *Session) runAuth(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RemoteTimeout)
	defer cancel()

	auth, cred, err := s.auth.CheckCredential(ctx, raw)
	if err != nil {
		s.finishAuth(discord.Auth{}, cred, nil, err)
		return
	}

	stream, err := s.client.OpenGateway(ctx, auth.Token)
	if err != nil {
		s.finishAuth(discord.Auth{}, cred, nil, mapRemoteErr(err))
		return
	}
	s.finishAuth(auth, cred, stream, nil)
}

func (s *Session) finishAuth(auth discord.Auth, cred Credential, stream discord.EventStream, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		// Transport went away mid-flight: the result has no one to talk
		// to. Invalidate a token we won't use.
		if err == nil {
			stream.Close()
			go s.logoutAsync()
		}
		return
	}

	if err == nil && !s.accounts.Claim(auth.Profile.ID) {
		err = ErrAlreadyAuthenticated
		stream.Close()
		// The token may belong to the other live session; do not
		// invalidate it remotely.
		s.auth.Forget()
	}

	if err != nil {
		s.noticeAuthFailure(err)
		s.closeLocked("authentication failed")
		return
	}

	s.avatar = NewAvatar(auth.Profile, auth.Token, cred.GuildID)
	s.state = StateAuthenticated
	s.dir.GetOrCreateUser(auth.Profile.User)

	s.send(irc.Numeric(s.cfg.ServerName, irc.RplWelcome, s.nickname,
		"Welcome to "+s.cfg.ServerName+", bridging you to Discord."))

	// The wire identity is the remote account's name, not whatever the
	// client asked for.
	realNick := SanitizeName(auth.Profile.Username)
	if realNick != "" && realNick != s.nickname {
		old := s.nickname + "!" + s.nickname + "@" + s.cfg.ServerName
		s.send(irc.Message{Prefix: old, Command: irc.CmdNick, Params: []string{realNick}})
		s.nickname = realNick
	}

	s.bridge = NewEventBridge(s, s.dir, stream, s.log)
	go s.bridge.Run()

	s.log.Info().Str("user_id", auth.Profile.ID).Str("nick", s.nickname).Msg("session authenticated")
}

// handleNickChange performs the post-auth identity change: NICK
// <newnick> <password>, independently rate limited per account.
func (s *Session) handleNickChange(msg irc.Message) {
	if len(msg.Params) < 2 {
		s.notice("To change your Discord username, supply your password: NICK <newnick> <password>.")
		return
	}
	newNick, password := msg.Params[0], msg.Params[1]

	if !s.nickLimit.Consume(s.avatar.UserID, 1) {
		s.notice("Nick change denied. You've hit the rate limit.")
		return
	}

	token := s.avatar.Token
	go s.runNickChange(token, newNick, password)
}

func (s *Session) runNickChange(token, newNick, password string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RemoteTimeout)
	defer cancel()

	profile, err := s.client.ChangeIdentity(ctx, token, newNick, password)
	s.finishNickChange(profile, err)
}

func (s *Session) finishNickChange(profile discord.Profile, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return
	}
	if err != nil {
		// The avatar is untouched on any failure.
		switch {
		case errors.Is(err, discord.ErrUnauthorized), errors.Is(err, discord.ErrForbidden):
			s.notice("Nick change failed: wrong password.")
		case errors.Is(err, discord.ErrRateLimited):
			s.notice("Nick change denied. You've hit the rate limit.")
		default:
			s.notice("Nick change failed. Try again later.")
		}
		s.log.Warn().Err(err).Msg("nick change rejected")
		return
	}

	oldMask := s.avatar.Hostmask(s.cfg.ServerName)
	s.avatar.Username = profile.Username
	if profile.Discriminator != "" {
		s.avatar.Discriminator = profile.Discriminator
	}
	if _, err := s.dir.RenameUser(s.avatar.UserID, profile.Username); err != nil {
		s.log.Warn().Err(err).Msg("rename missing directory entry")
	}

	newNick := SanitizeName(profile.Username)
	s.send(irc.Message{Prefix: oldMask, Command: irc.CmdNick, Params: []string{newNick}})
	s.nickname = newNick
	s.log.Info().Str("nick", newNick).Msg("identity changed")
}

func (s *Session) handlePrivmsg(msg irc.Message) {
	if s.state != StateAuthenticated {
		s.notice("Please wait until authentication has completed to send messages.")
		return
	}
	if len(msg.Params) < 2 {
		s.notice("Usage: PRIVMSG <target> <text>.")
		return
	}
	target, text := msg.Params[0], msg.Params[1]

	group, err := s.dir.GroupByName(target)
	if err != nil {
		s.send(irc.Numeric(s.cfg.ServerName, irc.ErrNoSuchNick, s.nickname, target, "No such nick/channel"))
		return
	}

	// Translate the client-to-client action convention for the remote
	// side.
	if strings.HasPrefix(text, "\x01ACTION ") {
		text = "_" + strings.TrimSuffix(strings.TrimPrefix(text, "\x01ACTION "), "\x01") + "_"
	}

	// The nonce must be recorded before the send is issued: the echo can
	// race back on the event stream before the call returns.
	nonce := uuid.NewString()
	s.avatar.Nonces.Add(nonce)

	token := s.avatar.Token
	channelID := group.ChannelID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RemoteTimeout)
		defer cancel()
		if _, err := s.client.SendMessage(ctx, token, channelID, text, nonce); err != nil {
			s.log.Warn().Err(err).Str("channel", channelID).Msg("message send failed")
		}
	}()
}

func (s *Session) handleWhois(msg irc.Message) {
	if len(msg.Params) < 1 {
		s.notice("Usage: WHOIS <nick>.")
		return
	}
	target := msg.Params[0]

	u, err := s.dir.UserByNick(target)
	if err != nil {
		s.send(irc.Numeric(s.cfg.ServerName, irc.ErrNoSuchNick, s.nickname, target, "No such nick/channel"))
		return
	}
	s.send(irc.Numeric(s.cfg.ServerName, irc.RplWhoisUser, s.nickname,
		u.Nick, u.Nick+"#"+u.Discriminator, s.cfg.ServerName, "*", u.Nick))
	s.send(irc.Numeric(s.cfg.ServerName, irc.RplEndOfWhois, s.nickname, u.Nick, "End of WHOIS list"))
}

func (s *Session) handlePing(msg irc.Message) {
	token := s.cfg.ServerName
	if len(msg.Params) > 0 {
		token = msg.Params[0]
	}
	s.send(irc.Message{Prefix: s.cfg.ServerName, Command: irc.CmdPong, Params: []string{s.cfg.ServerName, token}})
}

// announceGroup emits the join burst for a freshly projected group:
// self JOIN, topic, and the member list.
func (s *Session) announceGroup(g *Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return
	}

	s.send(irc.Message{Prefix: s.avatar.Hostmask(s.cfg.ServerName), Command: irc.CmdJoin, Params: []string{g.Target()}})
	if g.Topic != "" {
		s.send(irc.Numeric(s.cfg.ServerName, irc.RplTopic, s.nickname, g.Target(), g.Topic))
	} else {
		s.send(irc.Numeric(s.cfg.ServerName, irc.RplNoTopic, s.nickname, g.Target(), "No topic is set"))
	}
	s.send(irc.Numeric(s.cfg.ServerName, irc.RplNamReply, s.nickname, "=", g.Target(), strings.Join(g.MemberNicks(), " ")))
	s.send(irc.Numeric(s.cfg.ServerName, irc.RplEndOfNames, s.nickname, g.Target(), "End of NAMES list"))
}

// serviceNotice delivers a service notice from outside the lock, used
// by the bridge task.
func (s *Session) serviceNotice(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.notice(text)
}

// streamClosed is called by the bridge when the event stream ends. A
// clean close means the session already shut down; anything else tears
// the connection down with a notice.
func (s *Session) streamClosed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	if err != nil {
		s.notice("Connection to Discord lost.")
	}
	s.closeLocked("event stream closed")
}

// avatarSnapshot hands the bridge the identity fields it needs without
// holding the lock across event processing.
func (s *Session) avatarSnapshot() (userID, homeGuildID string, nonces *NonceSet, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avatar == nil {
		return "", "", nil, false
	}
	return s.avatar.UserID, s.avatar.HomeGuildID, s.avatar.Nonces, true
}

// adoptHomeGuild records the fallback home guild chosen at READY time
// when the credential named none.
func (s *Session) adoptHomeGuild(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avatar != nil && s.avatar.HomeGuildID == "" {
		s.avatar.HomeGuildID = guildID
	}
}

func (s *Session) noticeAuthFailure(err error) {
	switch {
	case errors.Is(err, ErrMalformedCredential):
		s.notice("Unrecognized login format. Use email:password or a raw token as the server password.")
	case errors.Is(err, ErrAlreadyAuthenticated):
		s.notice("Already logged in. No pod people allowed!")
	case errors.Is(err, ErrRateLimited):
		s.notice("Login denied. You've probably hit the rate limit.")
	case errors.Is(err, ErrLogin):
		s.notice("Login failed. Goodbye.")
	default:
		s.notice("Server error during login. Sorry.")
	}
	s.log.Warn().Err(err).Msg("authentication failed")
}

// closeLocked is the single teardown path. Callers hold the lock.
func (s *Session) closeLocked(reason string) {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed

	if s.bridge != nil {
		s.bridge.Stop()
		s.bridge = nil
	}
	if s.avatar != nil {
		s.accounts.Release(s.avatar.UserID)
		for _, g := range s.dir.Groups() {
			g.RemoveMember(s.avatar.UserID)
		}
		s.avatar = nil
	}
	go s.logoutAsync()

	s.transport.Close()
	s.log.Info().Str("reason", reason).Msg("session closed")
}

// logoutAsync invalidates the cached token off the session lock. Safe
// when nothing is cached and when the remote side is already gone.
func (s *Session) logoutAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RemoteTimeout)
	defer cancel()
	s.auth.Logout(ctx)
}

// notice sends a service notice to the client. Callers hold the lock.
func (s *Session) notice(text string) {
	target := s.nickname
	if target == "" {
		target = "*"
	}
	s.send(irc.Notice(s.serviceSource(), target, text))
}

func (s *Session) sendMOTD() {
	s.send(irc.Numeric(s.cfg.ServerName, irc.RplMOTDStart, s.nickname, "- "+s.cfg.ServerName+" Message of the Day -"))
	for _, line := range s.cfg.MOTD {
		s.send(irc.Numeric(s.cfg.ServerName, irc.RplMOTD, s.nickname, line))
	}
	s.send(irc.Numeric(s.cfg.ServerName, irc.RplEndOfMOTD, s.nickname, "End of /MOTD command."))
}

// serviceSource is the pseudo-user all service notices come from.
func (s *Session) serviceSource() string {
	return "Discord!services@" + s.cfg.ServerName
}

func (s *Session) send(msg irc.Message) {
	s.transport.Send(msg)
}
