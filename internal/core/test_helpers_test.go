package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/discord"
	"github.com/vovakirdan/drawbridge/internal/irc"
	"github.com/vovakirdan/drawbridge/internal/ratelimit"
)

// fakeTransport records everything the session puts on the wire.
type fakeTransport struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (t *fakeTransport) Send(msg irc.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, msg.String())
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

func (t *fakeTransport) contains(substr string) bool {
	return t.count(substr) > 0
}

func (t *fakeTransport) count(substr string) int {
	n := 0
	for _, line := range t.snapshot() {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

// waitFor polls until the condition holds or the test deadline hits.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeStream is a controllable gateway stream.
type fakeStream struct {
	events    chan discord.Event
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan discord.Event, 16)}
}

func (s *fakeStream) Events() <-chan discord.Event { return s.events }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

func (s *fakeStream) emit(ev discord.Event) {
	s.events <- ev
}

// fail simulates the gateway connection dropping with an error.
func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.Close()
}

type sentMessage struct {
	ChannelID string
	Text      string
	Nonce     string
}

// fakeClient is an in-memory remote service.
type fakeClient struct {
	mu sync.Mutex

	email    string
	password string
	token    string
	profile  discord.Profile
	guilds   []discord.Guild

	loginErr  error
	changeErr error

	// When set, Login blocks until the channel closes.
	loginGate chan struct{}

	loginCalls    int
	validateCalls int
	changeCalls   int
	logoutCalls   int

	sent   []sentMessage
	stream *fakeStream
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		email:    "alice@example.com",
		password: "secret",
		token:    "tok-1",
		profile:  discord.Profile{User: discord.User{ID: "u1", Username: "alice", Discriminator: "0042"}, Email: "alice@example.com"},
	}
}

func (f *fakeClient) Login(_ context.Context, email, password string) (discord.Auth, error) {
	f.mu.Lock()
	f.loginCalls++
	gate := f.loginGate
	loginErr := f.loginErr
	wantEmail, wantPassword := f.email, f.password
	auth := discord.Auth{Token: f.token, Profile: f.profile}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if loginErr != nil {
		return discord.Auth{}, loginErr
	}
	if email != wantEmail || password != wantPassword {
		return discord.Auth{}, discord.ErrUnauthorized
	}
	return auth, nil
}

func (f *fakeClient) ValidateToken(_ context.Context, token string) (discord.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	if token != f.token {
		return discord.Profile{}, discord.ErrUnauthorized
	}
	return f.profile, nil
}

func (f *fakeClient) ChangeIdentity(_ context.Context, _, newName, password string) (discord.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changeCalls++
	if f.changeErr != nil {
		return discord.Profile{}, f.changeErr
	}
	if password != f.password {
		return discord.Profile{}, discord.ErrUnauthorized
	}
	p := f.profile
	p.Username = newName
	f.profile = p
	return p, nil
}

func (f *fakeClient) Logout(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeClient) ListGuilds(_ context.Context, _ string) ([]discord.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.guilds, nil
}

func (f *fakeClient) SendMessage(_ context.Context, _, channelID, text, nonce string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Text: text, Nonce: nonce})
	return "m1", nil
}

// OpenGateway hands out a fresh stream per call so concurrent sessions
// do not share one.
func (f *fakeClient) OpenGateway(_ context.Context, _ string) (discord.EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream = newFakeStream()
	return f.stream, nil
}

// gateway returns the stream handed to the most recent OpenGateway call.
func (f *fakeClient) gateway() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stream
}

func (f *fakeClient) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeClient) calls() (login, validate, change, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.validateCalls, f.changeCalls, f.logoutCalls
}

// fakeAccounts is a map-backed AccountRegistry.
type fakeAccounts struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{active: make(map[string]struct{})}
}

func (a *fakeAccounts) Claim(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.active[userID]; ok {
		return false
	}
	a.active[userID] = struct{}{}
	return true
}

func (a *fakeAccounts) Release(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, userID)
}

// testHomeGuild builds a guild with a readable text channel, a staff
// channel hidden from plain members, and a voice channel.
func testHomeGuild() discord.Guild {
	return discord.Guild{
		ID:      "g1",
		Name:    "Test Guild",
		OwnerID: "owner",
		Roles: []discord.Role{
			{ID: "g1", Name: "everyone", Permissions: discord.PermReadMessages | discord.PermSendMessages},
		},
		Members: []discord.Member{
			{User: discord.User{ID: "u1", Username: "alice", Discriminator: "0042"}},
			{User: discord.User{ID: "u2", Username: "Böb the builder", Discriminator: "0007"}},
		},
		Channels: []discord.Channel{
			{ID: "c1", GuildID: "g1", Name: "general chat", Type: discord.ChannelText, Topic: "general talk"},
			{ID: "c2", GuildID: "g1", Name: "staff", Type: discord.ChannelText, Overwrites: []discord.Overwrite{
				{ID: "g1", Type: discord.OverwriteRole, Deny: discord.PermReadMessages},
			}},
			{ID: "c3", GuildID: "g1", Name: "lounge", Type: discord.ChannelVoice},
		},
	}
}

type sessionFixture struct {
	session   *Session
	transport *fakeTransport
	client    *fakeClient
	accounts  *fakeAccounts
	loginReg  *ratelimit.Registry
	nickReg   *ratelimit.Registry
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		transport: &fakeTransport{},
		client:    newFakeClient(),
		accounts:  newFakeAccounts(),
		loginReg:  ratelimit.NewRegistry(5, 5.0/300.0),
		nickReg:   ratelimit.NewRegistry(2, 2.0/3600.0),
	}
	cfg := SessionConfig{
		ServerName:    "discord.gg",
		MOTD:          []string{"welcome aboard"},
		RemoteTimeout: 2 * time.Second,
	}
	f.session = NewSession("s1", f.transport, f.client, f.loginReg, f.nickReg, f.accounts, cfg, zerolog.Nop())
	f.session.Start()
	t.Cleanup(f.session.Close)
	return f
}

// authenticate drives the fixture through the happy login path and the
// READY projection of the default test guild.
func (f *sessionFixture) authenticate(t *testing.T) {
	t.Helper()
	f.session.HandleLine("PASS alice@example.com:secret")
	f.session.HandleLine("NICK alice")
	waitFor(t, "authenticated state", func() bool { return f.session.State() == StateAuthenticated })

	f.client.gateway().emit(discord.ReadyEvent{
		User:   f.client.profile,
		Guilds: []discord.Guild{testHomeGuild()},
	})
	waitFor(t, "channel announcement", func() bool {
		return f.transport.contains("JOIN #general_chat") && f.transport.contains("End of NAMES list")
	})
}
