package core

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var errTest = errors.New("gateway connection reset")

func TestLoginHappyPath(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	if !f.transport.contains("001") || !f.transport.contains("Welcome to discord.gg") {
		t.Fatalf("welcome missing: %v", f.transport.snapshot())
	}
	if !f.transport.contains("welcome aboard") {
		t.Fatalf("MOTD missing")
	}
	if !f.transport.contains("Connection to discord established.") {
		t.Fatalf("established notice missing")
	}
	if !f.transport.contains("332") || !f.transport.contains("general talk") {
		t.Fatalf("topic missing: %v", f.transport.snapshot())
	}
	if !f.transport.contains("Bob_the_builder") {
		t.Fatalf("names list should carry the folded member nick")
	}
	if f.transport.contains("#staff") {
		t.Fatalf("unreadable channel leaked onto the wire")
	}
	if f.transport.contains("#lounge") {
		t.Fatalf("voice channel leaked onto the wire")
	}
}

func TestLoginCorrectsRequestedNick(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("PASS alice@example.com:secret")
	f.session.HandleLine("NICK liar")
	waitFor(t, "authenticated state", func() bool { return f.session.State() == StateAuthenticated })

	if f.session.Nick() != "alice" {
		t.Fatalf("nick = %q, want the remote account name", f.session.Nick())
	}
	if !f.transport.contains(":liar!liar@discord.gg NICK alice") {
		t.Fatalf("nick correction missing: %v", f.transport.snapshot())
	}
}

func TestTokenLogin(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("PASS tok-1")
	f.session.HandleLine("NICK alice")
	waitFor(t, "authenticated state", func() bool { return f.session.State() == StateAuthenticated })

	login, validate, _, _ := f.client.calls()
	if login != 0 || validate != 1 {
		t.Fatalf("token login used wrong endpoint: login=%d validate=%d", login, validate)
	}
}

func TestMalformedCredentialClosesSession(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("PASS a:b:c")
	f.session.HandleLine("NICK alice")
	waitFor(t, "session closed", func() bool { return f.session.State() == StateClosed })

	if !f.transport.contains("Unrecognized login format") {
		t.Fatalf("format notice missing: %v", f.transport.snapshot())
	}
	if !f.transport.isClosed() {
		t.Fatalf("transport left open")
	}
	login, validate, _, _ := f.client.calls()
	if login != 0 || validate != 0 {
		t.Fatalf("malformed credential reached the remote service")
	}
}

func TestWrongPasswordClosesSession(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("PASS alice@example.com:nope")
	f.session.HandleLine("NICK alice")
	waitFor(t, "session closed", func() bool { return f.session.State() == StateClosed })

	if !f.transport.contains("Login failed. Goodbye.") {
		t.Fatalf("failure notice missing: %v", f.transport.snapshot())
	}
}

func TestLoginRateLimitedBeforeRemoteCall(t *testing.T) {
	f := newSessionFixture(t)
	for i := 0; i < 5; i++ {
		if !f.loginReg.Consume("alice@example.com", 1) {
			t.Fatalf("setup consume %d refused", i)
		}
	}

	f.session.HandleLine("PASS alice@example.com:secret")
	f.session.HandleLine("NICK alice")
	waitFor(t, "session closed", func() bool { return f.session.State() == StateClosed })

	if !f.transport.contains("hit the rate limit") {
		t.Fatalf("rate limit notice missing: %v", f.transport.snapshot())
	}
	login, _, _, _ := f.client.calls()
	if login != 0 {
		t.Fatalf("throttled attempt reached the remote service")
	}
}

func TestNickWithoutPasswordClosesSession(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("NICK alice")

	if f.session.State() != StateClosed {
		t.Fatalf("state = %v, want closed", f.session.State())
	}
	if !f.transport.contains("Server Password box") {
		t.Fatalf("instruction notice missing: %v", f.transport.snapshot())
	}
}

func TestNickWhileAuthenticatingIsRefused(t *testing.T) {
	f := newSessionFixture(t)
	gate := make(chan struct{})
	f.client.loginGate = gate

	f.session.HandleLine("PASS alice@example.com:secret")
	f.session.HandleLine("NICK alice")
	waitFor(t, "attempt in flight", func() bool { return f.session.State() == StateAuthenticating })

	f.session.HandleLine("NICK bob")
	if !f.transport.contains("Authentication already in progress") {
		t.Fatalf("single-flight notice missing: %v", f.transport.snapshot())
	}

	close(gate)
	waitFor(t, "authenticated state", func() bool { return f.session.State() == StateAuthenticated })
}

func TestPassWhenAuthenticatedRejected(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("PASS whatever")
	if !f.transport.contains("No pod people allowed!") {
		t.Fatalf("rejection notice missing")
	}
	if f.session.State() != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", f.session.State())
	}
}

func TestSecondSessionSameAccountRejected(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	transport2 := &fakeTransport{}
	cfg := SessionConfig{ServerName: "discord.gg", RemoteTimeout: 2 * time.Second}
	s2 := NewSession("s2", transport2, f.client, f.loginReg, f.nickReg, f.accounts, cfg, zerolog.Nop())
	s2.Start()
	t.Cleanup(s2.Close)

	s2.HandleLine("PASS alice@example.com:secret")
	s2.HandleLine("NICK alice")
	waitFor(t, "second session closed", func() bool { return s2.State() == StateClosed })

	if !transport2.contains("No pod people allowed!") {
		t.Fatalf("duplicate login notice missing: %v", transport2.snapshot())
	}
	if f.session.State() != StateAuthenticated {
		t.Fatalf("first session disturbed by the duplicate login")
	}

	// The token belongs to the first session; the loser must not
	// invalidate it remotely.
	time.Sleep(50 * time.Millisecond)
	_, _, _, logout := f.client.calls()
	if logout != 0 {
		t.Fatalf("duplicate login invalidated the shared token")
	}
}

func TestPrivmsgBeforeAuthentication(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("PRIVMSG #general_chat :hello")

	if !f.transport.contains("Please wait until authentication has completed") {
		t.Fatalf("pre-auth notice missing: %v", f.transport.snapshot())
	}
	if len(f.client.sentMessages()) != 0 {
		t.Fatalf("unauthenticated message reached the remote service")
	}
}

func TestPrivmsgForwardsToChannel(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("PRIVMSG #general_chat :hello world")
	waitFor(t, "message forwarded", func() bool { return len(f.client.sentMessages()) == 1 })

	sent := f.client.sentMessages()[0]
	if sent.ChannelID != "c1" {
		t.Fatalf("channel = %q, want c1", sent.ChannelID)
	}
	if sent.Text != "hello world" {
		t.Fatalf("text = %q", sent.Text)
	}
	if sent.Nonce == "" {
		t.Fatalf("forwarded message carries no nonce")
	}
}

func TestPrivmsgActionTranslated(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("PRIVMSG #general_chat :\x01ACTION waves\x01")
	waitFor(t, "message forwarded", func() bool { return len(f.client.sentMessages()) == 1 })

	if got := f.client.sentMessages()[0].Text; got != "_waves_" {
		t.Fatalf("action text = %q, want _waves_", got)
	}
}

func TestPrivmsgUnknownTarget(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("PRIVMSG #nowhere :hi")
	if !f.transport.contains("401 alice #nowhere") {
		t.Fatalf("401 missing: %v", f.transport.snapshot())
	}
	if len(f.client.sentMessages()) != 0 {
		t.Fatalf("message for unknown target was forwarded")
	}
}

func TestNickChangeSuccess(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("NICK alicia secret")
	waitFor(t, "nick change", func() bool { return f.session.Nick() == "alicia" })

	if !f.transport.contains(":alice!alice#0042@discord.gg NICK alicia") {
		t.Fatalf("NICK announcement missing: %v", f.transport.snapshot())
	}

	// WHOIS resolves the new nick afterwards.
	f.session.HandleLine("WHOIS alicia")
	if !f.transport.contains("311 alicia alicia") {
		t.Fatalf("WHOIS misses the renamed user: %v", f.transport.snapshot())
	}
}

func TestNickChangeWrongPasswordLeavesIdentity(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("NICK alicia wrongpass")
	waitFor(t, "rejection notice", func() bool { return f.transport.contains("wrong password") })

	if f.session.Nick() != "alice" {
		t.Fatalf("failed change moved the nick to %q", f.session.Nick())
	}
	if f.session.State() != StateAuthenticated {
		t.Fatalf("failed change changed the state to %v", f.session.State())
	}
}

func TestNickChangeWithoutPassword(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("NICK alicia")
	if !f.transport.contains("supply your password") {
		t.Fatalf("usage notice missing: %v", f.transport.snapshot())
	}
	_, _, change, _ := f.client.calls()
	if change != 0 {
		t.Fatalf("change without password reached the remote service")
	}
}

func TestNickChangeRateLimited(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	for i := 0; i < 2; i++ {
		if !f.nickReg.Consume("u1", 1) {
			t.Fatalf("setup consume %d refused", i)
		}
	}

	f.session.HandleLine("NICK alicia secret")
	if !f.transport.contains("Nick change denied") {
		t.Fatalf("rate limit notice missing: %v", f.transport.snapshot())
	}
	_, _, change, _ := f.client.calls()
	if change != 0 {
		t.Fatalf("throttled change reached the remote service")
	}
	if f.session.Nick() != "alice" {
		t.Fatalf("throttled change moved the nick")
	}
}

func TestWhois(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("WHOIS Bob_the_builder")
	if !f.transport.contains("311 alice Bob_the_builder Bob_the_builder#0007") {
		t.Fatalf("311 missing: %v", f.transport.snapshot())
	}
	if !f.transport.contains("End of WHOIS list") {
		t.Fatalf("318 missing")
	}

	f.session.HandleLine("WHOIS ghost")
	if !f.transport.contains("401 alice ghost") {
		t.Fatalf("401 for unknown nick missing: %v", f.transport.snapshot())
	}
}

func TestPingPong(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("PING :abc123")

	if !f.transport.contains("PONG discord.gg abc123") {
		t.Fatalf("PONG missing: %v", f.transport.snapshot())
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newSessionFixture(t)
	f.session.HandleLine("WALLOPS everyone")

	if !f.transport.contains("421 * WALLOPS") {
		t.Fatalf("421 missing: %v", f.transport.snapshot())
	}
}

func TestQuitLogsOutAndReleasesAccount(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.session.HandleLine("QUIT :bye")
	if f.session.State() != StateClosed {
		t.Fatalf("state = %v, want closed", f.session.State())
	}
	if !f.transport.isClosed() {
		t.Fatalf("transport left open")
	}

	waitFor(t, "remote logout", func() bool {
		_, _, _, logout := f.client.calls()
		return logout == 1
	})
	if !f.accounts.Claim("u1") {
		t.Fatalf("account still held after close")
	}
}

func TestStreamLossClosesSession(t *testing.T) {
	f := newSessionFixture(t)
	f.authenticate(t)

	f.client.gateway().fail(errTest)
	waitFor(t, "session closed", func() bool { return f.session.State() == StateClosed })

	if !f.transport.contains("Connection to Discord lost.") {
		t.Fatalf("loss notice missing: %v", f.transport.snapshot())
	}
	if !f.transport.isClosed() {
		t.Fatalf("transport left open")
	}
}
