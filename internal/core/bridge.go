package core

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/discord"
	"github.com/vovakirdan/drawbridge/internal/irc"
)

// EventBridge consumes one avatar's gateway stream, projects the home
// guild into the directory, and turns message events into wire lines.
// It runs on its own task; shared session state is reached only through
// the session's locked helpers.
type EventBridge struct {
	session *Session
	dir     *Directory
	stream  discord.EventStream
	log     zerolog.Logger

	stopOnce sync.Once

	// Touched only on the bridge task.
	homeGuild     *discord.Guild
	skippedGuilds int
}

// NewEventBridge wires a bridge to an open event stream.
func NewEventBridge(session *Session, dir *Directory, stream discord.EventStream, logger zerolog.Logger) *EventBridge {
	return &EventBridge{
		session: session,
		dir:     dir,
		stream:  stream,
		log:     logger.With().Str("component", "bridge").Logger(),
	}
}

// Run drains the stream until it closes, then reports the loss to the
// session. Meant to run as a goroutine.
func (b *EventBridge) Run() {
	for ev := range b.stream.Events() {
		b.handle(ev)
	}
	b.session.streamClosed(b.stream.Err())
}

// Stop closes the stream, which ends Run. Idempotent and non-blocking,
// so it is safe to call under the session lock.
func (b *EventBridge) Stop() {
	b.stopOnce.Do(func() {
		_ = b.stream.Close()
	})
}

// handle dispatches one event. A failure on a single event is logged
// and dropped; it must never take the bridge task down.
func (b *EventBridge) handle(ev discord.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("event handler panicked, event dropped")
		}
	}()

	switch ev := ev.(type) {
	case discord.ReadyEvent:
		b.handleReady(ev)
	case discord.GuildCreateEvent:
		b.handleGuildCreate(ev)
	case discord.MessageCreateEvent:
		b.handleMessage(ev)
	case discord.PresenceUpdateEvent:
		// Consumed and ignored.
	case discord.UnknownEvent:
		b.log.Debug().Str("type", ev.Type).Msg("ignoring unknown event")
	}
}

// handleReady picks the home guild and projects its channels. The
// credential's default guild wins; otherwise the first available guild
// in the payload does, an arbitrary but session-stable choice.
func (b *EventBridge) handleReady(ev discord.ReadyEvent) {
	userID, home, _, ok := b.session.avatarSnapshot()
	if !ok {
		return
	}

	b.session.serviceNotice("Connection to discord established.")

	if home == "" {
		for i := range ev.Guilds {
			if !ev.Guilds[i].Unavailable {
				home = ev.Guilds[i].ID
				b.session.adoptHomeGuild(home)
				break
			}
		}
	}

	for i := range ev.Guilds {
		g := &ev.Guilds[i]
		if g.Unavailable {
			b.skippedGuilds++
			continue
		}
		if g.ID == home {
			b.projectGuild(g, userID)
		}
	}
	if b.skippedGuilds > 0 {
		b.log.Info().Int("count", b.skippedGuilds).Msg("skipped unavailable guilds")
	}
}

// handleGuildCreate refreshes the home guild snapshot when it becomes
// available (or lazily loads), projecting any newly visible channels.
func (b *EventBridge) handleGuildCreate(ev discord.GuildCreateEvent) {
	userID, home, _, ok := b.session.avatarSnapshot()
	if !ok || ev.Guild.Unavailable {
		return
	}
	if home == "" {
		// Every guild was unavailable at READY time; the first one to
		// load becomes home.
		b.session.adoptHomeGuild(ev.Guild.ID)
		home = ev.Guild.ID
	}
	if ev.Guild.ID != home {
		return
	}
	guild := ev.Guild
	b.projectGuild(&guild, userID)
}

// projectGuild creates a group for every readable text channel and
// fills its member set. Only first-time projections are announced; the
// duplicate-create condition is swallowed by falling back to lookup.
func (b *EventBridge) projectGuild(g *discord.Guild, userID string) {
	b.homeGuild = g

	for i := range g.Channels {
		ch := &g.Channels[i]
		if ch.Type != discord.ChannelText {
			continue
		}
		if !discord.CanRead(g, ch, userID) {
			continue
		}

		group, err := b.dir.CreateGroup(ch)
		created := err == nil
		if !created {
			group, err = b.dir.GroupByID(ch.ID)
			if err != nil {
				b.log.Warn().Str("channel", ch.ID).Msg("channel vanished during projection")
				continue
			}
		}

		for j := range g.Members {
			m := &g.Members[j]
			if !discord.CanRead(g, ch, m.User.ID) {
				continue
			}
			group.AddMember(b.dir.GetOrCreateUser(m.User))
		}

		if created {
			b.session.announceGroup(group)
		}
	}
}

// handleMessage renders a channel message onto the wire. Events for
// channels outside the projected home guild miss the directory and are
// dropped; the avatar's own echo is recognized by nonce and consumed
// exactly once.
func (b *EventBridge) handleMessage(ev discord.MessageCreateEvent) {
	_, _, nonces, ok := b.session.avatarSnapshot()
	if !ok {
		return
	}

	group, err := b.dir.GroupByID(ev.ChannelID)
	if err != nil {
		b.log.Debug().Str("channel", ev.ChannelID).Msg("dropping message for unprojected channel")
		return
	}

	if ev.Nonce != "" && nonces.Consume(ev.Nonce) {
		// Our own message coming back around.
		return
	}

	sender := b.dir.GetOrCreateUser(ev.Author)
	mask := sender.Hostmask(b.session.cfg.ServerName)

	content := ev.Content
	if rest, found := strings.CutPrefix(content, "/me "); found {
		content = irc.Action(rest)
	}
	for _, line := range strings.Split(content, "\n") {
		b.session.send(irc.Privmsg(mask, group.Target(), line))
	}
}
