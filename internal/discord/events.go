package discord

// Event is a typed push event from the gateway stream. Consumers switch
// on the concrete type; unrecognized payloads arrive as UnknownEvent so
// the stream never stalls on new event kinds.
type Event interface {
	eventName() string
}

// ReadyEvent opens every gateway session: the authenticated user and the
// guild snapshots known at connect time.
type ReadyEvent struct {
	User   Profile `json:"user"`
	Guilds []Guild `json:"guilds"`
}

// GuildCreateEvent announces a guild becoming available, or a lazy-load
// of a guild referenced as unavailable in READY.
type GuildCreateEvent struct {
	Guild
}

// MessageCreateEvent is a message posted to a channel the user can see.
type MessageCreateEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Author    User   `json:"author"`
	Content   string `json:"content"`
	Nonce     string `json:"nonce,omitempty"`
}

// PresenceUpdateEvent tracks a member's presence. The gateway consumes
// and ignores these.
type PresenceUpdateEvent struct {
	User    User   `json:"user"`
	GuildID string `json:"guild_id"`
	Status  string `json:"status"`
}

// UnknownEvent carries the name of an event the client does not decode.
type UnknownEvent struct {
	Type string
}

func (ReadyEvent) eventName() string          { return "READY" }
func (GuildCreateEvent) eventName() string    { return "GUILD_CREATE" }
func (MessageCreateEvent) eventName() string  { return "MESSAGE_CREATE" }
func (PresenceUpdateEvent) eventName() string { return "PRESENCE_UPDATE" }
func (e UnknownEvent) eventName() string      { return e.Type }
