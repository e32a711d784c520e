// Package discord talks to the remote guild-structured messaging service:
// typed entities, a REST client for auth and messaging, and a websocket
// gateway delivering push events. It knows nothing about IRC or sessions.
package discord

// ChannelType discriminates guild channels.
type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

// User is a remote account.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// Profile is the authenticated user's own account, as returned by the
// profile endpoint. Email is only present for the owning account.
type Profile struct {
	User
	Email string `json:"email,omitempty"`
}

// Auth is the result of a successful login: a bearer token and the
// profile tied to it.
type Auth struct {
	Token   string
	Profile Profile
}

// Role is a guild role carrying a permission bitset.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Permissions uint64 `json:"permissions"`
	Position    int    `json:"position"`
}

// Member is a user's membership in one guild.
type Member struct {
	User  User     `json:"user"`
	Nick  string   `json:"nick,omitempty"`
	Roles []string `json:"roles"`
}

// OverwriteType discriminates permission overwrites.
type OverwriteType string

const (
	OverwriteRole   OverwriteType = "role"
	OverwriteMember OverwriteType = "member"
)

// Overwrite adjusts permissions for one role or member on one channel.
type Overwrite struct {
	ID    string        `json:"id"`
	Type  OverwriteType `json:"type"`
	Allow uint64        `json:"allow"`
	Deny  uint64        `json:"deny"`
}

// Channel is a guild channel snapshot.
type Channel struct {
	ID         string      `json:"id"`
	GuildID    string      `json:"guild_id"`
	Name       string      `json:"name"`
	Type       ChannelType `json:"type"`
	Topic      string      `json:"topic,omitempty"`
	Overwrites []Overwrite `json:"permission_overwrites,omitempty"`
}

// Guild is a guild snapshot from READY or a guild event. When Unavailable
// is set the remaining fields are unreliable and the guild must be
// skipped.
type Guild struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id"`
	Unavailable bool      `json:"unavailable,omitempty"`
	Channels    []Channel `json:"channels,omitempty"`
	Members     []Member  `json:"members,omitempty"`
	Roles       []Role    `json:"roles,omitempty"`
}

// Member returns the guild member for a user id, or nil.
func (g *Guild) Member(userID string) *Member {
	for i := range g.Members {
		if g.Members[i].User.ID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// Channel returns the guild channel with the given id, or nil.
func (g *Guild) Channel(channelID string) *Channel {
	for i := range g.Channels {
		if g.Channels[i].ID == channelID {
			return &g.Channels[i]
		}
	}
	return nil
}
