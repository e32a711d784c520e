package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/drawbridge/internal/discord"
)

// User is the wire-visible projection of one remote member: a sanitized
// nick plus the discriminator that keeps homonyms apart.
type User struct {
	ID            string
	Nick          string
	Discriminator string
}

// Hostmask renders the protocol source for this user,
// "nick!nick#discriminator@server".
func (u *User) Hostmask(server string) string {
	return fmt.Sprintf("%s!%s#%s@%s", u.Nick, u.Nick, u.Discriminator, server)
}

// Group is the wire-visible projection of one remote text channel.
type Group struct {
	ChannelID string
	Name      string
	Topic     string

	mu      sync.Mutex
	members map[string]*User
}

// Target is the group's name as addressed on the wire, with the channel
// sigil.
func (g *Group) Target() string {
	return "#" + g.Name
}

// AddMember inserts a user into the group's member set. Returns true if
// the user was not already present.
func (g *Group) AddMember(u *User) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[u.ID]; ok {
		return false
	}
	g.members[u.ID] = u
	return true
}

// RemoveMember deletes a user from the member set. Returns true if the
// user was present.
func (g *Group) RemoveMember(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[userID]; !ok {
		return false
	}
	delete(g.members, userID)
	return true
}

// MemberNicks returns the members' nicks in stable order.
func (g *Group) MemberNicks() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	nicks := make([]string, 0, len(g.members))
	for _, u := range g.members {
		nicks = append(nicks, u.Nick)
	}
	sort.Strings(nicks)
	return nicks
}

// Directory is the session-scoped registry mapping remote entities onto
// local groups and users. It guarantees at most one Group per remote
// channel id and one User per remote user id. Sanitized names that
// collide keep their distinct entities; the later one simply loses the
// name-lookup slot.
type Directory struct {
	mu           sync.Mutex
	groupsByID   map[string]*Group
	groupsByName map[string]*Group
	usersByID    map[string]*User
	usersByNick  map[string]*User
}

// NewDirectory constructs an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		groupsByID:   make(map[string]*Group),
		groupsByName: make(map[string]*Group),
		usersByID:    make(map[string]*User),
		usersByNick:  make(map[string]*User),
	}
}

// CreateGroup projects a channel into a new Group. It fails with
// ErrDuplicateEntity when the channel id is already projected; callers
// on the initial-join path swallow that and fall back to lookup.
func (d *Directory) CreateGroup(ch *discord.Channel) (*Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.groupsByID[ch.ID]; ok {
		return nil, fmt.Errorf("%w: channel %s", ErrDuplicateEntity, ch.ID)
	}

	g := &Group{
		ChannelID: ch.ID,
		Name:      SanitizeName(ch.Name),
		Topic:     ch.Topic,
		members:   make(map[string]*User),
	}
	d.groupsByID[ch.ID] = g
	if key := canonicalName(g.Name); d.groupsByName[key] == nil {
		d.groupsByName[key] = g
	}
	return g, nil
}

// GetOrCreateGroup returns the existing Group for the channel id or
// creates one. Calling it twice with the same channel yields the same
// Group.
func (d *Directory) GetOrCreateGroup(ch *discord.Channel) *Group {
	g, err := d.CreateGroup(ch)
	if err == nil {
		return g
	}
	g, _ = d.GroupByID(ch.ID)
	return g
}

// GroupByID resolves a group by remote channel id.
func (d *Directory) GroupByID(channelID string) (*Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groupsByID[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return g, nil
}

// GroupByName resolves a group by its sanitized wire name, with or
// without the channel sigil.
func (d *Directory) GroupByName(name string) (*Group, error) {
	if len(name) > 0 && name[0] == '#' {
		name = name[1:]
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groupsByName[canonicalName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, name)
	}
	return g, nil
}

// Groups returns a snapshot of all projected groups.
func (d *Directory) Groups() []*Group {
	d.mu.Lock()
	defer d.mu.Unlock()
	groups := make([]*Group, 0, len(d.groupsByID))
	for _, g := range d.groupsByID {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// CreateUser projects a remote user into a new local User, failing with
// ErrDuplicateEntity when the remote id is already known.
func (d *Directory) CreateUser(ru discord.User) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.usersByID[ru.ID]; ok {
		return nil, fmt.Errorf("%w: user %s", ErrDuplicateEntity, ru.ID)
	}

	u := &User{
		ID:            ru.ID,
		Nick:          SanitizeName(ru.Username),
		Discriminator: ru.Discriminator,
	}
	d.usersByID[ru.ID] = u
	if key := canonicalName(u.Nick); d.usersByNick[key] == nil {
		d.usersByNick[key] = u
	}
	return u, nil
}

// GetOrCreateUser returns the existing User for the remote id or
// creates one.
func (d *Directory) GetOrCreateUser(ru discord.User) *User {
	u, err := d.CreateUser(ru)
	if err == nil {
		return u
	}
	u, _ = d.UserByID(ru.ID)
	return u
}

// UserByID resolves a user by remote id.
func (d *Directory) UserByID(id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.usersByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

// UserByNick resolves a user by sanitized nick, case-insensitively.
func (d *Directory) UserByNick(nick string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.usersByNick[canonicalName(nick)]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, nick)
	}
	return u, nil
}

// RenameUser updates a user's nick after a remote identity change,
// moving the name-lookup slot when this user owned it.
func (d *Directory) RenameUser(id, newName string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.usersByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}

	oldKey := canonicalName(u.Nick)
	if d.usersByNick[oldKey] == u {
		delete(d.usersByNick, oldKey)
	}
	u.Nick = SanitizeName(newName)
	if key := canonicalName(u.Nick); d.usersByNick[key] == nil {
		d.usersByNick[key] = u
	}
	return u, nil
}
