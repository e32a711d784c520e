package discord

// Permission bits. Only the ones the gateway cares about are named.
const (
	PermAdministrator uint64 = 1 << 3
	PermReadMessages  uint64 = 1 << 10
	PermSendMessages  uint64 = 1 << 11

	permAll = ^uint64(0)
)

// MemberPermissions computes the member's effective permissions on a
// channel: base role permissions first, then the channel's overwrites in
// everyone < role < member precedence. The guild owner and members with
// the administrator bit hold every permission regardless of overwrites.
func MemberPermissions(guild *Guild, channel *Channel, userID string) uint64 {
	if guild == nil {
		return 0
	}
	if guild.OwnerID == userID {
		return permAll
	}
	member := guild.Member(userID)
	if member == nil {
		return 0
	}

	perms := rolePermissions(guild, member)
	if perms&PermAdministrator != 0 {
		return permAll
	}
	if channel == nil {
		return perms
	}

	memberRoles := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		memberRoles[id] = struct{}{}
	}

	// The everyone overwrite shares the guild id.
	for _, ow := range channel.Overwrites {
		if ow.Type == OverwriteRole && ow.ID == guild.ID {
			perms = perms&^ow.Deny | ow.Allow
		}
	}
	var roleAllow, roleDeny uint64
	for _, ow := range channel.Overwrites {
		if ow.Type != OverwriteRole || ow.ID == guild.ID {
			continue
		}
		if _, ok := memberRoles[ow.ID]; ok {
			roleAllow |= ow.Allow
			roleDeny |= ow.Deny
		}
	}
	perms = perms&^roleDeny | roleAllow
	for _, ow := range channel.Overwrites {
		if ow.Type == OverwriteMember && ow.ID == userID {
			perms = perms&^ow.Deny | ow.Allow
		}
	}
	return perms
}

// CanRead reports whether the member may read the channel.
func CanRead(guild *Guild, channel *Channel, userID string) bool {
	return MemberPermissions(guild, channel, userID)&PermReadMessages != 0
}

func rolePermissions(guild *Guild, member *Member) uint64 {
	var perms uint64
	for _, role := range guild.Roles {
		// The everyone role applies to all members.
		if role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				perms |= role.Permissions
			}
		}
	}
	return perms
}
