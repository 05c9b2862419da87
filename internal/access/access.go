// Package access holds the authorization predicates for channels and
// messages. Every function is pure: it looks only at the entities it is
// given, so callers decide what state to load and when.
package access

import "messager/internal/storage"

// CanRead reports whether the user may see the channel and its messages:
// admins, the creator, and members qualify.
func CanRead(user storage.User, channel storage.Channel) bool {
	if user.IsAdmin {
		return true
	}
	if channel.CreatedBy == user.ID {
		return true
	}
	return channel.IsMember(user.ID)
}

// CanWrite reports whether the user may post to the channel.
// Membership implies posting rights, so the rule matches CanRead.
func CanWrite(user storage.User, channel storage.Channel) bool {
	return CanRead(user, channel)
}

// CanManageMembers reports whether the user may add or remove channel members
func CanManageMembers(user storage.User, channel storage.Channel) bool {
	return user.IsAdmin || channel.CreatedBy == user.ID
}

// CanDeleteChannel reports whether the user may delete the channel. The
// channel named defaultChannel is protected from everyone, admins included.
func CanDeleteChannel(user storage.User, channel storage.Channel, defaultChannel string) bool {
	if channel.Name == defaultChannel {
		return false
	}
	return user.IsAdmin || channel.CreatedBy == user.ID
}

// CanDeleteMessage reports whether the user may delete the message:
// admins and the author qualify.
func CanDeleteMessage(user storage.User, message storage.Message) bool {
	return user.IsAdmin || message.AuthorID == user.ID
}

// CanRemoveMember reports whether the user may remove target from the
// channel. The creator is un-removable.
func CanRemoveMember(user storage.User, channel storage.Channel, target storage.User) bool {
	if target.ID == channel.CreatedBy {
		return false
	}
	return CanManageMembers(user, channel)
}
