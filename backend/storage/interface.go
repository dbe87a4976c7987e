// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

import (
	"errors"

	"github.com/efchatnet/efchat/backend/models"
)

// ErrNotFound is returned by lookups for rows that do not exist, so
// handlers can map store misses to 404 without leaking sql internals.
var ErrNotFound = errors.New("not found")

type UserStore interface {
	CreateUser(user *models.User) error
	GetUser(id string) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	GetUsersByIDs(ids []string) ([]models.User, error)
	GetUsersByUsernames(usernames []string) ([]models.User, error)
	ListUsers(excludeID string) ([]models.User, error)
	UpdateProfile(user *models.User) error
}

type ConversationStore interface {
	// FindOrCreateConversation returns the unique conversation for the
	// unordered pair, creating it atomically if it does not exist yet.
	// Concurrent first-sends between the same pair converge on one row.
	FindOrCreateConversation(userA, userB string) (*models.Conversation, error)

	// SaveMessage appends the message to its conversation's sequence.
	SaveMessage(msg *models.Message) error

	// ListMessages returns one reverse-chronological page. Page numbers
	// start at 1.
	ListMessages(conversationID string, page, limit int) ([]models.Message, error)
}

type GroupStore interface {
	// CreateGroup persists the group and its initial membership rows.
	// Group.Admins must be a subset of Group.Participants.
	CreateGroup(group *models.GroupConversation) error
	GetGroup(id string) (*models.GroupConversation, error)
	GetGroupsForUser(userID string) ([]models.GroupConversation, error)
	GetGroupIDsForUser(userID string) ([]string, error)
	UpdateGroupName(id, name string) error
	UpdateGroupIcon(id, icon string) error
	DeleteGroup(id string) error

	AddMembers(groupID string, userIDs []string) error
	// RemoveMember drops the membership row; an admin row drops the admin
	// bit with it, keeping admins inside the participant set.
	RemoveMember(groupID, userID string) error

	// SaveGroupMessage persists the message and moves the group's
	// last-message pointer.
	SaveGroupMessage(msg *models.GroupMessage) error
	ListGroupMessages(groupID string, page, limit int) ([]models.GroupMessage, error)
}

type Store interface {
	UserStore
	ConversationStore
	GroupStore
}
