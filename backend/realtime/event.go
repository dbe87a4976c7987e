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

// Package realtime holds the cross-process pieces of live delivery: the
// redis-backed event bus that relays room traffic between server
// processes, the shared online-user set, and the room membership
// synchronizer. Rooms are addresses, not objects: a room exists wherever
// some process has a connection subscribed to its channel.
package realtime

import (
	"encoding/json"
)

// Client-visible event names. These are the socket event names the web
// client listens for.
const (
	EventOnlineUsers         = "onlineUsers"
	EventUserOnline          = "userOnline"
	EventUserOffline         = "userOffline"
	EventNewMessage          = "newMessage"
	EventNewGroupMessage     = "newGroupMessage"
	EventGroupUpdated        = "groupUpdated"
	EventGroupMembersUpdated = "groupMembersUpdated"
	EventAddedToGroup        = "addedToGroup"
	EventRemovedFromGroup    = "removedFromGroup"
)

// Control event names. They travel on identity-room channels and are
// consumed by the hub on every process; they are never forwarded to
// clients.
const (
	EventJoinRoom  = "_joinRoom"
	EventLeaveRoom = "_leaveRoom"
)

// Event is the wire envelope for everything pushed over a live
// connection, and the payload relayed between processes on room channels.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEvent wraps data in an envelope with the given event name.
func NewEvent(name string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: raw}, nil
}

// Payloads shared between publishers (handlers, presence) and clients.

type PresencePayload struct {
	UserID string `json:"user_id"`
}

type GroupUpdatedPayload struct {
	GroupID   string `json:"group_id"`
	Name      string `json:"name,omitempty"`
	GroupIcon string `json:"group_icon,omitempty"`
}

// MembersUpdatedPayload announces a membership change to the group room.
// Action is one of "added", "removed" or "left".
type MembersUpdatedPayload struct {
	GroupID string   `json:"group_id"`
	Action  string   `json:"action"`
	UserIDs []string `json:"user_ids"`
}

type RemovedFromGroupPayload struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

type roomChangePayload struct {
	Room string `json:"room"`
}

// UserRoom is the identity room for a user: direct messages and personal
// notifications are addressed to it.
func UserRoom(userID string) string {
	return userID
}

// GroupRoom is the fan-out target for a group's messages and state
// broadcasts.
func GroupRoom(groupID string) string {
	return "group:" + groupID
}
