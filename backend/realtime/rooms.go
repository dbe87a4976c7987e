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

package realtime

import (
	"encoding/json"
)

// RoomSync patches live room membership when group membership changes.
// Connections are addressed only through identity rooms: a control event
// published on a user's identity-room channel reaches every process
// hosting one of that user's connections, wherever in the fleet it lives.
// A connection that is offline during a change picks up the correct room
// set on its next connect, when rooms are recomputed from the directory
// store in full.
type RoomSync struct {
	bus Bus
}

func NewRoomSync(bus Bus) *RoomSync {
	return &RoomSync{bus: bus}
}

// JoinGroupRoom subscribes every live connection of userID, on every
// process, to the group's room. Invoked when the user is added to a
// group.
func (s *RoomSync) JoinGroupRoom(userID, groupID string) error {
	return s.publishChange(EventJoinRoom, userID, groupID)
}

// LeaveGroupRoom is the inverse, invoked when the user is removed,
// leaves, or the group is deleted.
func (s *RoomSync) LeaveGroupRoom(userID, groupID string) error {
	return s.publishChange(EventLeaveRoom, userID, groupID)
}

func (s *RoomSync) publishChange(name, userID, groupID string) error {
	ev, err := NewEvent(name, roomChangePayload{Room: GroupRoom(groupID)})
	if err != nil {
		return err
	}
	return s.bus.Publish(UserRoom(userID), ev)
}

// RoomChange decodes a control event's target room. ok is false for
// events that are not room-change controls.
func RoomChange(ev Event) (room string, ok bool) {
	if ev.Event != EventJoinRoom && ev.Event != EventLeaveRoom {
		return "", false
	}
	var payload roomChangePayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.Room == "" {
		return "", false
	}
	return payload.Room, true
}
