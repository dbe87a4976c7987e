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
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const onlineSetKey = "presence:online"

// Presence maintains the fleet-wide set of online users in redis and
// broadcasts transitions on the global channel. The set is the single
// authority: no process keeps its own copy.
type Presence struct {
	rdb *redis.Client
	bus Bus
	ctx context.Context
}

func NewPresence(rdb *redis.Client, bus Bus) *Presence {
	return &Presence{
		rdb: rdb,
		bus: bus,
		ctx: context.Background(),
	}
}

// MarkOnline adds the user to the online set and reports whether they
// were already in it, so a second simultaneous connection does not
// trigger a duplicate broadcast.
func (p *Presence) MarkOnline(userID string) (already bool, err error) {
	added, err := p.rdb.SAdd(p.ctx, onlineSetKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %s online: %w", userID, err)
	}
	return added == 0, nil
}

// MarkOffline removes the user unconditionally. A user with several live
// connections goes offline when any of them drops; tracking a connection
// count per user is a known gap carried over from the original design.
func (p *Presence) MarkOffline(userID string) error {
	if err := p.rdb.SRem(p.ctx, onlineSetKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to mark %s offline: %w", userID, err)
	}
	return nil
}

// Snapshot returns the current online set, sent privately to each
// freshly attached connection.
func (p *Presence) Snapshot() ([]string, error) {
	users, err := p.rdb.SMembers(p.ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read online set: %w", err)
	}
	return users, nil
}

func (p *Presence) BroadcastOnline(userID string) error {
	return p.broadcast(EventUserOnline, userID)
}

func (p *Presence) BroadcastOffline(userID string) error {
	return p.broadcast(EventUserOffline, userID)
}

func (p *Presence) broadcast(name, userID string) error {
	ev, err := NewEvent(name, PresencePayload{UserID: userID})
	if err != nil {
		return err
	}
	return p.bus.PublishGlobal(ev)
}
