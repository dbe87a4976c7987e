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
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	roomChannelPrefix = "room:"
	globalChannel     = "events"
)

// Handler receives every event the process is subscribed to. room is ""
// for global events.
type Handler func(room string, ev Event)

// Bus relays room-addressed events between server processes. Publishing
// to a room nobody is subscribed to anywhere in the fleet is a silent
// no-op; persistence has already happened by the time anything is
// published, so a miss only skips the live push.
type Bus interface {
	Publish(room string, ev Event) error
	PublishGlobal(ev Event) error
	Subscribe(room string) error
	Unsubscribe(room string) error
	Start(h Handler) error
	Close() error
}

// RedisBus implements Bus on redis pub/sub. Each process holds one
// subscription connection; room channels are added and removed as local
// connections join and leave rooms, the global channel is held for the
// life of the process.
type RedisBus struct {
	rdb    *redis.Client
	ctx    context.Context
	pubsub *redis.PubSub
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{
		rdb: rdb,
		ctx: context.Background(),
	}
}

// Start subscribes to the global channel and begins dispatching relayed
// events to h from a background goroutine. Events for one channel are
// dispatched in publish order.
func (b *RedisBus) Start(h Handler) error {
	b.pubsub = b.rdb.Subscribe(b.ctx, globalChannel)
	// Force the subscription onto the wire before anyone publishes.
	if _, err := b.pubsub.Receive(b.ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event relay: %w", err)
	}

	go func() {
		for msg := range b.pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("Dropping malformed relay payload on %s: %v", msg.Channel, err)
				continue
			}
			h(roomFromChannel(msg.Channel), ev)
		}
	}()

	return nil
}

func (b *RedisBus) Publish(room string, ev Event) error {
	return b.publish(roomChannelPrefix+room, ev)
}

func (b *RedisBus) PublishGlobal(ev Event) error {
	return b.publish(globalChannel, ev)
}

func (b *RedisBus) publish(channel string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(b.ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(room string) error {
	return b.pubsub.Subscribe(b.ctx, roomChannelPrefix+room)
}

func (b *RedisBus) Unsubscribe(room string) error {
	return b.pubsub.Unsubscribe(b.ctx, roomChannelPrefix+room)
}

func (b *RedisBus) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

func roomFromChannel(channel string) string {
	if channel == globalChannel {
		return ""
	}
	return strings.TrimPrefix(channel, roomChannelPrefix)
}
