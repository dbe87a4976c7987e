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

package ws

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/efchatnet/efchat/backend/realtime"
)

// fakeBus records subscription changes and published events instead of
// touching redis. Dispatch is driven directly by the tests.
type fakeBus struct {
	mu         sync.Mutex
	subscribed []string
	unsubbed   []string
	ops        []string
	published  []publishedEvent
	handler    realtime.Handler
}

type publishedEvent struct {
	room string
	ev   realtime.Event
}

func (b *fakeBus) Publish(room string, ev realtime.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{room: room, ev: ev})
	return nil
}

func (b *fakeBus) PublishGlobal(ev realtime.Event) error {
	return b.Publish("", ev)
}

func (b *fakeBus) Subscribe(room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, room)
	b.ops = append(b.ops, "subscribe "+room)
	return nil
}

func (b *fakeBus) Unsubscribe(room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubbed = append(b.unsubbed, room)
	b.ops = append(b.ops, "unsubscribe "+room)
	return nil
}

func (b *fakeBus) lastOp() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ops) == 0 {
		return ""
	}
	return b.ops[len(b.ops)-1]
}

func (b *fakeBus) Start(h realtime.Handler) error {
	b.handler = h
	return nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) subs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subscribed...)
}

func (b *fakeBus) unsubs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.unsubbed...)
}

func newTestClient(h *Hub, userID string) *Client {
	return NewClient(h, nil, userID, "test:"+userID)
}

func startHub(t *testing.T) (*Hub, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	hub := NewHub(bus)
	if err := hub.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return hub, bus
}

func mustEvent(t *testing.T, name string, data interface{}) realtime.Event {
	t.Helper()
	ev, err := realtime.NewEvent(name, data)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

// drain pulls every queued frame off a client's send channel.
func drain(c *Client) []realtime.Event {
	var events []realtime.Event
	for {
		select {
		case data := <-c.send:
			var ev realtime.Event
			if err := json.Unmarshal(data, &ev); err == nil {
				events = append(events, ev)
			}
		default:
			return events
		}
	}
}

func TestJoinSubscribesOnFirstLocalMember(t *testing.T) {
	hub, bus := startHub(t)

	a := newTestClient(hub, "user-a")
	b := newTestClient(hub, "user-b")
	hub.Register(a)
	hub.Register(b)

	hub.Join(a, "group:g1")
	hub.Join(b, "group:g1")

	if got := bus.subs(); len(got) != 1 || got[0] != "group:g1" {
		t.Fatalf("expected a single subscription to group:g1, got %v", got)
	}
}

func TestLeaveUnsubscribesOnLastLocalMember(t *testing.T) {
	hub, bus := startHub(t)

	a := newTestClient(hub, "user-a")
	b := newTestClient(hub, "user-b")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, "group:g1")
	hub.Join(b, "group:g1")

	hub.Leave(a, "group:g1")
	if got := bus.unsubs(); len(got) != 0 {
		t.Fatalf("unsubscribed while a member remained: %v", got)
	}

	hub.Leave(b, "group:g1")
	if got := bus.unsubs(); len(got) != 1 || got[0] != "group:g1" {
		t.Fatalf("expected unsubscribe from group:g1, got %v", got)
	}
}

func TestUnregisterDropsEmptiedRooms(t *testing.T) {
	hub, bus := startHub(t)

	a := newTestClient(hub, "user-a")
	hub.Register(a)
	hub.Join(a, "user-a")
	hub.Join(a, "group:g1")

	hub.Unregister(a)

	if got := bus.unsubs(); len(got) != 2 {
		t.Fatalf("expected both rooms unsubscribed, got %v", got)
	}
	// Send queue is closed; a second unregister must be a no-op.
	hub.Unregister(a)
}

func TestDispatchDeliversToRoomMembersOnly(t *testing.T) {
	hub, _ := startHub(t)

	member := newTestClient(hub, "user-a")
	outsider := newTestClient(hub, "user-b")
	hub.Register(member)
	hub.Register(outsider)
	hub.Join(member, "group:g1")

	ev := mustEvent(t, realtime.EventNewGroupMessage, map[string]string{"message": "hi"})
	hub.dispatch("group:g1", ev)

	if got := drain(member); len(got) != 1 || got[0].Event != realtime.EventNewGroupMessage {
		t.Fatalf("member received %v", got)
	}
	if got := drain(outsider); len(got) != 0 {
		t.Fatalf("outsider received %v", got)
	}
}

func TestDispatchGlobalReachesEveryConnection(t *testing.T) {
	hub, _ := startHub(t)

	a := newTestClient(hub, "user-a")
	anon := newTestClient(hub, "")
	hub.Register(a)
	hub.Register(anon)
	hub.Join(a, "user-a")

	ev := mustEvent(t, realtime.EventUserOnline, realtime.PresencePayload{UserID: "user-c"})
	hub.dispatch("", ev)

	if got := drain(a); len(got) != 1 || got[0].Event != realtime.EventUserOnline {
		t.Fatalf("authenticated client received %v", got)
	}
	if got := drain(anon); len(got) != 1 {
		t.Fatalf("anonymous client received %v", got)
	}
}

func TestControlEventJoinsIdentityRoomClients(t *testing.T) {
	hub, bus := startHub(t)

	// Two connections of the same user, one unrelated connection.
	tab1 := newTestClient(hub, "user-a")
	tab2 := newTestClient(hub, "user-a")
	other := newTestClient(hub, "user-b")
	for _, c := range []*Client{tab1, tab2, other} {
		hub.Register(c)
	}
	hub.Join(tab1, "user-a")
	hub.Join(tab2, "user-a")
	hub.Join(other, "user-b")

	join := mustEvent(t, realtime.EventJoinRoom, map[string]string{"room": "group:g1"})
	hub.dispatch("user-a", join)

	for _, c := range []*Client{tab1, tab2} {
		if !contains(hub.Rooms(c), "group:g1") {
			t.Fatalf("connection of user-a not joined: rooms %v", hub.Rooms(c))
		}
		// Control traffic never reaches the client.
		if got := drain(c); len(got) != 0 {
			t.Fatalf("control event leaked to client: %v", got)
		}
	}
	if contains(hub.Rooms(other), "group:g1") {
		t.Fatal("unrelated connection joined the room")
	}
	if got := bus.subs(); len(got) != 3 {
		// user-a once, user-b once, then group:g1 once.
		t.Fatalf("expected 3 subscriptions total, got %v", got)
	}

	leave := mustEvent(t, realtime.EventLeaveRoom, map[string]string{"room": "group:g1"})
	hub.dispatch("user-a", leave)

	for _, c := range []*Client{tab1, tab2} {
		if contains(hub.Rooms(c), "group:g1") {
			t.Fatalf("connection of user-a still in room: %v", hub.Rooms(c))
		}
	}
	if got := bus.unsubs(); len(got) != 1 || got[0] != "group:g1" {
		t.Fatalf("expected unsubscribe from group:g1, got %v", got)
	}
}

// A leave transition whose bus call is delayed past a new member's join
// must not strip the subscription out from under the new member: the
// reconciliation follows membership at the time it runs, not at the time
// the transition happened.
func TestSubscriptionFollowsCurrentMembership(t *testing.T) {
	hub, bus := startHub(t)

	a := newTestClient(hub, "user-a")
	b := newTestClient(hub, "user-b")
	hub.Register(a)
	hub.Register(b)

	hub.Join(a, "group:g1")
	hub.Leave(a, "group:g1")
	hub.Join(b, "group:g1")

	// Replay the emptied-room reconciliation as if Leave's bus call had
	// been delayed until after b joined.
	hub.syncSubscription("group:g1")

	if got := bus.lastOp(); got != "subscribe group:g1" {
		t.Fatalf("occupied room reconciled to %q", got)
	}

	hub.Leave(b, "group:g1")
	if got := bus.lastOp(); got != "unsubscribe group:g1" {
		t.Fatalf("empty room reconciled to %q", got)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub, _ := startHub(t)

	slow := newTestClient(hub, "user-a")
	hub.Register(slow)
	hub.Join(slow, "user-a")

	ev := mustEvent(t, realtime.EventNewMessage, map[string]string{"message": "x"})
	data, _ := json.Marshal(ev)
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- data
	}

	hub.dispatch("user-a", ev)

	if len(hub.Rooms(slow)) != 0 {
		t.Fatal("slow client still registered in rooms")
	}
	// Delivery to a dropped client must not panic even though the send
	// queue is closed.
	hub.dispatch("user-a", ev)
}

func contains(rooms []string, want string) bool {
	for _, r := range rooms {
		if r == want {
			return true
		}
	}
	return false
}
