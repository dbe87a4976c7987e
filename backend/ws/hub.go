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

// Package ws manages the live websocket connections attached to this
// process. The hub's room table covers local connections only; the
// authoritative cross-process state lives behind the realtime bus.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/efchatnet/efchat/backend/realtime"
)

type Hub struct {
	bus realtime.Bus

	mu          sync.RWMutex
	clients     map[*Client]struct{}
	rooms       map[string]map[*Client]struct{}
	clientRooms map[*Client]map[string]struct{}

	// busMu serializes subscription reconciliation so racing join/leave
	// transitions on one room cannot apply their bus calls out of order.
	busMu sync.Mutex
}

func NewHub(bus realtime.Bus) *Hub {
	return &Hub{
		bus:         bus,
		clients:     make(map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		clientRooms: make(map[*Client]map[string]struct{}),
	}
}

// Start attaches the hub to the bus relay. Must be called once, before
// any connection is accepted.
func (h *Hub) Start() error {
	return h.bus.Start(h.dispatch)
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.clientRooms[c] = make(map[string]struct{})
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Client connected from %s. Local connections: %d", c.addr, count)
}

// Unregister removes the client from every local room, dropping the
// process's channel subscriptions for rooms it emptied, and closes the
// client's send queue. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	var emptied []string
	for room := range h.clientRooms[c] {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
				emptied = append(emptied, room)
			}
		}
	}
	delete(h.clientRooms, c)
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	for _, room := range emptied {
		h.syncSubscription(room)
	}
	log.Printf("Client disconnected from %s. Local connections: %d", c.addr, count)
}

// Join subscribes the client to a room. The first local member of a room
// opens the process's subscription to that room's relay channel.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := h.clientRooms[c][room]; ok {
		h.mu.Unlock()
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.clientRooms[c][room] = struct{}{}
	first := len(members) == 1
	h.mu.Unlock()

	if first {
		h.syncSubscription(room)
	}
}

// Leave removes the client from a room; the last local member leaving
// closes the process's subscription.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	if _, ok := h.clientRooms[c][room]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clientRooms[c], room)
	last := false
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
			last = true
		}
	}
	h.mu.Unlock()

	if last {
		h.syncSubscription(room)
	}
}

// syncSubscription reconciles the process's channel subscription for a
// room with current local membership. Membership is re-read under busMu,
// so whichever transition runs last leaves the subscription matching the
// membership it observes; a room repopulated between an empty transition
// and its bus call stays subscribed.
func (h *Hub) syncSubscription(room string) {
	h.busMu.Lock()
	defer h.busMu.Unlock()

	h.mu.RLock()
	_, occupied := h.rooms[room]
	h.mu.RUnlock()

	if occupied {
		if err := h.bus.Subscribe(room); err != nil {
			log.Printf("Failed to subscribe room %s: %v", room, err)
		}
		return
	}
	if err := h.bus.Unsubscribe(room); err != nil {
		log.Printf("Failed to unsubscribe room %s: %v", room, err)
	}
}

// dispatch handles every event relayed to this process: room-change
// controls patch local subscriptions, everything else is fanned out to
// the addressed connections.
func (h *Hub) dispatch(room string, ev realtime.Event) {
	if target, ok := realtime.RoomChange(ev); ok {
		// Control events arrive on an identity-room channel; they
		// apply to this process's connections in that identity room.
		for _, c := range h.roomSnapshot(room) {
			if ev.Event == realtime.EventJoinRoom {
				h.Join(c, target)
			} else {
				h.Leave(c, target)
			}
		}
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to encode event %s: %v", ev.Event, err)
		return
	}

	var targets []*Client
	if room == "" {
		targets = h.clientSnapshot()
	} else {
		targets = h.roomSnapshot(room)
	}
	for _, c := range targets {
		h.deliver(c, data)
	}
}

func (h *Hub) deliver(c *Client, data []byte) {
	if !c.trySend(data) {
		// Send queue full or connection gone: drop the straggler the
		// same way a missed heartbeat would.
		log.Printf("Dropping slow client %s (user %q)", c.addr, c.userID)
		h.Unregister(c)
	}
}

func (h *Hub) clientSnapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) roomSnapshot(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[room]
	clients := make([]*Client, 0, len(members))
	for c := range members {
		clients = append(clients, c)
	}
	return clients
}

// Rooms returns the client's current local room set, used by tests and
// diagnostics.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.clientRooms[c]))
	for room := range h.clientRooms[c] {
		rooms = append(rooms, room)
	}
	return rooms
}
