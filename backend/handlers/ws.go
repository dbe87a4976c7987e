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

package handlers

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/efchatnet/efchat/backend/realtime"
	"github.com/efchatnet/efchat/backend/storage"
	"github.com/efchatnet/efchat/backend/ws"
)

// WSHandler upgrades HTTP connections and runs the per-connection
// session: room membership, presence, and the read/write pumps.
type WSHandler struct {
	hub      *ws.Hub
	presence *realtime.Presence
	groups   storage.GroupStore
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, presence *realtime.Presence, groups storage.GroupStore) *WSHandler {
	return &WSHandler{
		hub:      hub,
		presence: presence,
		groups:   groups,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS handles one websocket session from upgrade to disconnect.
// The userId query parameter is optional: without it the connection is
// anonymous, joined to no rooms and invisible to presence.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	userID := r.URL.Query().Get("userId")
	if _, err := uuid.Parse(userID); err != nil {
		userID = ""
	}

	client := ws.NewClient(h.hub, conn, userID, r.RemoteAddr)
	h.hub.Register(client)

	if userID != "" {
		h.connect(client, userID)
	}

	go client.WritePump()
	client.ReadPump()

	h.hub.Unregister(client)
	if userID != "" {
		h.disconnect(userID)
	}
}

// connect joins the client to its identity room and group rooms, marks
// it online, and hands it the presence snapshot. Room and presence
// failures degrade the session rather than aborting it.
func (h *WSHandler) connect(client *ws.Client, userID string) {
	h.hub.Join(client, realtime.UserRoom(userID))

	groupIDs, err := h.groups.GetGroupIDsForUser(userID)
	if err != nil {
		log.Printf("Failed to load group rooms for %s: %v", userID, err)
	}
	for _, groupID := range groupIDs {
		h.hub.Join(client, realtime.GroupRoom(groupID))
	}

	already, err := h.presence.MarkOnline(userID)
	if err != nil {
		log.Printf("Failed to mark %s online: %v", userID, err)
	} else if !already {
		if err := h.presence.BroadcastOnline(userID); err != nil {
			log.Printf("Failed to broadcast online for %s: %v", userID, err)
		}
	}

	online, err := h.presence.Snapshot()
	if err != nil {
		log.Printf("Failed to load presence snapshot for %s: %v", userID, err)
		return
	}
	ev, err := realtime.NewEvent(realtime.EventOnlineUsers, online)
	if err != nil {
		log.Printf("Failed to encode presence snapshot: %v", err)
		return
	}
	if err := client.SendEvent(ev); err != nil {
		log.Printf("Failed to send presence snapshot to %s: %v", userID, err)
	}
}

// disconnect marks the user offline and broadcasts it. Any remaining
// connections of the same user re-announce themselves on their next
// connect, so a stale offline beats a stale online.
func (h *WSHandler) disconnect(userID string) {
	if err := h.presence.MarkOffline(userID); err != nil {
		log.Printf("Failed to mark %s offline: %v", userID, err)
		return
	}
	if err := h.presence.BroadcastOffline(userID); err != nil {
		log.Printf("Failed to broadcast offline for %s: %v", userID, err)
	}
}
