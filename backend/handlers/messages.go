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
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efchat/backend/models"
	"github.com/efchatnet/efchat/backend/realtime"
	"github.com/efchatnet/efchat/backend/storage"
)

const defaultPageSize = 30

type directStore interface {
	storage.UserStore
	storage.ConversationStore
}

type MessageHandler struct {
	store directStore
	bus   realtime.Bus
}

func NewMessageHandler(store directStore, bus realtime.Bus) *MessageHandler {
	return &MessageHandler{store: store, bus: bus}
}

// SendMessage persists a direct message and pushes it to the receiver's
// identity room. Validation and persistence come first; a missed live
// delivery is not an error, the receiver reads the message off the next
// history fetch.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := r.Context().Value("user_id").(string)
	receiverID := mux.Vars(r)["id"]

	if _, err := uuid.Parse(receiverID); err != nil {
		http.Error(w, "Invalid user ID format", http.StatusBadRequest)
		return
	}
	if receiverID == senderID {
		http.Error(w, "Cannot message yourself", http.StatusBadRequest)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetUser(receiverID); err == storage.ErrNotFound {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	conv, err := h.store.FindOrCreateConversation(senderID, receiverID)
	if err != nil {
		log.Printf("Failed to resolve conversation %s/%s: %v", senderID, receiverID, err)
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           req.Message,
		CreatedAt:      time.Now(),
	}
	if err := h.store.SaveMessage(msg); err != nil {
		log.Printf("Failed to save message in %s: %v", conv.ID, err)
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	publish(h.bus, realtime.UserRoom(receiverID), realtime.EventNewMessage, msg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// ListMessages returns one reverse-chronological page of the direct
// history with the user in the path.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)
	otherID := mux.Vars(r)["id"]

	if _, err := uuid.Parse(otherID); err != nil {
		http.Error(w, "Invalid user ID format", http.StatusBadRequest)
		return
	}
	if otherID == userID {
		http.Error(w, "Cannot message yourself", http.StatusBadRequest)
		return
	}

	// The other user must exist before find-or-create runs, otherwise a
	// history fetch would persist a conversation with a ghost.
	if _, err := h.store.GetUser(otherID); err == storage.ErrNotFound {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	conv, err := h.store.FindOrCreateConversation(userID, otherID)
	if err != nil {
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	page, limit := pagination(r)
	msgs, err := h.store.ListMessages(conv.ID, page, limit)
	if err != nil {
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

// pagination reads ?page and ?limit, defaulting to the first page of 30.
func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = defaultPageSize
	}
	return page, limit
}

// publish pushes an event to a room, logging and swallowing failures:
// the message is already durable, a lost push only costs the live
// notification.
func publish(bus realtime.Bus, room, name string, data interface{}) {
	ev, err := realtime.NewEvent(name, data)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", name, err)
		return
	}
	if err := bus.Publish(room, ev); err != nil {
		log.Printf("Failed to publish %s to %s: %v", name, room, err)
	}
}
