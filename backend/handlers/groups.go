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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efchat/backend/models"
	"github.com/efchatnet/efchat/backend/realtime"
	"github.com/efchatnet/efchat/backend/storage"
)

type groupStore interface {
	storage.UserStore
	storage.GroupStore
}

type GroupHandler struct {
	store groupStore
	bus   realtime.Bus
	rooms *realtime.RoomSync
}

func NewGroupHandler(store groupStore, bus realtime.Bus, rooms *realtime.RoomSync) *GroupHandler {
	return &GroupHandler{store: store, bus: bus, rooms: rooms}
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)

	var req struct {
		Name         string   `json:"name"`
		Participants []string `json:"participants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Participants == nil {
		http.Error(w, "Group name and participant IDs are required", http.StatusBadRequest)
		return
	}

	// Creator is always a participant, whether or not the request
	// included them.
	participants := dedupe(append(req.Participants, userID))
	if len(participants) < 2 {
		http.Error(w, "A group must have at least 2 participants including the creator", http.StatusBadRequest)
		return
	}
	for _, id := range participants {
		if _, err := uuid.Parse(id); err != nil {
			http.Error(w, "Invalid ID format provided for participants", http.StatusBadRequest)
			return
		}
	}

	users, err := h.store.GetUsersByIDs(participants)
	if err != nil {
		http.Error(w, "Failed to create group", http.StatusInternalServerError)
		return
	}
	if len(users) != len(participants) {
		unknown := missingIDs(participants, users)
		http.Error(w, "Invalid user IDs provided for participants: "+strings.Join(unknown, ", "), http.StatusBadRequest)
		return
	}

	group := &models.GroupConversation{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Participants: participants,
		Admins:       []string{userID},
	}
	if err := h.store.CreateGroup(group); err != nil {
		log.Printf("Failed to create group %s: %v", req.Name, err)
		http.Error(w, "Failed to create group", http.StatusInternalServerError)
		return
	}

	created, err := h.store.GetGroup(group.ID)
	if err != nil {
		http.Error(w, "Failed to create group", http.StatusInternalServerError)
		return
	}

	// Pull every member's live connections into the new room and tell
	// the others they were added.
	for _, memberID := range created.Participants {
		h.joinRoom(memberID, created.ID)
		if memberID != userID {
			publish(h.bus, realtime.UserRoom(memberID), realtime.EventAddedToGroup, created)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)

	groups, err := h.store.GetGroupsForUser(userID)
	if err != nil {
		http.Error(w, "Failed to list groups", http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []models.GroupConversation{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)

	group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	if !group.IsParticipant(userID) {
		http.Error(w, "Group not found or you are not a participant", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(group)
}

func (h *GroupHandler) UpdateGroupName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Group name is required", http.StatusBadRequest)
		return
	}

	group, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdateGroupName(group.ID, req.Name); err != nil {
		http.Error(w, "Failed to update group", http.StatusInternalServerError)
		return
	}
	group.Name = req.Name

	publish(h.bus, realtime.GroupRoom(group.ID), realtime.EventGroupUpdated,
		realtime.GroupUpdatedPayload{GroupID: group.ID, Name: req.Name})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(group)
}

func (h *GroupHandler) UpdateGroupIcon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupIcon *string `json:"group_icon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupIcon == nil {
		http.Error(w, "Group icon must be a string", http.StatusBadRequest)
		return
	}

	group, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdateGroupIcon(group.ID, *req.GroupIcon); err != nil {
		http.Error(w, "Failed to update group", http.StatusInternalServerError)
		return
	}
	group.GroupIcon = *req.GroupIcon

	publish(h.bus, realtime.GroupRoom(group.ID), realtime.EventGroupUpdated,
		realtime.GroupUpdatedPayload{GroupID: group.ID, GroupIcon: group.GroupIcon})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(group)
}

// DeleteGroup removes the group outright. Its messages are orphaned, not
// cascaded. Every participant's live connections get a removal notice
// and leave the room.
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteGroup(group.ID); err != nil {
		http.Error(w, "Failed to delete group", http.StatusInternalServerError)
		return
	}

	for _, memberID := range group.Participants {
		publish(h.bus, realtime.UserRoom(memberID), realtime.EventRemovedFromGroup,
			realtime.RemovedFromGroupPayload{GroupID: group.ID, GroupName: group.Name})
		h.leaveRoom(memberID, group.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Group deleted successfully"})
}

// AddMembers adds users by username. Unknown usernames fail the whole
// request; usernames already in the group are reported back, not
// re-added.
func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Usernames []string `json:"usernames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Usernames) == 0 {
		http.Error(w, "Member usernames array is required and cannot be empty", http.StatusBadRequest)
		return
	}

	group, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	users, err := h.store.GetUsersByUsernames(req.Usernames)
	if err != nil {
		http.Error(w, "Failed to add members", http.StatusInternalServerError)
		return
	}
	if missing := missingUsernames(req.Usernames, users); len(missing) > 0 {
		http.Error(w, "The following usernames were not found: "+strings.Join(missing, ", "), http.StatusBadRequest)
		return
	}

	var newIDs []string
	var alreadyIn []string
	for _, user := range users {
		if group.IsParticipant(user.ID) {
			alreadyIn = append(alreadyIn, user.Username)
		} else {
			newIDs = append(newIDs, user.ID)
		}
	}
	if len(newIDs) == 0 {
		msg := "No new members to add"
		if len(alreadyIn) > 0 {
			msg += ". Users " + strings.Join(alreadyIn, ", ") + " are already participants"
		}
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if err := h.store.AddMembers(group.ID, newIDs); err != nil {
		log.Printf("Failed to add members to %s: %v", group.ID, err)
		http.Error(w, "Failed to add members", http.StatusInternalServerError)
		return
	}

	updated, err := h.store.GetGroup(group.ID)
	if err != nil {
		http.Error(w, "Failed to add members", http.StatusInternalServerError)
		return
	}

	publish(h.bus, realtime.GroupRoom(group.ID), realtime.EventGroupMembersUpdated,
		realtime.MembersUpdatedPayload{GroupID: group.ID, Action: "added", UserIDs: newIDs})

	// New members get the group snapshot on their identity room, and
	// every one of their live connections, on every process, joins the
	// group room without reconnecting.
	for _, memberID := range newIDs {
		publish(h.bus, realtime.UserRoom(memberID), realtime.EventAddedToGroup, updated)
		h.joinRoom(memberID, group.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":              "Members added successfully",
		"group":                updated,
		"already_participants": alreadyIn,
	})
}

// RemoveMember removes the target from the group. Admins may remove
// anyone; everyone else may only remove themselves. The membership row
// carries the admin bit, so a removed admin leaves both sets at once.
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)
	targetID := mux.Vars(r)["userId"]

	if _, err := uuid.Parse(targetID); err != nil {
		http.Error(w, "Invalid group ID or user ID format", http.StatusBadRequest)
		return
	}

	group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}

	isAdmin := group.IsAdmin(userID)
	if !isAdmin && targetID != userID {
		http.Error(w, "Forbidden. Only admins can remove other members", http.StatusForbidden)
		return
	}
	if !group.IsParticipant(targetID) {
		http.Error(w, "User is not a participant of this group", http.StatusNotFound)
		return
	}

	// The last admin cannot remove themselves while others remain.
	// Leaving through this route would strand the group without anyone
	// able to manage it by accident; leaveGroup makes that explicit.
	if targetID == userID && isAdmin && len(group.Admins) == 1 && len(group.Participants) > 1 {
		http.Error(w, "Cannot remove the last admin if other participants remain. Promote another admin or delete the group first", http.StatusBadRequest)
		return
	}

	if err := h.store.RemoveMember(group.ID, targetID); err != nil {
		log.Printf("Failed to remove %s from %s: %v", targetID, group.ID, err)
		http.Error(w, "Failed to remove member", http.StatusInternalServerError)
		return
	}

	if len(group.Participants) == 1 {
		// The removed member was the only one left: the group goes
		// with them, never lingering at zero participants.
		if err := h.store.DeleteGroup(group.ID); err != nil {
			log.Printf("Failed to delete emptied group %s: %v", group.ID, err)
		}
		h.notifyRemoved(group, targetID, "removed")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Member removed and group was empty, group deleted"})
		return
	}

	h.notifyRemoved(group, targetID, "removed")

	if group.IsAdmin(targetID) && len(group.Admins) == 1 {
		log.Printf("Group %s now has no admins but still has participants", group.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Member removed successfully"})
}

// LeaveGroup removes the caller. The sole admin may leave a group that
// still has members; the group simply ends up admin-less.
func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)

	group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	if !group.IsParticipant(userID) {
		http.Error(w, "You are not a participant of this group", http.StatusBadRequest)
		return
	}

	if err := h.store.RemoveMember(group.ID, userID); err != nil {
		log.Printf("Failed to remove %s from %s: %v", userID, group.ID, err)
		http.Error(w, "Failed to leave group", http.StatusInternalServerError)
		return
	}

	if len(group.Participants) == 1 {
		if err := h.store.DeleteGroup(group.ID); err != nil {
			log.Printf("Failed to delete emptied group %s: %v", group.ID, err)
		}
		h.leaveRoom(userID, group.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "You have left the group, and the group is now empty and has been deleted"})
		return
	}

	publish(h.bus, realtime.GroupRoom(group.ID), realtime.EventGroupMembersUpdated,
		realtime.MembersUpdatedPayload{GroupID: group.ID, Action: "left", UserIDs: []string{userID}})
	h.leaveRoom(userID, group.ID)

	if group.IsAdmin(userID) && len(group.Admins) == 1 {
		log.Printf("User %s (an admin) left group %s. The group now has no admins but still has participants", userID, group.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Successfully left the group"})
}

// SendGroupMessage persists a message and fans it out to the group room.
// Non-participants are rejected before anything is written.
func (h *GroupHandler) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)

	var req struct {
		Message     string `json:"message"`
		MessageType string `json:"message_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageKindText
	}
	if !models.ValidMessageKind(req.MessageType) {
		http.Error(w, "Invalid message type", http.StatusBadRequest)
		return
	}

	group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	if !group.IsParticipant(userID) {
		http.Error(w, "Forbidden. You are not a participant of this group", http.StatusForbidden)
		return
	}

	msg := &models.GroupMessage{
		ID:        uuid.New().String(),
		GroupID:   group.ID,
		SenderID:  userID,
		Body:      req.Message,
		Kind:      req.MessageType,
		CreatedAt: time.Now(),
	}
	if err := h.store.SaveGroupMessage(msg); err != nil {
		log.Printf("Failed to save group message in %s: %v", group.ID, err)
		http.Error(w, "Failed to save message", http.StatusInternalServerError)
		return
	}

	publish(h.bus, realtime.GroupRoom(group.ID), realtime.EventNewGroupMessage, msg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

func (h *GroupHandler) ListGroupMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)

	group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	if !group.IsParticipant(userID) {
		http.Error(w, "Forbidden. You are not a participant of this group", http.StatusForbidden)
		return
	}

	page, limit := pagination(r)
	msgs, err := h.store.ListGroupMessages(group.ID, page, limit)
	if err != nil {
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []models.GroupMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

// loadGroup fetches the group in the path, writing the 400/404/500
// response itself when it fails.
func (h *GroupHandler) loadGroup(w http.ResponseWriter, r *http.Request) (*models.GroupConversation, bool) {
	groupID := mux.Vars(r)["groupId"]
	if _, err := uuid.Parse(groupID); err != nil {
		http.Error(w, "Invalid group ID format", http.StatusBadRequest)
		return nil, false
	}

	group, err := h.store.GetGroup(groupID)
	if err == storage.ErrNotFound {
		http.Error(w, "Group not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to load group", http.StatusInternalServerError)
		return nil, false
	}
	return group, true
}

func (h *GroupHandler) requireAdmin(w http.ResponseWriter, r *http.Request) (*models.GroupConversation, bool) {
	userID := r.Context().Value("user_id").(string)

	group, ok := h.loadGroup(w, r)
	if !ok {
		return nil, false
	}
	if !group.IsAdmin(userID) {
		http.Error(w, "Forbidden. Only admins can perform this action", http.StatusForbidden)
		return nil, false
	}
	return group, true
}

// notifyRemoved tells the room, tells the removed user, and detaches
// their live connections from the room, in that order: the target sees
// the membership update before losing the subscription.
func (h *GroupHandler) notifyRemoved(group *models.GroupConversation, targetID, action string) {
	publish(h.bus, realtime.GroupRoom(group.ID), realtime.EventGroupMembersUpdated,
		realtime.MembersUpdatedPayload{GroupID: group.ID, Action: action, UserIDs: []string{targetID}})
	publish(h.bus, realtime.UserRoom(targetID), realtime.EventRemovedFromGroup,
		realtime.RemovedFromGroupPayload{GroupID: group.ID, GroupName: group.Name})
	h.leaveRoom(targetID, group.ID)
}

func (h *GroupHandler) joinRoom(userID, groupID string) {
	if err := h.rooms.JoinGroupRoom(userID, groupID); err != nil {
		log.Printf("Failed to sync room join for %s into %s: %v", userID, groupID, err)
	}
}

func (h *GroupHandler) leaveRoom(userID, groupID string) {
	if err := h.rooms.LeaveGroupRoom(userID, groupID); err != nil {
		log.Printf("Failed to sync room leave for %s from %s: %v", userID, groupID, err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func missingIDs(wanted []string, found []models.User) []string {
	have := make(map[string]bool, len(found))
	for _, u := range found {
		have[u.ID] = true
	}
	var missing []string
	for _, id := range wanted {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func missingUsernames(wanted []string, found []models.User) []string {
	have := make(map[string]bool, len(found))
	for _, u := range found {
		have[u.Username] = true
	}
	var missing []string
	for _, name := range wanted {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
