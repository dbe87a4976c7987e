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
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efchat/backend/models"
	"github.com/efchatnet/efchat/backend/realtime"
	"github.com/efchatnet/efchat/backend/storage"
)

// memStore is an in-memory storage.Store for handler tests. Single
// goroutine access only.
type memStore struct {
	users         map[string]*models.User
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	groups        map[string]*models.GroupConversation
	groupMessages map[string][]models.GroupMessage
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*models.User),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		groups:        make(map[string]*models.GroupConversation),
		groupMessages: make(map[string][]models.GroupMessage),
	}
}

func (s *memStore) addUser(username string) *models.User {
	u := &models.User{
		ID:       uuid.New().String(),
		Username: username,
		FullName: "Test " + username,
	}
	s.users[u.ID] = u
	return u
}

func (s *memStore) CreateUser(user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *memStore) GetUser(id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memStore) GetUserByUsername(username string) (*models.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) GetUsersByIDs(ids []string) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *memStore) GetUsersByUsernames(usernames []string) ([]models.User, error) {
	var out []models.User
	for _, name := range usernames {
		for _, u := range s.users {
			if u.Username == name {
				out = append(out, *u)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) ListUsers(excludeID string) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		if u.ID != excludeID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *memStore) UpdateProfile(user *models.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *memStore) FindOrCreateConversation(userA, userB string) (*models.Conversation, error) {
	key := pairKey(userA, userB)
	if c, ok := s.conversations[key]; ok {
		copied := *c
		return &copied, nil
	}
	if userB < userA {
		userA, userB = userB, userA
	}
	c := &models.Conversation{
		ID:           uuid.New().String(),
		Participants: [2]string{userA, userB},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.conversations[key] = c
	copied := *c
	return &copied, nil
}

func (s *memStore) SaveMessage(msg *models.Message) error {
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *memStore) ListMessages(conversationID string, page, limit int) ([]models.Message, error) {
	return pageOf(s.messages[conversationID], page, limit), nil
}

func (s *memStore) CreateGroup(group *models.GroupConversation) error {
	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now
	copied := *group
	copied.Participants = append([]string(nil), group.Participants...)
	copied.Admins = append([]string(nil), group.Admins...)
	s.groups[group.ID] = &copied
	return nil
}

func (s *memStore) GetGroup(id string) (*models.GroupConversation, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *g
	copied.Participants = append([]string(nil), g.Participants...)
	copied.Admins = append([]string(nil), g.Admins...)
	if msgs := s.groupMessages[id]; len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		copied.LastMessage = &last
	}
	return &copied, nil
}

func (s *memStore) GetGroupsForUser(userID string) ([]models.GroupConversation, error) {
	ids, _ := s.GetGroupIDsForUser(userID)
	var out []models.GroupConversation
	for _, id := range ids {
		g, err := s.GetGroup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

func (s *memStore) GetGroupIDsForUser(userID string) ([]string, error) {
	var ids []string
	for id, g := range s.groups {
		if g.IsParticipant(userID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) UpdateGroupName(id, name string) error {
	g, ok := s.groups[id]
	if !ok {
		return storage.ErrNotFound
	}
	g.Name = name
	g.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) UpdateGroupIcon(id, icon string) error {
	g, ok := s.groups[id]
	if !ok {
		return storage.ErrNotFound
	}
	g.GroupIcon = icon
	g.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) DeleteGroup(id string) error {
	delete(s.groups, id)
	// Group messages stay behind, matching the schema's lack of a
	// cascading delete.
	return nil
}

func (s *memStore) AddMembers(groupID string, userIDs []string) error {
	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, id := range userIDs {
		if !g.IsParticipant(id) {
			g.Participants = append(g.Participants, id)
		}
	}
	g.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) RemoveMember(groupID, userID string) error {
	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrNotFound
	}
	g.Participants = remove(g.Participants, userID)
	g.Admins = remove(g.Admins, userID)
	g.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) SaveGroupMessage(msg *models.GroupMessage) error {
	s.groupMessages[msg.GroupID] = append(s.groupMessages[msg.GroupID], *msg)
	return nil
}

func (s *memStore) ListGroupMessages(groupID string, page, limit int) ([]models.GroupMessage, error) {
	return pageOf(s.groupMessages[groupID], page, limit), nil
}

// pageOf slices one reverse-chronological page out of an append-ordered
// history.
func pageOf[T any](history []T, page, limit int) []T {
	reversed := make([]T, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		reversed = append(reversed, history[i])
	}
	start := (page - 1) * limit
	if start >= len(reversed) {
		return nil
	}
	end := start + limit
	if end > len(reversed) {
		end = len(reversed)
	}
	return reversed[start:end]
}

func remove(ids []string, target string) []string {
	var out []string
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// recordBus captures published events for assertions.
type recordBus struct {
	published []busRecord
}

type busRecord struct {
	room   string
	global bool
	ev     realtime.Event
}

func (b *recordBus) Publish(room string, ev realtime.Event) error {
	b.published = append(b.published, busRecord{room: room, ev: ev})
	return nil
}

func (b *recordBus) PublishGlobal(ev realtime.Event) error {
	b.published = append(b.published, busRecord{global: true, ev: ev})
	return nil
}

func (b *recordBus) Subscribe(room string) error    { return nil }
func (b *recordBus) Unsubscribe(room string) error  { return nil }
func (b *recordBus) Start(h realtime.Handler) error { return nil }
func (b *recordBus) Close() error                   { return nil }

// events returns the names of everything published to the given room, in
// order.
func (b *recordBus) events(room string) []string {
	var names []string
	for _, rec := range b.published {
		if !rec.global && rec.room == room {
			names = append(names, rec.ev.Event)
		}
	}
	return names
}

// authedRequest builds a request carrying the authenticated user and mux
// path variables, the way the middleware and router would.
func authedRequest(method, target, userID string, body *strings.Reader, vars map[string]string) *http.Request {
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, body)
	}
	if userID != "" {
		r = r.WithContext(context.WithValue(r.Context(), "user_id", userID))
	}
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	return r
}
