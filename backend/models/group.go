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

package models

import (
	"time"
)

// Message kinds accepted for group messages. "system" is reserved for
// service-generated notices ("X joined", "Y left").
const (
	MessageKindText   = "text"
	MessageKindImage  = "image"
	MessageKindFile   = "file"
	MessageKindSystem = "system"
)

func ValidMessageKind(kind string) bool {
	switch kind {
	case MessageKindText, MessageKindImage, MessageKindFile, MessageKindSystem:
		return true
	}
	return false
}

// GroupConversation holds the participant and admin sets for a named group.
// Admins is always a subset of Participants; membership operations keep the
// two in step.
type GroupConversation struct {
	ID           string        `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	Participants []string      `json:"participants"`
	Admins       []string      `json:"admins"`
	LastMessage  *GroupMessage `json:"last_message,omitempty"`
	GroupIcon    string        `json:"group_icon" db:"group_icon"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// IsParticipant reports whether userID is in the participant set.
func (g *GroupConversation) IsParticipant(userID string) bool {
	for _, id := range g.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID is in the admin set.
func (g *GroupConversation) IsAdmin(userID string) bool {
	for _, id := range g.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

type GroupMessage struct {
	ID        string    `json:"id" db:"id"`
	GroupID   string    `json:"group_id" db:"group_id"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Body      string    `json:"message" db:"body"`
	Kind      string    `json:"message_type" db:"kind"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
