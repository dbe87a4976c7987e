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

package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/efchat/backend/models"
)

// orderedPair returns the two user ids in sorted order, the order they are
// stored in the conversations table.
func orderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func (s *Store) FindOrCreateConversation(userA, userB string) (*models.Conversation, error) {
	p1, p2 := orderedPair(userA, userB)

	// Insert-then-select keeps concurrent first-sends from creating two
	// rows: the unique constraint makes the losing insert a no-op and
	// both callers read back the same conversation.
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, participant1_id, participant2_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant1_id, participant2_id) DO NOTHING`,
		uuid.New().String(), p1, p2)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	conv := &models.Conversation{}
	err = s.db.QueryRow(`
		SELECT id, participant1_id, participant2_id, created_at, updated_at
		FROM conversations
		WHERE participant1_id = $1 AND participant2_id = $2`,
		p1, p2).Scan(
		&conv.ID, &conv.Participants[0], &conv.Participants[1],
		&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) SaveMessage(msg *models.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID,
		msg.Body, msg.CreatedAt)
	if err != nil {
		return err
	}

	// Bump the conversation's activity timestamp so listings sort by
	// latest message.
	_, err = tx.Exec(`
		UPDATE conversations SET updated_at = $2 WHERE id = $1`,
		msg.ConversationID, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListMessages(conversationID string, page, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, sender_id, receiver_id, body, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`,
		conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
			&msg.Body, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
