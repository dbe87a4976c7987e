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
	"database/sql"
	"time"

	"github.com/efchatnet/efchat/backend/models"
	"github.com/efchatnet/efchat/backend/storage"
)

func (s *Store) CreateGroup(group *models.GroupConversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.Exec(`
		INSERT INTO groups (id, name, group_icon, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		group.ID, group.Name, group.GroupIcon, now)
	if err != nil {
		return err
	}

	admins := make(map[string]bool, len(group.Admins))
	for _, id := range group.Admins {
		admins[id] = true
	}
	for _, userID := range group.Participants {
		_, err = tx.Exec(`
			INSERT INTO group_members (group_id, user_id, is_admin, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (group_id, user_id) DO NOTHING`,
			group.ID, userID, admins[userID], now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetGroup(id string) (*models.GroupConversation, error) {
	group := &models.GroupConversation{}
	var lastMessageID sql.NullString
	err := s.db.QueryRow(`
		SELECT id, name, group_icon, last_message_id, created_at, updated_at
		FROM groups WHERE id = $1`, id).Scan(
		&group.ID, &group.Name, &group.GroupIcon, &lastMessageID,
		&group.CreatedAt, &group.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadMembers(group); err != nil {
		return nil, err
	}
	if lastMessageID.Valid {
		msg, err := s.getGroupMessage(lastMessageID.String)
		if err != nil && err != storage.ErrNotFound {
			return nil, err
		}
		group.LastMessage = msg
	}
	return group, nil
}

func (s *Store) GetGroupsForUser(userID string) ([]models.GroupConversation, error) {
	ids, err := s.GetGroupIDsForUser(userID)
	if err != nil {
		return nil, err
	}

	groups := make([]models.GroupConversation, 0, len(ids))
	for _, id := range ids {
		group, err := s.GetGroup(id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, *group)
	}
	return groups, nil
}

func (s *Store) GetGroupIDsForUser(userID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT g.id
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) UpdateGroupName(id, name string) error {
	return s.updateGroup(`
		UPDATE groups SET name = $2, updated_at = $3 WHERE id = $1`,
		id, name)
}

func (s *Store) UpdateGroupIcon(id, icon string) error {
	return s.updateGroup(`
		UPDATE groups SET group_icon = $2, updated_at = $3 WHERE id = $1`,
		id, icon)
}

func (s *Store) updateGroup(query, id, value string) error {
	result, err := s.db.Exec(query, id, value, time.Now())
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteGroup removes the group and its membership rows (cascade). Group
// messages are left behind deliberately.
func (s *Store) DeleteGroup(id string) error {
	_, err := s.db.Exec(`DELETE FROM groups WHERE id = $1`, id)
	return err
}

func (s *Store) AddMembers(groupID string, userIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, userID := range userIDs {
		_, err = tx.Exec(`
			INSERT INTO group_members (group_id, user_id, is_admin, joined_at)
			VALUES ($1, $2, FALSE, $3)
			ON CONFLICT (group_id, user_id) DO NOTHING`,
			groupID, userID, now)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(`
		UPDATE groups SET updated_at = $2 WHERE id = $1`, groupID, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) RemoveMember(groupID, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		DELETE FROM group_members
		WHERE group_id = $1 AND user_id = $2`,
		groupID, userID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE groups SET updated_at = $2 WHERE id = $1`,
		groupID, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SaveGroupMessage(msg *models.GroupMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO group_messages (id, group_id, sender_id, body, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.GroupID, msg.SenderID, msg.Body, msg.Kind, msg.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE groups SET last_message_id = $2, updated_at = $3 WHERE id = $1`,
		msg.GroupID, msg.ID, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListGroupMessages(groupID string, page, limit int) ([]models.GroupMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, sender_id, body, kind, created_at
		FROM group_messages
		WHERE group_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`,
		groupID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.GroupMessage
	for rows.Next() {
		var msg models.GroupMessage
		err := rows.Scan(
			&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Body,
			&msg.Kind, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *Store) loadMembers(group *models.GroupConversation) error {
	rows, err := s.db.Query(`
		SELECT user_id, is_admin
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, user_id`,
		group.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	group.Participants = nil
	group.Admins = nil
	for rows.Next() {
		var userID string
		var isAdmin bool
		if err := rows.Scan(&userID, &isAdmin); err != nil {
			return err
		}
		group.Participants = append(group.Participants, userID)
		if isAdmin {
			group.Admins = append(group.Admins, userID)
		}
	}
	return rows.Err()
}

func (s *Store) getGroupMessage(id string) (*models.GroupMessage, error) {
	msg := &models.GroupMessage{}
	err := s.db.QueryRow(`
		SELECT id, group_id, sender_id, body, kind, created_at
		FROM group_messages WHERE id = $1`, id).Scan(
		&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Body,
		&msg.Kind, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}
