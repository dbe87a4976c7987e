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

func (s *Store) Migrate() error {
	migrations := []string{
		// Users table
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(255) PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			full_name VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			gender VARCHAR(32) NOT NULL DEFAULT '',
			profile_pic TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			status_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Direct conversations. Participants are stored sorted so the
		// unique constraint makes the unordered pair unique, and
		// find-or-create can race safely on ON CONFLICT.
		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR(255) PRIMARY KEY,
			participant1_id VARCHAR(255) NOT NULL,
			participant2_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (participant1_id, participant2_id)
		)`,

		// Direct messages. seq is the conversation's append order; the
		// conversation "owns" its message sequence through this column.
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(255) PRIMARY KEY,
			seq BIGSERIAL,
			conversation_id VARCHAR(255) NOT NULL,
			sender_id VARCHAR(255) NOT NULL,
			receiver_id VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, seq DESC)`,

		// Groups table
		`CREATE TABLE IF NOT EXISTS groups (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			group_icon TEXT NOT NULL DEFAULT '',
			last_message_id VARCHAR(255),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Group members. Admins are member rows with is_admin set, so
		// deleting a membership removes the admin bit with it and the
		// admin set can never outgrow the participant set.
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_group_members_user
		ON group_members(user_id)`,

		// Group messages. No FK to groups: messages are orphaned, not
		// cascaded, when a group is deleted.
		`CREATE TABLE IF NOT EXISTS group_messages (
			id VARCHAR(255) PRIMARY KEY,
			seq BIGSERIAL,
			group_id VARCHAR(255) NOT NULL,
			sender_id VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			kind VARCHAR(16) NOT NULL DEFAULT 'text',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_group_messages
		ON group_messages(group_id, seq DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
