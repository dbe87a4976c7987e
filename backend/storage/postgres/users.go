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

	"github.com/lib/pq"

	"github.com/efchatnet/efchat/backend/models"
	"github.com/efchatnet/efchat/backend/storage"
)

const userColumns = `id, username, full_name, password_hash, gender,
	profile_pic, bio, status_message, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.FullName, &user.PasswordHash,
		&user.Gender, &user.ProfilePic, &user.Bio, &user.StatusMessage,
		&user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) CreateUser(user *models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, username, full_name, password_hash, gender,
			profile_pic, bio, status_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		user.ID, user.Username, user.FullName, user.PasswordHash,
		user.Gender, user.ProfilePic, user.Bio, user.StatusMessage, time.Now())
	return err
}

func (s *Store) GetUser(id string) (*models.User, error) {
	return scanUser(s.db.QueryRow(`
		SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	return scanUser(s.db.QueryRow(`
		SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (s *Store) GetUsersByIDs(ids []string) ([]models.User, error) {
	return s.queryUsers(`
		SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
}

func (s *Store) GetUsersByUsernames(usernames []string) ([]models.User, error) {
	return s.queryUsers(`
		SELECT `+userColumns+` FROM users WHERE username = ANY($1)`, pq.Array(usernames))
}

func (s *Store) ListUsers(excludeID string) ([]models.User, error) {
	return s.queryUsers(`
		SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY username`, excludeID)
}

func (s *Store) UpdateProfile(user *models.User) error {
	result, err := s.db.Exec(`
		UPDATE users
		SET full_name = $2, profile_pic = $3, bio = $4, status_message = $5,
			updated_at = $6
		WHERE id = $1`,
		user.ID, user.FullName, user.ProfilePic, user.Bio,
		user.StatusMessage, time.Now())
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) queryUsers(query string, args ...interface{}) ([]models.User, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}
