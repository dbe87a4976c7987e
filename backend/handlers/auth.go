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

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/efchatnet/efchat/backend/middleware"
	"github.com/efchatnet/efchat/backend/models"
	"github.com/efchatnet/efchat/backend/storage"
)

type AuthHandler struct {
	store storage.UserStore
	jwt   *middleware.JWTConfig
}

func NewAuthHandler(store storage.UserStore, jwt *middleware.JWTConfig) *AuthHandler {
	return &AuthHandler{store: store, jwt: jwt}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName        string `json:"full_name"`
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		Gender          string `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.FullName == "" || req.Username == "" || req.Password == "" {
		http.Error(w, "Full name, username and password are required", http.StatusBadRequest)
		return
	}
	if req.Password != req.ConfirmPassword {
		http.Error(w, "Passwords do not match", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetUserByUsername(req.Username); err == nil {
		http.Error(w, "User already exists", http.StatusBadRequest)
		return
	} else if err != storage.ErrNotFound {
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		Gender:       req.Gender,
		ProfilePic:   avatarURL(req.Gender, req.Username),
	}
	if err := h.store.CreateUser(user); err != nil {
		log.Printf("Failed to create user %s: %v", req.Username, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err == storage.ErrNotFound {
		// Burn a comparison anyway so unknown usernames cost the same
		// as wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000"), []byte(req.Password))
		http.Error(w, "Invalid credentials", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "Invalid credentials", http.StatusBadRequest)
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := h.jwt.IssueToken(user.ID, user.Username)
	if err != nil {
		log.Printf("Failed to issue token for %s: %v", user.Username, err)
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func avatarURL(gender, username string) string {
	if gender == "female" {
		return "https://avatar.iran.liara.run/public/girl?username=" + username
	}
	return "https://avatar.iran.liara.run/public/boy?username=" + username
}
