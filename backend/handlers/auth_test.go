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
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efchatnet/efchat/backend/middleware"
	"github.com/efchatnet/efchat/backend/models"
)

func testJWT() *middleware.JWTConfig {
	return &middleware.JWTConfig{Secret: "test-secret", Issuer: "efchat"}
}

func TestSignupIssuesVerifiableToken(t *testing.T) {
	store := newMemStore()
	jwt := testJWT()
	h := NewAuthHandler(store, jwt)

	body := strings.NewReader(`{
		"full_name": "Ada Lovelace",
		"username": "ada",
		"password": "s3cret",
		"confirm_password": "s3cret",
		"gender": "female"
	}`)
	w := httptest.NewRecorder()
	h.Signup(w, authedRequest("POST", "/api/auth/signup", "", body, nil))

	if w.Code != 201 {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Username != "ada" {
		t.Fatalf("user %+v", resp.User)
	}
	if resp.User.ProfilePic == "" {
		t.Fatal("no avatar assigned")
	}

	claims, err := jwt.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != resp.User.ID || claims.Username != "ada" {
		t.Fatalf("claims %+v", claims)
	}
}

func TestSignupRejectsMismatchedPasswords(t *testing.T) {
	h := NewAuthHandler(newMemStore(), testJWT())

	body := strings.NewReader(`{
		"full_name": "Ada Lovelace",
		"username": "ada",
		"password": "s3cret",
		"confirm_password": "other"
	}`)
	w := httptest.NewRecorder()
	h.Signup(w, authedRequest("POST", "/api/auth/signup", "", body, nil))

	if w.Code != 400 {
		t.Fatalf("status %d", w.Code)
	}
}

func TestSignupRejectsTakenUsername(t *testing.T) {
	store := newMemStore()
	store.addUser("ada")
	h := NewAuthHandler(store, testJWT())

	body := strings.NewReader(`{
		"full_name": "Ada Lovelace",
		"username": "ada",
		"password": "s3cret",
		"confirm_password": "s3cret"
	}`)
	w := httptest.NewRecorder()
	h.Signup(w, authedRequest("POST", "/api/auth/signup", "", body, nil))

	if w.Code != 400 {
		t.Fatalf("status %d", w.Code)
	}
}

func TestLoginRoundTrip(t *testing.T) {
	store := newMemStore()
	h := NewAuthHandler(store, testJWT())

	signup := strings.NewReader(`{
		"full_name": "Ada Lovelace",
		"username": "ada",
		"password": "s3cret",
		"confirm_password": "s3cret"
	}`)
	w := httptest.NewRecorder()
	h.Signup(w, authedRequest("POST", "/api/auth/signup", "", signup, nil))
	if w.Code != 201 {
		t.Fatalf("signup status %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Login(w, authedRequest("POST", "/api/auth/login", "",
		strings.NewReader(`{"username": "ada", "password": "s3cret"}`), nil))
	if w.Code != 200 {
		t.Fatalf("login status %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password_hash") {
		t.Fatal("password hash leaked in response")
	}

	w = httptest.NewRecorder()
	h.Login(w, authedRequest("POST", "/api/auth/login", "",
		strings.NewReader(`{"username": "ada", "password": "wrong"}`), nil))
	if w.Code != 400 {
		t.Fatalf("wrong password status %d", w.Code)
	}

	// Unknown usernames get the same answer as wrong passwords.
	w = httptest.NewRecorder()
	h.Login(w, authedRequest("POST", "/api/auth/login", "",
		strings.NewReader(`{"username": "nobody", "password": "s3cret"}`), nil))
	if w.Code != 400 {
		t.Fatalf("unknown user status %d", w.Code)
	}
}
