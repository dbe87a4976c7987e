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

package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efchat/backend/handlers"
	"github.com/efchatnet/efchat/backend/middleware"
	"github.com/efchatnet/efchat/backend/realtime"
	"github.com/efchatnet/efchat/backend/storage/postgres"
	"github.com/efchatnet/efchat/backend/ws"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env file: %v", err)
	}

	// Database connection
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}

	// Redis connection
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		log.Fatal("REDIS_URL environment variable is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Initialize storage
	store := postgres.NewStore(db)

	// Run migrations
	if err := store.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Every process runs a bus subscription and a hub. Which process a
	// client lands on does not matter: traffic for its rooms reaches
	// every process that has a member.
	bus := realtime.NewRedisBus(rdb)
	defer bus.Close()

	hub := ws.NewHub(bus)
	if err := hub.Start(); err != nil {
		log.Fatalf("Failed to start event bus: %v", err)
	}

	presence := realtime.NewPresence(rdb, bus)
	rooms := realtime.NewRoomSync(bus)

	// Get JWT configuration from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "efchat"
	}

	jwtConfig := &middleware.JWTConfig{Secret: jwtSecret, Issuer: jwtIssuer}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(store, jwtConfig)
	userHandler := handlers.NewUserHandler(store)
	messageHandler := handlers.NewMessageHandler(store, bus)
	groupHandler := handlers.NewGroupHandler(store, bus, rooms)
	wsHandler := handlers.NewWSHandler(hub, presence, store)

	// Create auth middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtSecret, jwtIssuer)

	// Setup router
	r := mux.NewRouter()

	// Apply CORS middleware
	r.Use(middleware.CORS)

	// Auth endpoints (no auth required)
	r.HandleFunc("/api/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware)

	// User endpoints
	api.HandleFunc("/users", userHandler.ListUsers).Methods("GET")
	api.HandleFunc("/users/profile/{userId}", userHandler.GetProfile).Methods("GET")
	api.HandleFunc("/users/profile", userHandler.UpdateProfile).Methods("PUT")

	// Direct message endpoints
	api.HandleFunc("/messages/send/{id}", messageHandler.SendMessage).Methods("POST")
	api.HandleFunc("/messages/{id}", messageHandler.ListMessages).Methods("GET")

	// Group endpoints
	api.HandleFunc("/groups", groupHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/groups", groupHandler.ListGroups).Methods("GET")
	api.HandleFunc("/groups/{groupId}", groupHandler.GetGroup).Methods("GET")
	api.HandleFunc("/groups/{groupId}", groupHandler.DeleteGroup).Methods("DELETE")
	api.HandleFunc("/groups/{groupId}/name", groupHandler.UpdateGroupName).Methods("PUT")
	api.HandleFunc("/groups/{groupId}/icon", groupHandler.UpdateGroupIcon).Methods("PUT")
	api.HandleFunc("/groups/{groupId}/members", groupHandler.AddMembers).Methods("POST")
	api.HandleFunc("/groups/{groupId}/members/leave", groupHandler.LeaveGroup).Methods("POST")
	api.HandleFunc("/groups/{groupId}/members/{userId}", groupHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/groups/{groupId}/messages", groupHandler.SendGroupMessage).Methods("POST")
	api.HandleFunc("/groups/{groupId}/messages", groupHandler.ListGroupMessages).Methods("GET")

	// Websocket endpoint (session identity comes from the query string,
	// not the bearer token)
	r.HandleFunc("/ws", wsHandler.ServeWS).Methods("GET")

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check database connection
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	log.Printf("Chat server starting on port %s", port)
	log.Printf("JWT Issuer: %s", jwtIssuer)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
