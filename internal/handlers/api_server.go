// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/elemduel/elemduel/internal/duel"
	"github.com/elemduel/elemduel/internal/room"
	"github.com/elemduel/elemduel/internal/store"
)

// Server bundles the shared dependencies every HTTP and WebSocket handler
// needs: the record store, the room manager and the live session registry.
type Server struct {
	Store    store.Store
	Rooms    *room.Manager
	Sessions *duel.SessionStore
	Rules    duel.Ruleset
	Logger   *logrus.Logger
}

// NewServer wires a handler server around an already-connected store.
func NewServer(st store.Store, rooms *room.Manager, logger *logrus.Logger) *Server {
	return &Server{
		Store:    st,
		Rooms:    rooms,
		Sessions: duel.NewSessionStore(),
		Rules:    duel.DefaultRuleset(),
		Logger:   logger,
	}
}

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
