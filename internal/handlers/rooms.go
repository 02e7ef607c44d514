// internal/handlers/rooms.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/elemduel/elemduel/internal/duel"
)

// CreateRoomHandler mints a guest identity if needed, creates a room and
// returns its join code. POST /rooms/create
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	playerID, err := EnsureGuest(w, r)
	if err != nil {
		s.Logger.Warnf("guest auth failed on room create: %v", err)
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	roomID, err := s.Rooms.Create(r.Context(), playerID)
	if err != nil {
		s.Logger.Errorf("failed to create room: %v", err)
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"roomId":   roomID,
		"playerId": playerID,
	})
}

// RoomInfoHandler reports whether a room can still be joined, so clients can
// validate a code before opening a socket. GET /rooms/{roomID}
func (s *Server) RoomInfoHandler(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	rm, err := s.Rooms.Get(r.Context(), roomID)
	switch {
	case errors.Is(err, duel.ErrRoomNotFound):
		http.Error(w, "Room not found!", http.StatusNotFound)
		return
	case err != nil:
		s.Logger.Errorf("failed to load room %s: %v", roomID, err)
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	case rm.Expired:
		http.Error(w, "This room has expired!", http.StatusGone)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roomId":    rm.ID,
		"members":   len(rm.MemberIDs),
		"createdAt": rm.CreatedAt,
	})
}
