// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/elemduel/elemduel/internal/database"
	"github.com/elemduel/elemduel/internal/duel"
	"github.com/elemduel/elemduel/internal/middleware"
	"github.com/elemduel/elemduel/internal/store"
)

// clientMessage is one inbound intent from the browser.
type clientMessage struct {
	Type string `json:"type"`

	// Index selects the hand card for "play". Nil with Rewind set reclaims
	// the last played Time card instead.
	Index  *int `json:"index,omitempty"`
	Rewind bool `json:"rewind,omitempty"`
}

// DuelWSHandler upgrades the HTTP connection to WebSocket for one room.
// It authenticates the guest, seats them (hosting the session record if it
// does not exist yet), and runs the read loop until leave or disconnect.
// A plain disconnect keeps the session alive so the same guest can reconnect
// and reclaim the seat. GET /duel/ws/{roomID}
func (s *Server) DuelWSHandler(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/duel/ws/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.Error(w, "Missing room id in path (/duel/ws/{roomID})", http.StatusBadRequest)
		return
	}

	// Authenticate before the upgrade so a fresh guest cookie can still be set.
	playerID, err := EnsureGuest(w, r)
	if err != nil {
		s.Logger.Warnf("guest auth failed for room %s: %v", roomID, err)
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	if err := s.Rooms.Join(r.Context(), roomID, playerID); err != nil {
		switch {
		case errors.Is(err, duel.ErrRoomNotFound):
			http.Error(w, "Room not found!", http.StatusNotFound)
		case errors.Is(err, duel.ErrRoomExpired):
			http.Error(w, "This room has expired!", http.StatusGone)
		case errors.Is(err, duel.ErrRoomFull):
			http.Error(w, "Room is full!", http.StatusConflict)
		default:
			s.Logger.Errorf("room join failed for %s: %v", roomID, err)
			http.Error(w, "failed to join room", http.StatusInternalServerError)
		}
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"duel"},
		OriginPatterns: []string{"*"}, // Adjust for production security.
	})
	if err != nil {
		s.Logger.Warnf("WebSocket accept error for room %s: %v", roomID, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

	if c.Subprotocol() != "duel" {
		s.Logger.Warnf("Client for room %s connected with invalid subprotocol: %s", roomID, c.Subprotocol())
		c.Close(websocket.StatusPolicyViolation, "Client must use the 'duel' subprotocol.")
		return
	}
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, roomID, playerID)

	notifier := newWSNotifier(c)
	defer notifier.stop()

	sess, err := s.attachSession(r.Context(), roomID, playerID, notifier)
	if err != nil {
		s.Logger.Warnf("failed to seat player %s in room %s: %v", playerID, roomID, err)
		c.Close(websocket.StatusPolicyViolation, userMessage(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	left, readErr := s.readDuelMessages(ctx, c, sess, roomID, playerID)
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, roomID, playerID, readErr)

	if left {
		// Explicit leave: tear the session down for good.
		s.Sessions.Delete(roomID, playerID)
		sess.Close()
		c.Close(websocket.StatusNormalClosure, "left room")
		return
	}
	// Plain disconnect: detach the socket but keep the session so the guest
	// can reconnect and reclaim the seat.
	sess.SetNotifier(duel.NopNotifier{})
}

// attachSession finds or builds the duel session for this player and room.
// A registry hit is a reconnect; otherwise the session hosts the shared
// record when it does not exist yet and joins it when it does.
func (s *Server) attachSession(ctx context.Context, roomID, playerID string, notifier duel.Notifier) (*duel.Session, error) {
	if sess, ok := s.Sessions.Get(roomID, playerID); ok {
		sess.SetNotifier(notifier)
		return sess, nil
	}

	sess := duel.NewSession(s.Store, playerID, notifier, s.Rules, duel.NewRng())
	sess.OnGameEnd = func(roomID, winnerID string, generation int) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		database.RecordMatchResult(ctx, roomID, generation, winnerID)
	}

	_, err := s.Store.Get(ctx, duel.SessionKey(roomID))
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = sess.Host(ctx, roomID)
	case err == nil:
		err = sess.Join(ctx, roomID)
	}
	if err != nil {
		sess.Close()
		return nil, err
	}

	s.Sessions.Add(roomID, sess)
	return sess, nil
}

// readDuelMessages runs the inbound message loop. It returns left=true when
// the client asked to leave the room, and the read error otherwise.
func (s *Server) readDuelMessages(ctx context.Context, c *websocket.Conn, sess *duel.Session, roomID, playerID string) (left bool, readErr error) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return false, nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return false, nil
			}
			return false, err
		}

		if msgType != websocket.MessageText {
			s.Logger.Warnf("Received non-text message type %d from player %s in room %s. Ignoring.", msgType, playerID, roomID)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Logger.Warnf("Invalid JSON from player %s in room %s: %v. Data: %s", playerID, roomID, err, string(data))
			sendWsError(c, "Invalid JSON format.")
			continue
		}

		s.Logger.Debugf("Received intent '%s' from player %s in room %s.", msg.Type, playerID, roomID)

		switch msg.Type {
		case "draw":
			if err := sess.DrawCard(ctx); err != nil {
				sendWsError(c, userMessage(err))
			}

		case "play":
			index := duel.RewindSentinel
			if !msg.Rewind {
				if msg.Index == nil {
					sendWsError(c, "Missing card index.")
					continue
				}
				index = *msg.Index
			}
			if err := sess.PlayCard(ctx, index); err != nil {
				sendWsError(c, userMessage(err))
			}

		case "rematch":
			if err := sess.RequestRematch(ctx); err != nil {
				sendWsError(c, userMessage(err))
			}

		case "leave":
			if err := sess.Leave(ctx); err != nil {
				s.Logger.Warnf("leave failed for player %s in room %s: %v", playerID, roomID, err)
			}
			if err := s.Rooms.Leave(ctx, roomID, playerID); err != nil {
				s.Logger.Warnf("room membership leave failed for %s: %v", roomID, err)
			}
			return true, nil

		case "ping":
			sendWsMessage(c, map[string]string{"type": "pong"})

		default:
			s.Logger.Warnf("Unknown intent type '%s' from player %s in room %s.", msg.Type, playerID, roomID)
			sendWsError(c, "Unknown message type: "+msg.Type)
		}
	}
}

// userMessage maps session errors to the notification lines shown in the UI.
func userMessage(err error) string {
	switch {
	case errors.Is(err, duel.ErrRoomNotFound):
		return "Room not found!"
	case errors.Is(err, duel.ErrRoomExpired):
		return "This room has expired!"
	case errors.Is(err, duel.ErrRoomFull):
		return "Room is full!"
	case errors.Is(err, duel.ErrNotYourTurn):
		return "Wait for your turn!"
	case errors.Is(err, duel.ErrStunned):
		return "You're stunned and cannot play cards this turn!"
	case errors.Is(err, duel.ErrRematchPending):
		return "Cannot play - waiting for rematch confirmation!"
	case errors.Is(err, duel.ErrGameEnded):
		return "The game has ended."
	case errors.Is(err, duel.ErrRewindUnavailable):
		return "No Time card to rewind."
	case errors.Is(err, duel.ErrNotSeated):
		return "You are not seated in this room."
	default:
		return "Error playing card. Please try again."
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client with
// a write timeout. Write failures are left for the read loop to detect.
func sendWsMessage(c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(c *websocket.Conn, errorMsg string) {
	sendWsMessage(c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
