// internal/handlers/guest.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/elemduel/elemduel/internal/auth"
)

const tokenCookie = "duel_token"

// EnsureGuest resolves the caller's player identity. A valid token cookie
// yields the existing ID; otherwise a fresh guest ID is minted, signed and
// set as a cookie so the same browser keeps its seat across reconnects.
func EnsureGuest(w http.ResponseWriter, r *http.Request) (string, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, tokenCookie+"=") {
		token := extractCookieToken(cookieHeader, tokenCookie)
		playerID, err := auth.AuthenticateJWT(token)
		if err == nil {
			return playerID, nil
		}
		// Stale or foreign token; fall through and mint a new identity.
	}

	playerID := uuid.New().String()
	token, err := auth.CreateJWT(playerID)
	if err != nil {
		return "", fmt.Errorf("failed to create guest JWT: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return playerID, nil
}

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
