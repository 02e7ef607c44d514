// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, and duration of each request.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect logs a new duel socket once the upgrade is accepted.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, roomID, playerID string) {
	logger.WithFields(logrus.Fields{
		"remote":    remoteAddr,
		"room_id":   roomID,
		"player_id": playerID,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a duel socket teardown, with the read error if any.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, roomID, playerID string, err error) {
	fields := logrus.Fields{
		"remote":    remoteAddr,
		"room_id":   roomID,
		"player_id": playerID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
