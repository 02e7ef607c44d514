// internal/database/matches.go
package database

import (
	"context"
	"log"
	"time"
)

// RecordMatchResult archives a finished match. An empty winnerID marks a draw.
// Safe to call more than once for the same (room, generation).
func RecordMatchResult(ctx context.Context, roomID string, generation int, winnerID string) {
	if DB == nil {
		return
	}
	_, err := DB.Exec(ctx, `
		INSERT INTO match_results (room_id, generation, winner_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, generation) DO NOTHING
	`, roomID, generation, winnerID)
	if err != nil {
		log.Printf("failed to record match result for room %s: %v", roomID, err)
	}
}

// ArchiveExpiredRoom records a swept room so its lifetime survives the
// store cleanup.
func ArchiveExpiredRoom(ctx context.Context, roomID string, createdAt time.Time, members int) {
	if DB == nil {
		return
	}
	_, err := DB.Exec(ctx, `
		INSERT INTO rooms_archive (room_id, created_at, members)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id) DO NOTHING
	`, roomID, createdAt, members)
	if err != nil {
		log.Printf("failed to archive room %s: %v", roomID, err)
	}
}
