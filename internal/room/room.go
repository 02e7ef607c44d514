// internal/room/room.go
package room

import (
	"encoding/json"
	"time"

	"github.com/elemduel/elemduel/internal/store"
)

const (
	keyPrefix = "rooms/"

	// indexKey holds the registry of every room id ever created, appended
	// atomically so both clients and the sweeper can enumerate rooms.
	indexKey   = "rooms/index"
	indexField = "ids"
)

// Key returns the store key for a room record.
func Key(id string) string { return keyPrefix + id }

// Room is the store-backed room record. The game state itself lives in a
// separate session record under the same room id.
type Room struct {
	ID        string   `json:"id"`
	MemberIDs []string `json:"memberIds"`
	CreatedAt int64    `json:"createdAt"` // unix milliseconds
	Expired   bool     `json:"expired"`
}

// Age returns how long ago the room was created.
func (r Room) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.CreatedAt))
}

func (r Room) fields() map[string]interface{} {
	return map[string]interface{}{
		"id":        r.ID,
		"memberIds": r.MemberIDs,
		"createdAt": r.CreatedAt,
		"expired":   r.Expired,
	}
}

func fromDoc(doc store.Document) (Room, error) {
	var r Room
	for field, out := range map[string]interface{}{
		"id":        &r.ID,
		"memberIds": &r.MemberIDs,
		"createdAt": &r.CreatedAt,
		"expired":   &r.Expired,
	} {
		raw, ok := doc[field]
		if !ok || string(raw) == "null" || len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return Room{}, err
		}
	}
	return r, nil
}
