// internal/room/ids.go
package room

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/elemduel/elemduel/internal/duel"
	"github.com/elemduel/elemduel/internal/store"
)

// idAlphabet excludes visually ambiguous glyphs (0/O, 1/I).
const idAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	idLength      = 6
	maxIDAttempts = 10
)

// newRoomID draws a random 6-character id from the unambiguous alphabet.
func newRoomID(rng duel.Rng) string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[rng.Intn(len(idAlphabet))]
	}
	return string(b)
}

// GenerateUniqueID returns a room id that does not collide with an existing
// room, retrying a bounded number of times before falling back to a
// timestamp-derived id.
func GenerateUniqueID(ctx context.Context, st store.Store, rng duel.Rng) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := newRoomID(rng)
		_, err := st.Get(ctx, Key(id))
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return fallbackID(time.Now()), nil
}

// fallbackID derives a last-resort id from the clock.
func fallbackID(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return "ROOM" + ts[len(ts)-6:]
}
