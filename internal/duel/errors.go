// internal/duel/errors.go
package duel

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the presentation layer. Validation failures
// reject the intent with no state mutation; only ErrStoreUnavailable wraps a
// transient I/O cause.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrRoomExpired       = errors.New("room has expired")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrGameEnded         = errors.New("game has ended")
	ErrStunned           = errors.New("stunned this turn")
	ErrRematchPending    = errors.New("rematch pending")
	ErrRewindUnavailable = errors.New("rewind unavailable")
	ErrNotSeated         = errors.New("no active session")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrSessionClosed     = errors.New("session closed")
)

// storeErr tags a transient store failure so callers can branch with
// errors.Is(err, ErrStoreUnavailable).
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
