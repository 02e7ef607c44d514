// internal/duel/doc.go
package duel

import (
	"encoding/json"
	"fmt"

	"github.com/elemduel/elemduel/internal/store"
)

// Session record field names. Per-seat fields carry a seat suffix computed by
// seatField, never hand-written, so every handler stays seat-agnostic.
const (
	fieldCurrentTurn     = "currentTurn"
	fieldLastPlayed      = "lastPlayedCard"
	fieldGameActive      = "gameActive"
	fieldWinner          = "winner"
	fieldRematchBy       = "rematchRequestedBy"
	fieldRematchAccepted = "rematchAccepted"
	fieldPlayerLeft      = "playerLeft"
	fieldGeneration      = "generation"
)

// seatField builds the store field name for one seat's attribute
// ("slot1Hand", "slot2Status", ...).
func seatField(seat Seat, suffix string) string {
	return fmt.Sprintf("slot%d%s", int(seat)+1, suffix)
}

// SessionKey returns the store key for a room's session record.
func SessionKey(roomID string) string {
	return "rooms/" + roomID + "/gameState"
}

// fields flattens the snapshot into a full store document for Set.
func (sn *Snapshot) fields() map[string]interface{} {
	f := map[string]interface{}{
		fieldCurrentTurn:     sn.CurrentTurnPlayerID,
		fieldLastPlayed:      sn.LastPlayedCard,
		fieldGameActive:      sn.GameActive,
		fieldWinner:          sn.Winner,
		fieldRematchBy:       sn.RematchRequestedBy,
		fieldRematchAccepted: sn.RematchAccepted,
		fieldPlayerLeft:      sn.PlayerLeftID,
		fieldGeneration:      sn.Generation,
	}
	for seat := Seat1; seat <= Seat2; seat++ {
		sl := sn.Slots[seat]
		f[seatField(seat, "Id")] = sl.ID
		f[seatField(seat, "Health")] = sl.Health
		f[seatField(seat, "Hand")] = sl.Hand
		f[seatField(seat, "Status")] = sl.Status
	}
	return f
}

// snapshotFromDoc decodes a store document into a Snapshot. Missing fields
// decode to their zero values; a malformed field is an error.
func snapshotFromDoc(doc store.Document) (Snapshot, error) {
	var sn Snapshot
	dec := &docDecoder{doc: doc}
	dec.str(fieldCurrentTurn, &sn.CurrentTurnPlayerID)
	dec.any(fieldLastPlayed, &sn.LastPlayedCard)
	dec.boolean(fieldGameActive, &sn.GameActive)
	dec.str(fieldWinner, &sn.Winner)
	dec.str(fieldRematchBy, &sn.RematchRequestedBy)
	dec.boolean(fieldRematchAccepted, &sn.RematchAccepted)
	dec.str(fieldPlayerLeft, &sn.PlayerLeftID)
	dec.integer(fieldGeneration, &sn.Generation)
	for seat := Seat1; seat <= Seat2; seat++ {
		sl := &sn.Slots[seat]
		dec.str(seatField(seat, "Id"), &sl.ID)
		dec.integer(seatField(seat, "Health"), &sl.Health)
		dec.any(seatField(seat, "Hand"), &sl.Hand)
		dec.any(seatField(seat, "Status"), &sl.Status)
		if sl.Hand == nil {
			sl.Hand = []Card{}
		}
	}
	if dec.err != nil {
		return Snapshot{}, fmt.Errorf("malformed session record: %w", dec.err)
	}
	return sn, nil
}

// docDecoder accumulates the first decode error instead of aborting mid-way.
type docDecoder struct {
	doc store.Document
	err error
}

func (d *docDecoder) any(field string, out interface{}) {
	raw, ok := d.doc[field]
	if !ok || string(raw) == "null" || len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, out); err != nil && d.err == nil {
		d.err = fmt.Errorf("field %q: %w", field, err)
	}
}

func (d *docDecoder) str(field string, out *string)   { d.any(field, out) }
func (d *docDecoder) boolean(field string, out *bool) { d.any(field, out) }
func (d *docDecoder) integer(field string, out *int)  { d.any(field, out) }
