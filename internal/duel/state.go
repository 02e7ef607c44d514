// internal/duel/state.go
package duel

import "time"

// Seat identifies one of the two sides of a session. All per-player state is
// indexed by seat, so handlers never branch on "player 1 vs player 2".
type Seat int

const (
	Seat1 Seat = iota
	Seat2
)

// Other returns the opposing seat.
func (s Seat) Other() Seat { return 1 - s }

// Status holds the lingering effects on one slot.
type Status struct {
	BurnTurns        int  `json:"burnTurns"`
	FloodTurns       int  `json:"floodTurns"`
	Stunned          bool `json:"stunned"`
	SkipNextTurn     bool `json:"skipNextTurn"`
	TimeReductionSec int  `json:"timeReductionSeconds"`
}

// Slot is one seat's full state: identity, health, hand, and effects.
// ID is empty while the seat is vacant.
type Slot struct {
	ID     string `json:"id"`
	Health int    `json:"health"`
	Hand   []Card `json:"hand"`
	Status Status `json:"status"`
}

// Snapshot is the session record as last observed from the store. It is the
// authoritative shared state; every client adopts inbound snapshots wholesale.
type Snapshot struct {
	Slots               [2]Slot `json:"slots"`
	CurrentTurnPlayerID string  `json:"currentTurnPlayerId"`
	LastPlayedCard      *Card   `json:"lastPlayedCard"`
	GameActive          bool    `json:"gameActive"`
	Winner              string  `json:"winner"`
	RematchRequestedBy  string  `json:"rematchRequestedBy"`
	RematchAccepted     bool    `json:"rematchAccepted"`
	PlayerLeftID        string  `json:"playerLeftId"`
	Generation          int     `json:"generation"`
}

// Slot returns a pointer into the snapshot for the given seat.
func (sn *Snapshot) Slot(seat Seat) *Slot { return &sn.Slots[seat] }

// SeatOf returns the seat occupied by playerID, if any.
func (sn *Snapshot) SeatOf(playerID string) (Seat, bool) {
	if playerID == "" {
		return 0, false
	}
	for seat := Seat1; seat <= Seat2; seat++ {
		if sn.Slots[seat].ID == playerID {
			return seat, true
		}
	}
	return 0, false
}

// BothSeated reports whether both seats are occupied.
func (sn *Snapshot) BothSeated() bool {
	return sn.Slots[Seat1].ID != "" && sn.Slots[Seat2].ID != ""
}

// Clone deep-copies the snapshot, including hands.
func (sn *Snapshot) Clone() Snapshot {
	out := *sn
	for seat := Seat1; seat <= Seat2; seat++ {
		hand := sn.Slots[seat].Hand
		out.Slots[seat].Hand = append([]Card(nil), hand...)
	}
	if sn.LastPlayedCard != nil {
		card := *sn.LastPlayedCard
		out.LastPlayedCard = &card
	}
	return out
}

// Ruleset collects the tunable constants of a duel. Tests shrink the timing
// values; everything else normally stays at the defaults.
type Ruleset struct {
	StartingHealth   int
	StartingHandSize int
	HandLimit        int
	TurnBudget       time.Duration
	MinTurnBudget    time.Duration
	SpecialChance    float64
	GustChance       float64
	ShockChance      float64
	FreezeReduction  time.Duration
	BurnTurns        int
	FloodTurns       int
	StunSkipDelay    time.Duration
}

// DefaultRuleset returns the standard rules.
func DefaultRuleset() Ruleset {
	return Ruleset{
		StartingHealth:   30,
		StartingHandSize: 3,
		HandLimit:        7,
		TurnBudget:       30 * time.Second,
		MinTurnBudget:    10 * time.Second,
		SpecialChance:    0.3,
		GustChance:       0.3,
		ShockChance:      0.5,
		FreezeReduction:  10 * time.Second,
		BurnTurns:        3,
		FloodTurns:       2,
		StunSkipDelay:    2 * time.Second,
	}
}

// turnBudget computes the timer duration for a turn given the pending
// time-reduction, clamped to the minimum budget.
func turnBudget(rules Ruleset, reductionSec int) time.Duration {
	budget := rules.TurnBudget - time.Duration(reductionSec)*time.Second
	if budget < rules.MinTurnBudget {
		budget = rules.MinTurnBudget
	}
	return budget
}

// newSnapshot builds the initial session record: both slots at full health,
// empty hands, game inactive until the second seat fills.
func newSnapshot(rules Ruleset) Snapshot {
	var sn Snapshot
	for seat := Seat1; seat <= Seat2; seat++ {
		sn.Slots[seat] = Slot{Health: rules.StartingHealth, Hand: []Card{}}
	}
	return sn
}
