// internal/duel/cards.go
package duel

import (
	"math/rand"
	"time"
)

// Element is one of the nine card affinities.
type Element string

const (
	Fire      Element = "Fire"
	Water     Element = "Water"
	Earth     Element = "Earth"
	Air       Element = "Air"
	Lightning Element = "Lightning"
	Ice       Element = "Ice"
	Light     Element = "Light"
	Shadow    Element = "Shadow"
	Time      Element = "Time"
)

// Elements lists every element in its fixed order.
var Elements = []Element{Fire, Water, Earth, Air, Lightning, Ice, Light, Shadow, Time}

// Action is the effect family a card applies when played.
type Action string

const (
	Attack       Action = "Attack"
	Shield       Action = "Shield"
	Heal         Action = "Heal"
	Teleport     Action = "Teleport"
	DoubleAttack Action = "Double Attack"
)

// Actions lists every action in its fixed order.
var Actions = []Action{Attack, Shield, Heal, Teleport, DoubleAttack}

// strengths is the dominance cycle:
// Fire > Air > Earth > Water > Lightning > Ice > Light > Shadow > Time > Fire.
var strengths = map[Element]Element{
	Fire:      Air,
	Air:       Earth,
	Earth:     Water,
	Water:     Lightning,
	Lightning: Ice,
	Ice:       Light,
	Light:     Shadow,
	Shadow:    Time,
	Time:      Fire,
}

// Beats returns the element this element dominates. Playing against it
// doubles damage.
func (e Element) Beats() Element { return strengths[e] }

// Special is the element-specific bonus ability.
type Special string

const (
	SpecialBurn    Special = "Burn"
	SpecialFlood   Special = "Flood"
	SpecialFortify Special = "Fortify"
	SpecialGust    Special = "Gust"
	SpecialShock   Special = "Shock"
	SpecialFreeze  Special = "Freeze"
	SpecialPurify  Special = "Purify"
	SpecialStealth Special = "Stealth"
	SpecialRewind  Special = "Rewind"
)

var specials = map[Element]Special{
	Fire:      SpecialBurn,
	Water:     SpecialFlood,
	Earth:     SpecialFortify,
	Air:       SpecialGust,
	Lightning: SpecialShock,
	Ice:       SpecialFreeze,
	Light:     SpecialPurify,
	Shadow:    SpecialStealth,
	Time:      SpecialRewind,
}

// Special returns the ability tied to the element.
func (e Element) Special() Special { return specials[e] }

// Card is a single playable card.
type Card struct {
	Element Element `json:"element"`
	Action  Action  `json:"action"`
	Power   int     `json:"power"`
}

// Card power bounds.
const (
	MinPower = 2
	MaxPower = 5
)

// Rng is the randomness source behind card generation and ability rolls.
// *math/rand.Rand satisfies it; tests inject scripted sequences.
type Rng interface {
	Intn(n int) int
	Float64() float64
}

// NewRng returns a time-seeded production randomness source.
func NewRng() Rng {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// NewCard generates a random card: uniform element and action, power in
// [MinPower, MaxPower].
func NewCard(rng Rng) Card {
	return Card{
		Element: Elements[rng.Intn(len(Elements))],
		Action:  Actions[rng.Intn(len(Actions))],
		Power:   MinPower + rng.Intn(MaxPower-MinPower+1),
	}
}
