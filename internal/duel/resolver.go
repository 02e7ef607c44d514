// internal/duel/resolver.go
package duel

import "fmt"

// ResolveInput carries everything the resolver needs to score one played
// card. Slots are copies; Resolve never touches shared state.
type ResolveInput struct {
	Card Card

	// Caller is the side playing the card, Opponent the other seat.
	Caller   Slot
	Opponent Slot

	// OpponentLastElement is the element of the opponent's last played card,
	// or "" when none has been played this generation.
	OpponentLastElement Element

	Rules Ruleset
}

// ResolveResult is the outcome of one card resolution. Caller and Opponent
// are the updated slot copies; the session adopts them and persists the
// changed fields at turn handoff.
type ResolveResult struct {
	Caller   Slot
	Opponent Slot

	// Damage is the final damage figure after flood reduction and the
	// strength-cycle bonus, before the action multiplier.
	Damage int

	// Special is the element ability that fired, or "" when the roll missed.
	Special Special

	// DrawExtra is set by Teleport; the session draws the card so the hand
	// cap stays in one place.
	DrawExtra bool

	// Messages are user-facing effect lines for the presentation layer.
	Messages []string
}

// Resolve computes the full consequence of playing a card: flood reduction,
// strength-cycle doubling, the action effect, and the probabilistic element
// special. It is pure aside from the injected randomness source.
func Resolve(in ResolveInput, rng Rng) ResolveResult {
	out := ResolveResult{Caller: in.Caller, Opponent: in.Opponent}

	damage := in.Card.Power
	if out.Caller.Status.FloodTurns > 0 {
		damage--
		if damage < 1 {
			damage = 1
		}
		out.Caller.Status.FloodTurns--
		out.say("Flood reduces power to %d", damage)
	}
	if in.OpponentLastElement != "" && in.Card.Element.Beats() == in.OpponentLastElement {
		damage *= 2
		out.say("Super effective! Power doubled to %d", damage)
	}
	out.Damage = damage

	switch in.Card.Action {
	case Attack:
		out.Opponent.Health -= damage
		out.say("Dealt %d damage to opponent", damage)
	case Shield:
		shield := damage / 2
		if in.Card.Element == Earth {
			shield = shield * 3 / 2
			out.say("Earth fortifies your shield by 50%%!")
		}
		out.Caller.Health += shield
		out.say("Gained %d shield points", shield)
	case Heal:
		out.Caller.Health += damage
		out.say("Healed for %d health points", damage)
	case Teleport:
		out.DrawExtra = true
		out.say("Teleported and found a new card")
	case DoubleAttack:
		out.Opponent.Health -= damage * 2
		out.say("Double attack! Dealt %d damage", damage*2)
	}

	if rng.Float64() < in.Rules.SpecialChance {
		out.Special = out.applySpecial(in.Card.Element, in.Rules, rng)
	}
	return out
}

// applySpecial mutates the result slots for the element's ability. Gust and
// Shock carry their own independent sub-chance; a missed sub-roll reports no
// special. Freeze and Stealth resolve at turn handoff and only announce here.
func (out *ResolveResult) applySpecial(elem Element, rules Ruleset, rng Rng) Special {
	sp := elem.Special()
	switch sp {
	case SpecialBurn:
		out.Opponent.Status.BurnTurns = rules.BurnTurns
		out.say("Opponent is burning! They'll take damage over time.")
	case SpecialFlood:
		out.Opponent.Status.FloodTurns = rules.FloodTurns
		out.say("Opponent is flooded! Their card power will be reduced.")
	case SpecialFortify:
		// Passive: the shield boost is already part of the action table.
		out.say("Your shields are fortified! Shield effects are 50%% stronger.")
	case SpecialGust:
		if rng.Float64() >= rules.GustChance {
			return ""
		}
		out.Opponent.Status.SkipNextTurn = true
		out.say("You summoned a powerful gust! Opponent will skip their next turn.")
	case SpecialShock:
		if rng.Float64() >= rules.ShockChance {
			return ""
		}
		out.Opponent.Status.Stunned = true
		out.say("Opponent is shocked! They are stunned for their next turn.")
	case SpecialFreeze:
		out.say("Opponent is frozen! Their turn timer will be reduced.")
	case SpecialPurify:
		out.Caller.Status.BurnTurns = 0
		out.Caller.Status.FloodTurns = 0
		out.Caller.Status.Stunned = false
		out.say("You purified yourself! All negative effects are removed.")
	case SpecialStealth:
		out.say("You used stealth to take a card from your opponent.")
	case SpecialRewind:
		out.say("You manipulated time; your last card can return to your hand.")
	}
	return sp
}

func (out *ResolveResult) say(format string, args ...interface{}) {
	out.Messages = append(out.Messages, fmt.Sprintf(format, args...))
}
