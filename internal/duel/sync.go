// internal/duel/sync.go
package duel

import (
	"context"
	"log"
	"time"

	"github.com/elemduel/elemduel/internal/store"
)

// handleSnapshot merges an inbound store snapshot into local state. The
// remote record is adopted wholesale as authoritative; reconciliation then
// reacts to the edges it exposes: opponent joined, opponent left, rematch
// progress, terminal state, and the start of our own turn. Runs on the loop
// goroutine.
func (s *Session) handleSnapshot(doc store.Document) error {
	if !s.seated {
		return nil
	}
	if len(doc) == 0 {
		// No session yet; not an error.
		return nil
	}
	snap, err := snapshotFromDoc(doc)
	if err != nil {
		log.Printf("session %s: ignoring malformed snapshot: %v", s.roomID, err)
		return nil
	}

	prev := s.snap
	s.snap = snap

	// First-player starting hand: dealt once per generation, when the second
	// seat fills while our hand is still empty.
	me := s.snap.Slot(s.seat)
	if snap.GameActive && snap.BothSeated() && len(me.Hand) == 0 && s.dealtFor != snap.Generation {
		hand := s.drawHand()
		me.Hand = hand
		s.dealtFor = snap.Generation
		if err := s.store.Update(context.Background(), s.key(), map[string]interface{}{
			seatField(s.seat, "Hand"): hand,
		}); err != nil {
			log.Printf("session %s: failed to persist starting hand: %v", s.roomID, err)
		}
		if !prev.GameActive {
			s.notifier.Effect("info", "Opponent joined! Game started.")
		}
	}

	// Opponent left: the game is over for good.
	if snap.PlayerLeftID != "" && snap.PlayerLeftID != s.PlayerID && prev.PlayerLeftID == "" {
		s.timer.Stop()
		s.delay.Stop()
		s.notifier.Effect("info", "Opponent left the game!")
	}

	// Opponent wants a rematch.
	if snap.RematchRequestedBy != "" && snap.RematchRequestedBy != s.PlayerID &&
		!snap.RematchAccepted && prev.RematchRequestedBy != snap.RematchRequestedBy {
		s.notifier.Effect("info", "Opponent wants a rematch!")
	}

	// Rematch accepted remotely: redraw our hand if the new generation
	// hasn't dealt us one.
	if snap.RematchAccepted && !prev.RematchAccepted && s.dealtFor != snap.Generation {
		hand := s.drawHand()
		me.Hand = hand
		s.dealtFor = snap.Generation
		if err := s.store.Update(context.Background(), s.key(), map[string]interface{}{
			seatField(s.seat, "Hand"): hand,
		}); err != nil {
			log.Printf("session %s: failed to persist rematch hand: %v", s.roomID, err)
		}
		s.notifier.Effect("success", "Game restarted! A new match begins.")
	}

	// Terminal state latched by the other side.
	if !snap.GameActive && prev.GameActive {
		s.timer.Stop()
		s.delay.Stop()
		if snap.PlayerLeftID == "" && snap.BothSeated() {
			s.announceResult(snap.Winner)
			if s.OnGameEnd != nil {
				s.OnGameEnd(s.roomID, snap.Winner, snap.Generation)
			}
		}
	}

	// Our turn just started.
	nowMine := snap.GameActive && snap.CurrentTurnPlayerID == s.PlayerID
	if nowMine && !s.turnWasMine {
		s.turnWasMine = true
		s.onTurnStarted()
	} else {
		s.turnWasMine = nowMine
	}

	s.notify()
	return nil
}

// onTurnStarted processes turn-start effects for our seat: burn damage
// first, then stun or skip (either one auto-ends the turn after a short
// delay, with no timer started), and otherwise arms the turn timer with the
// remaining budget after any pending freeze reduction. Runs on the loop
// goroutine.
func (s *Session) onTurnStarted() {
	ctx := context.Background()
	me := s.snap.Slot(s.seat)

	if me.Status.BurnTurns > 0 {
		me.Health--
		me.Status.BurnTurns--
		s.notifier.Effect("warning", "Burn effect deals 1 damage!")
		if err := s.store.Update(ctx, s.key(), map[string]interface{}{
			seatField(s.seat, "Health"): me.Health,
			seatField(s.seat, "Status"): me.Status,
		}); err != nil {
			log.Printf("session %s: failed to persist burn tick: %v", s.roomID, err)
		}
		if s.checkGameOver(ctx, nil) {
			return
		}
	}

	if me.Status.Stunned {
		me.Status.Stunned = false
		s.notifier.Effect("warning", "You're stunned! Your turn will be skipped.")
		s.autoEndAfterDelay()
		return
	}
	if me.Status.SkipNextTurn {
		me.Status.SkipNextTurn = false
		s.notifier.Effect("warning", "Your turn is skipped by your opponent's gust!")
		s.autoEndAfterDelay()
		return
	}

	budget := turnBudget(s.rules, me.Status.TimeReductionSec)
	if me.Status.TimeReductionSec > 0 {
		// The reduction is consumed by the turn it applies to.
		me.Status.TimeReductionSec = 0
		if err := s.store.Update(ctx, s.key(), map[string]interface{}{
			seatField(s.seat, "Status"): me.Status,
		}); err != nil {
			log.Printf("session %s: failed to clear time reduction: %v", s.roomID, err)
		}
	}
	s.startTurnTimer(budget)
}

// autoEndAfterDelay ends the turn with no card played after the stun/skip
// grace delay, unless the turn has moved on in the meantime.
func (s *Session) autoEndAfterDelay() {
	s.delay.Start(s.rules.StunSkipDelay, func(gen int) {
		s.post(func() error {
			if gen != s.delay.Gen() {
				return nil
			}
			if !s.snap.GameActive || s.snap.CurrentTurnPlayerID != s.PlayerID {
				return nil
			}
			return s.endTurn(context.Background(), nil)
		})
	})
}

// startTurnTimer arms the countdown for our turn. A stale expiry (stopped or
// superseded) is dropped by the generation check.
func (s *Session) startTurnTimer(d time.Duration) {
	s.timer.Start(d, func(gen int) {
		s.post(func() error {
			if gen != s.timer.Gen() {
				return nil
			}
			return s.handleTimeout()
		})
	})
}

// handleTimeout forcibly ends the turn when the countdown expires: a random
// hand card is auto-played (bypassing the stun check), or the turn ends with
// no card when the hand is empty. Runs on the loop goroutine.
func (s *Session) handleTimeout() error {
	if !s.seated || !s.snap.GameActive || s.snap.CurrentTurnPlayerID != s.PlayerID {
		return nil
	}
	s.notifier.Effect("warning", "Time's up! Turn ended.")
	me := s.snap.Slot(s.seat)
	if len(me.Hand) > 0 {
		return s.playCard(context.Background(), s.rng.Intn(len(me.Hand)), true)
	}
	return s.endTurn(context.Background(), nil)
}
