// internal/duel/session.go
package duel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/elemduel/elemduel/internal/store"
)

// Notifier is the presentation port. The session pushes state snapshots and
// user-facing effect lines through it and never touches rendering itself.
type Notifier interface {
	StateChanged(snap Snapshot)
	Effect(kind, message string)
}

// NopNotifier discards everything. Used while a client is between sockets.
type NopNotifier struct{}

func (NopNotifier) StateChanged(Snapshot) {}
func (NopNotifier) Effect(string, string) {}

// OnGameEndFunc is invoked once a terminal state is observed, to persist
// results or broadcast them further.
type OnGameEndFunc func(roomID, winnerID string, generation int)

// task is one unit of work for the session loop. Intents carry a reply
// channel; timer callbacks and inbound snapshots post fire-and-forget.
type task struct {
	fn    func() error
	reply chan error
}

// Session is one client's state machine for a single shared duel record.
// All state behind mu-less fields is owned by the loop goroutine: every
// intent, timer expiry, and store snapshot is funneled through the task
// queue and consumed one message at a time, which keeps the
// single-writer-per-session property without relying on callback scheduling.
type Session struct {
	PlayerID string

	// OnGameEnd, if set, fires on every terminal latch or adoption.
	OnGameEnd OnGameEndFunc

	store    store.Store
	rules    Ruleset
	rng      Rng
	notifier Notifier

	// Loop-owned state.
	roomID      string
	seat        Seat
	seated      bool
	snap        Snapshot
	turnWasMine bool
	dealtFor    int // generation the starting hand was dealt for, -1 if never
	unsubscribe func()

	timer turnTimer
	delay turnTimer

	tasks chan task
	done  chan struct{}
}

// RewindSentinel, passed to PlayCard instead of a hand index, reclaims the
// last played time-element card instead of playing from the hand.
const RewindSentinel = -1

// NewSession builds a detached session bound to a player identity. Call Host
// or Join to attach it to a room.
func NewSession(st store.Store, playerID string, notifier Notifier, rules Ruleset, rng Rng) *Session {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &Session{
		PlayerID: playerID,
		store:    st,
		rules:    rules,
		rng:      rng,
		notifier: notifier,
		dealtFor: -1,
		tasks:    make(chan task, 64),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	for {
		select {
		case t := <-s.tasks:
			err := t.fn()
			if t.reply != nil {
				t.reply <- err
			}
		case <-s.done:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	t := task{fn: fn, reply: make(chan error, 1)}
	select {
	case s.tasks <- t:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// post queues fn without waiting. Used by timers and the store subscription.
func (s *Session) post(fn func() error) {
	select {
	case s.tasks <- task{fn: fn}:
	case <-s.done:
	}
}

// Close tears the session down: timers stopped, subscription cancelled,
// loop terminated. The shared record is left untouched; use Leave for a
// deliberate exit.
func (s *Session) Close() {
	s.post(func() error {
		s.timer.Stop()
		s.delay.Stop()
		if s.unsubscribe != nil {
			s.unsubscribe()
			s.unsubscribe = nil
		}
		close(s.done)
		return nil
	})
}

// SetNotifier swaps the presentation port, immediately replaying the current
// snapshot so a reconnecting client resyncs.
func (s *Session) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	s.post(func() error {
		s.notifier = n
		if s.seated {
			s.notifier.StateChanged(s.snap.Clone())
		}
		return nil
	})
}

// Snapshot returns a deep copy of the last adopted session record.
func (s *Session) Snapshot() Snapshot {
	var out Snapshot
	_ = s.do(context.Background(), func() error {
		out = s.snap.Clone()
		return nil
	})
	return out
}

// Seated reports whether the session is attached to a room.
func (s *Session) Seated() bool {
	var out bool
	_ = s.do(context.Background(), func() error {
		out = s.seated
		return nil
	})
	return out
}

func (s *Session) key() string { return SessionKey(s.roomID) }

// Host creates the session record for a freshly created room and claims the
// first seat. The seat claim is atomic: when both players open the room
// before either has written the record, the second Host loses the claim and
// degrades to a Join instead of clobbering the first. The game stays inactive
// until a second player joins.
func (s *Session) Host(ctx context.Context, roomID string) error {
	var lostClaim bool
	err := s.do(ctx, func() error {
		if s.seated {
			return fmt.Errorf("already attached to room %s", s.roomID)
		}
		snap := newSnapshot(s.rules)
		// Merge the base fields first, then claim the seat. The seat ids stay
		// out of the merge so a concurrent host's claim survives it.
		base := snap.fields()
		for seat := Seat1; seat <= Seat2; seat++ {
			delete(base, seatField(seat, "Id"))
		}
		if err := s.store.Update(ctx, SessionKey(roomID), base); err != nil {
			return storeErr(err)
		}
		claimed, err := s.store.SetIfAbsent(ctx, SessionKey(roomID), seatField(Seat1, "Id"), s.PlayerID)
		if err != nil {
			return storeErr(err)
		}
		if !claimed {
			lostClaim = true
			return nil
		}
		snap.Slots[Seat1].ID = s.PlayerID
		s.adopt(roomID, Seat1, snap)
		return s.subscribe(roomID)
	})
	if err != nil {
		return err
	}
	if lostClaim {
		return s.Join(ctx, roomID)
	}
	return nil
}

// Join claims the second seat of an existing session, or reclaims a seat the
// player already held (reconnect). Seating the second player activates the
// game, hands the first turn to the first-seated player, and draws the
// joiner's starting hand.
func (s *Session) Join(ctx context.Context, roomID string) error {
	return s.do(ctx, func() error {
		if s.seated {
			return fmt.Errorf("already attached to room %s", s.roomID)
		}
		doc, err := s.store.Get(ctx, SessionKey(roomID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrRoomNotFound
			}
			return storeErr(err)
		}
		snap, err := snapshotFromDoc(doc)
		if err != nil {
			return err
		}

		if seat, ok := snap.SeatOf(s.PlayerID); ok {
			// Reconnect: the seat is already ours. The generation only counts
			// as dealt once the seat holds a hand; a host reconnecting while
			// still waiting for an opponent must be dealt on activation.
			s.adopt(roomID, seat, snap)
			if snap.GameActive || len(snap.Slots[seat].Hand) > 0 {
				s.dealtFor = snap.Generation
			}
			return s.subscribe(roomID)
		}
		if snap.BothSeated() {
			return ErrRoomFull
		}

		// Claim the open seat atomically; a concurrent joiner loses the race
		// and sees the room as full.
		claimed, err := s.store.SetIfAbsent(ctx, SessionKey(roomID), seatField(Seat2, "Id"), s.PlayerID)
		if err != nil {
			return storeErr(err)
		}
		if !claimed {
			return ErrRoomFull
		}

		hand := s.drawHand()
		updates := map[string]interface{}{
			fieldCurrentTurn:           snap.Slots[Seat1].ID,
			fieldGameActive:            true,
			fieldWinner:                "",
			fieldRematchBy:             "",
			fieldPlayerLeft:            "",
			seatField(Seat2, "Hand"):   hand,
			seatField(Seat2, "Status"): Status{},
		}
		if err := s.store.Update(ctx, SessionKey(roomID), updates); err != nil {
			return storeErr(err)
		}

		snap.Slots[Seat2].ID = s.PlayerID
		snap.Slots[Seat2].Hand = hand
		snap.CurrentTurnPlayerID = snap.Slots[Seat1].ID
		snap.GameActive = true
		s.adopt(roomID, Seat2, snap)
		s.dealtFor = snap.Generation
		return s.subscribe(roomID)
	})
}

// DrawCard appends one freshly generated card to the caller's hand. It is a
// silent no-op outside the caller's turn, after game end, or at the hand cap.
func (s *Session) DrawCard(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.seated {
			return ErrNotSeated
		}
		if !s.snap.GameActive || s.snap.CurrentTurnPlayerID != s.PlayerID {
			return nil
		}
		me := s.snap.Slot(s.seat)
		if len(me.Hand) >= s.rules.HandLimit {
			return nil
		}
		// The hand is this seat's field alone, so a full-field write is safe.
		// An append primitive would drop a drawn card equal to one already
		// held; duplicate cards in hand are legitimate.
		card := NewCard(s.rng)
		me.Hand = append(me.Hand, card)
		if err := s.store.Update(ctx, s.key(), map[string]interface{}{
			seatField(s.seat, "Hand"): me.Hand,
		}); err != nil {
			me.Hand = me.Hand[:len(me.Hand)-1]
			return storeErr(err)
		}
		s.notify()
		return nil
	})
}

// PlayCard plays the hand card at index, or reclaims the last played card
// when index is RewindSentinel.
func (s *Session) PlayCard(ctx context.Context, index int) error {
	return s.do(ctx, func() error {
		return s.playCard(ctx, index, false)
	})
}

// playCard is the primary action. auto marks the timeout auto-play, which
// bypasses the stun check. Assumes loop ownership.
func (s *Session) playCard(ctx context.Context, index int, auto bool) error {
	if !s.seated {
		return ErrNotSeated
	}
	if s.snap.RematchRequestedBy != "" && !s.snap.RematchAccepted {
		return ErrRematchPending
	}
	if !s.snap.GameActive {
		return ErrGameEnded
	}
	if s.snap.CurrentTurnPlayerID != s.PlayerID {
		return ErrNotYourTurn
	}
	me := s.snap.Slot(s.seat)
	if me.Status.Stunned && !auto {
		return ErrStunned
	}

	if index == RewindSentinel {
		return s.rewind(ctx)
	}
	if index < 0 || index >= len(me.Hand) {
		return fmt.Errorf("card index %d out of range", index)
	}
	// Keep the pre-play snapshot so a failed store write leaves the session
	// where the shared record still is and the play can be re-issued.
	saved := s.snap.Clone()
	card := me.Hand[index]
	me.Hand = append(me.Hand[:index], me.Hand[index+1:]...)

	opp := s.snap.Slot(s.seat.Other())
	var lastElem Element
	if s.snap.LastPlayedCard != nil {
		lastElem = s.snap.LastPlayedCard.Element
	}
	res := Resolve(ResolveInput{
		Card:                card,
		Caller:              *me,
		Opponent:            *opp,
		OpponentLastElement: lastElem,
		Rules:               s.rules,
	}, s.rng)
	*me = res.Caller
	*opp = res.Opponent
	if res.DrawExtra && len(me.Hand) < s.rules.HandLimit {
		me.Hand = append(me.Hand, NewCard(s.rng))
	}
	for _, m := range res.Messages {
		s.notifier.Effect("effect", m)
	}

	if s.checkGameOver(ctx, &card) {
		return nil
	}
	if err := s.endTurn(ctx, &card); err != nil {
		s.snap = saved
		s.turnWasMine = true
		return err
	}
	return nil
}

// rewind returns the last played time-element card to the caller's hand. The
// turn does not end; the caller still plays normally afterwards.
func (s *Session) rewind(ctx context.Context) error {
	me := s.snap.Slot(s.seat)
	last := s.snap.LastPlayedCard
	if last == nil || last.Element != Time {
		return ErrRewindUnavailable
	}
	if len(me.Hand) >= s.rules.HandLimit {
		return ErrRewindUnavailable
	}
	me.Hand = append(me.Hand, *last)
	s.snap.LastPlayedCard = nil
	updates := map[string]interface{}{
		seatField(s.seat, "Hand"): me.Hand,
		fieldLastPlayed:           nil,
	}
	if err := s.store.Update(ctx, s.key(), updates); err != nil {
		me.Hand = me.Hand[:len(me.Hand)-1]
		s.snap.LastPlayedCard = last
		return storeErr(err)
	}
	s.notifier.Effect("special", "You manipulated time to return your last card to your hand.")
	s.notify()
	return nil
}

// endTurn hands the turn to the other seat, persisting the played card, both
// sides' health and status, and the handoff specials (Freeze, Stealth).
// Assumes loop ownership.
func (s *Session) endTurn(ctx context.Context, played *Card) error {
	s.timer.Stop()
	s.delay.Stop()
	saved := s.snap.Clone()
	me := s.snap.Slot(s.seat)
	opp := s.snap.Slot(s.seat.Other())

	stole := false
	if played != nil {
		if played.Element == Ice {
			opp.Status.TimeReductionSec = int(s.rules.FreezeReduction / time.Second)
		}
		if played.Element == Shadow && len(opp.Hand) > 0 && len(me.Hand) < s.rules.HandLimit {
			i := s.rng.Intn(len(opp.Hand))
			stolen := opp.Hand[i]
			opp.Hand = append(opp.Hand[:i], opp.Hand[i+1:]...)
			me.Hand = append(me.Hand, stolen)
			stole = true
		}
	}

	s.snap.CurrentTurnPlayerID = opp.ID
	s.snap.LastPlayedCard = played
	s.turnWasMine = false

	updates := map[string]interface{}{
		fieldCurrentTurn:                    opp.ID,
		fieldLastPlayed:                     played,
		seatField(s.seat, "Hand"):           me.Hand,
		seatField(s.seat, "Health"):         me.Health,
		seatField(s.seat.Other(), "Health"): opp.Health,
		seatField(s.seat, "Status"):         me.Status,
		seatField(s.seat.Other(), "Status"): opp.Status,
	}
	if stole {
		updates[seatField(s.seat.Other(), "Hand")] = opp.Hand
	}
	if err := s.store.Update(ctx, s.key(), updates); err != nil {
		// The record did not change; it is still our turn.
		s.snap = saved
		s.turnWasMine = true
		return storeErr(err)
	}
	s.notify()
	return nil
}

// checkGameOver latches the terminal state when either side's health is at
// or below zero. Returns true when the game just ended. Assumes loop
// ownership.
func (s *Session) checkGameOver(ctx context.Context, played *Card) bool {
	me := s.snap.Slot(s.seat)
	opp := s.snap.Slot(s.seat.Other())
	if me.Health > 0 && opp.Health > 0 {
		return false
	}

	winner := ""
	switch {
	case me.Health <= 0 && opp.Health <= 0:
		// Simultaneous zero: no winner, latched as a draw.
	case opp.Health <= 0:
		winner = me.ID
	default:
		winner = opp.ID
	}

	s.timer.Stop()
	s.delay.Stop()
	s.snap.GameActive = false
	s.snap.Winner = winner
	s.snap.RematchAccepted = false
	s.snap.RematchRequestedBy = ""
	s.turnWasMine = false

	updates := map[string]interface{}{
		fieldGameActive:                     false,
		fieldWinner:                         winner,
		fieldRematchAccepted:                false,
		fieldRematchBy:                      "",
		seatField(s.seat, "Health"):         me.Health,
		seatField(s.seat.Other(), "Health"): opp.Health,
		seatField(s.seat, "Hand"):           me.Hand,
		seatField(s.seat, "Status"):         me.Status,
		seatField(s.seat.Other(), "Status"): opp.Status,
	}
	if played != nil {
		updates[fieldLastPlayed] = played
		s.snap.LastPlayedCard = played
	}
	if err := s.store.Update(ctx, s.key(), updates); err != nil {
		log.Printf("session %s: failed to persist game end: %v", s.roomID, err)
	}

	s.announceResult(winner)
	if s.OnGameEnd != nil {
		s.OnGameEnd(s.roomID, winner, s.snap.Generation)
	}
	s.notify()
	return true
}

func (s *Session) announceResult(winner string) {
	switch winner {
	case s.PlayerID:
		s.notifier.Effect("success", "Congratulations! You won!")
	case "":
		s.notifier.Effect("info", "Game over! It's a draw.")
	default:
		s.notifier.Effect("error", "Game over! You lost!")
	}
}

// RequestRematch is the two-phase handshake. The first caller claims the
// pending-request field; a caller observing the other side's claim accepts
// and restarts the game. Two concurrent first requests collapse into one
// request+accept pair through the store's atomic claim.
func (s *Session) RequestRematch(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.requestRematch(ctx)
	})
}

func (s *Session) requestRematch(ctx context.Context) error {
	if !s.seated {
		return ErrNotSeated
	}
	if s.snap.GameActive {
		return nil
	}
	if s.snap.RematchRequestedBy == s.PlayerID {
		return nil // already requested, still waiting
	}
	if s.snap.RematchRequestedBy != "" {
		return s.acceptRematch(ctx)
	}

	claimed, err := s.store.SetIfAbsent(ctx, s.key(), fieldRematchBy, s.PlayerID)
	if err != nil {
		return storeErr(err)
	}
	if !claimed {
		// Lost the race: adopt the fresh record and convert into acceptance.
		doc, err := s.store.Get(ctx, s.key())
		if err != nil {
			return storeErr(err)
		}
		snap, err := snapshotFromDoc(doc)
		if err != nil {
			return err
		}
		s.snap = snap
		if s.snap.RematchRequestedBy != "" && s.snap.RematchRequestedBy != s.PlayerID {
			return s.acceptRematch(ctx)
		}
		return nil
	}

	// Requester: reset own slot and redraw, leaving the game inactive until
	// the opponent accepts.
	hand := s.drawHand()
	me := s.snap.Slot(s.seat)
	me.Hand = hand
	me.Health = s.rules.StartingHealth
	me.Status = Status{}
	s.snap.RematchRequestedBy = s.PlayerID
	s.dealtFor = s.snap.Generation + 1

	updates := map[string]interface{}{
		seatField(s.seat, "Hand"):   hand,
		seatField(s.seat, "Status"): Status{},
	}
	if err := s.store.Update(ctx, s.key(), updates); err != nil {
		return storeErr(err)
	}
	s.notifier.Effect("info", "Rematch requested! Waiting for opponent...")
	s.notify()
	return nil
}

// acceptRematch completes the handshake: both slots reset to the starting
// health, the first-seated player takes the first turn, and a new generation
// begins on the same session identity. Assumes loop ownership.
func (s *Session) acceptRematch(ctx context.Context) error {
	gen := s.snap.Generation + 1
	first := s.snap.Slots[Seat1].ID
	hand := s.drawHand()

	updates := map[string]interface{}{
		seatField(Seat1, "Health"): s.rules.StartingHealth,
		seatField(Seat2, "Health"): s.rules.StartingHealth,
		seatField(Seat1, "Status"): Status{},
		seatField(Seat2, "Status"): Status{},
		seatField(s.seat, "Hand"):  hand,
		fieldLastPlayed:            nil,
		fieldGameActive:            true,
		fieldWinner:                "",
		fieldCurrentTurn:           first,
		fieldRematchAccepted:       true,
		fieldRematchBy:             "",
		fieldGeneration:            gen,
	}
	if err := s.store.Update(ctx, s.key(), updates); err != nil {
		return storeErr(err)
	}

	for seat := Seat1; seat <= Seat2; seat++ {
		s.snap.Slots[seat].Health = s.rules.StartingHealth
		s.snap.Slots[seat].Status = Status{}
	}
	s.snap.Slot(s.seat).Hand = hand
	s.snap.LastPlayedCard = nil
	s.snap.GameActive = true
	s.snap.Winner = ""
	s.snap.CurrentTurnPlayerID = first
	s.snap.RematchAccepted = true
	s.snap.RematchRequestedBy = ""
	s.snap.Generation = gen
	s.dealtFor = gen

	s.notifier.Effect("success", "Rematch accepted! Starting new game...")
	s.notify()
	return nil
}

// Leave removes the player from the session: the game is marked inactive
// with the leaver recorded, the seat is vacated, and the subscription and
// timers are torn down.
func (s *Session) Leave(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.seated {
			return ErrNotSeated
		}
		s.timer.Stop()
		s.delay.Stop()
		if s.unsubscribe != nil {
			s.unsubscribe()
			s.unsubscribe = nil
		}
		updates := map[string]interface{}{
			fieldGameActive:         false,
			fieldPlayerLeft:         s.PlayerID,
			seatField(s.seat, "Id"): "",
		}
		err := s.store.Update(ctx, s.key(), updates)
		s.seated = false
		s.turnWasMine = false
		if err != nil {
			return storeErr(err)
		}
		return nil
	})
}

// adopt installs a snapshot as local truth and notifies the presentation
// layer. Assumes loop ownership.
func (s *Session) adopt(roomID string, seat Seat, snap Snapshot) {
	s.roomID = roomID
	s.seat = seat
	s.seated = true
	s.snap = snap
	s.turnWasMine = snap.GameActive && snap.CurrentTurnPlayerID == s.PlayerID
	s.notify()
}

func (s *Session) subscribe(roomID string) error {
	unsub, err := s.store.Subscribe(context.Background(), SessionKey(roomID),
		func(doc store.Document) {
			s.post(func() error { return s.handleSnapshot(doc) })
		},
		func(err error) {
			log.Printf("session %s: subscription error: %v", roomID, err)
		},
	)
	if err != nil {
		return storeErr(err)
	}
	s.unsubscribe = unsub
	// Replay the current record once; a write landing between seat
	// attachment and subscription registration would otherwise be missed.
	if doc, err := s.store.Get(context.Background(), SessionKey(roomID)); err == nil {
		s.post(func() error { return s.handleSnapshot(doc) })
	}
	return nil
}

func (s *Session) drawHand() []Card {
	hand := make([]Card, 0, s.rules.StartingHandSize)
	for i := 0; i < s.rules.StartingHandSize; i++ {
		hand = append(hand, NewCard(s.rng))
	}
	return hand
}

func (s *Session) notify() {
	s.notifier.StateChanged(s.snap.Clone())
}
