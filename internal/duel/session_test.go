// internal/duel/session_test.go
package duel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemduel/elemduel/internal/store"
)

// recordingNotifier collects snapshots and effect lines instead of pushing
// them over a socket.
type recordingNotifier struct {
	mu      sync.Mutex
	states  []Snapshot
	effects []string
}

func newRecordingNotifier() *recordingNotifier { return &recordingNotifier{} }

func (n *recordingNotifier) StateChanged(snap Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, snap)
}

func (n *recordingNotifier) Effect(kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.effects = append(n.effects, message)
}

func (n *recordingNotifier) hasEffect(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.effects {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

// testRules keeps the default constants but stretches the timers so a test
// never races an unexpected timeout.
func testRules() Ruleset {
	r := DefaultRuleset()
	r.TurnBudget = time.Hour
	r.MinTurnBudget = time.Hour
	r.StunSkipDelay = 20 * time.Millisecond
	return r
}

type duelFixture struct {
	st      store.Store
	host    *Session
	joiner  *Session
	hostN   *recordingNotifier
	joinN   *recordingNotifier
	hostRng *scriptRng
	joinRng *scriptRng
}

const testRoomID = "ROOM01"

// setupDuel hosts a room, joins a second player, and waits until the game is
// live with both starting hands dealt. The empty scripted RNGs make every
// generated card {Fire, Attack, 2} with no specials firing.
func setupDuel(t *testing.T, rules Ruleset) *duelFixture {
	return setupDuelOn(t, rules, store.NewMemoryStore())
}

func setupDuelOn(t *testing.T, rules Ruleset, st store.Store) *duelFixture {
	t.Helper()
	ctx := context.Background()

	f := &duelFixture{
		st:      st,
		hostN:   newRecordingNotifier(),
		joinN:   newRecordingNotifier(),
		hostRng: &scriptRng{},
		joinRng: &scriptRng{},
	}
	f.host = NewSession(f.st, "host", f.hostN, rules, f.hostRng)
	require.NoError(t, f.host.Host(ctx, testRoomID))
	f.joiner = NewSession(f.st, "joiner", f.joinN, rules, f.joinRng)
	require.NoError(t, f.joiner.Join(ctx, testRoomID))
	t.Cleanup(func() {
		f.host.Close()
		f.joiner.Close()
	})

	require.Eventually(t, func() bool {
		hs, js := f.host.Snapshot(), f.joiner.Snapshot()
		return hs.GameActive && js.GameActive &&
			len(hs.Slots[Seat1].Hand) == rules.StartingHandSize &&
			len(js.Slots[Seat2].Hand) == rules.StartingHandSize
	}, 2*time.Second, 10*time.Millisecond, "game never became active with dealt hands")
	return f
}

// write patches the shared record directly, simulating an out-of-band change.
func (f *duelFixture) write(t *testing.T, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, f.st.Update(context.Background(), SessionKey(testRoomID), fields))
}

func TestHostAndJoinActivateGame(t *testing.T) {
	f := setupDuel(t, testRules())

	hs := f.host.Snapshot()
	assert.Equal(t, "host", hs.Slots[Seat1].ID)
	assert.Equal(t, "joiner", hs.Slots[Seat2].ID)
	assert.Equal(t, "host", hs.CurrentTurnPlayerID, "first seat takes the first turn")
	assert.Equal(t, 30, hs.Slots[Seat1].Health)
	assert.Equal(t, 30, hs.Slots[Seat2].Health)
	assert.True(t, f.hostN.hasEffect("Opponent joined"))
}

func TestJoinFullRoom(t *testing.T) {
	f := setupDuel(t, testRules())

	third := NewSession(f.st, "third", nil, testRules(), &scriptRng{})
	defer third.Close()
	err := third.Join(context.Background(), testRoomID)
	require.ErrorIs(t, err, ErrRoomFull)
	assert.False(t, third.Seated())
}

func TestJoinMissingRoom(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewSession(st, "p1", nil, testRules(), &scriptRng{})
	defer s.Close()

	err := s.Join(context.Background(), "NOSUCH")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestReconnectReclaimsSeat(t *testing.T) {
	f := setupDuel(t, testRules())

	again := NewSession(f.st, "host", nil, testRules(), &scriptRng{})
	defer again.Close()
	require.NoError(t, again.Join(context.Background(), testRoomID))

	snap := again.Snapshot()
	assert.Equal(t, "host", snap.Slots[Seat1].ID)
	assert.True(t, again.Seated())
}

func TestConcurrentHostsTakeSeparateSeats(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	a := NewSession(st, "alice", nil, testRules(), &scriptRng{})
	b := NewSession(st, "bob", nil, testRules(), &scriptRng{})
	defer a.Close()
	defer b.Close()

	// Both players open the room before either has written the record; the
	// seat claim must give each a distinct seat instead of the last writer
	// clobbering the first.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = a.Host(ctx, "RACE01") }()
	go func() { defer wg.Done(); errs[1] = b.Host(ctx, "RACE01") }()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.True(t, a.Seated())
	require.True(t, b.Seated())

	doc, err := st.Get(ctx, SessionKey("RACE01"))
	require.NoError(t, err)
	snap, err := snapshotFromDoc(doc)
	require.NoError(t, err)
	seatA, okA := snap.SeatOf("alice")
	seatB, okB := snap.SeatOf("bob")
	require.True(t, okA, "alice holds a recorded seat")
	require.True(t, okB, "bob holds a recorded seat")
	assert.NotEqual(t, seatA, seatB)
	assert.True(t, snap.GameActive)

	require.Eventually(t, func() bool {
		as, bs := a.Snapshot(), b.Snapshot()
		sa, ok1 := as.SeatOf("alice")
		sb, ok2 := bs.SeatOf("bob")
		return ok1 && ok2 &&
			len(as.Slots[sa].Hand) == 3 && len(bs.Slots[sb].Hand) == 3
	}, 2*time.Second, 10*time.Millisecond, "both players never got starting hands")
}

func TestReconnectWhileWaitingStillDealsHand(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	rules := testRules()

	first := NewSession(st, "host", nil, rules, &scriptRng{})
	require.NoError(t, first.Host(ctx, testRoomID))
	first.Close()

	// Reconnect before any opponent arrives: the seat is reclaimed with an
	// empty hand, so activation must still deal it.
	again := NewSession(st, "host", nil, rules, &scriptRng{})
	defer again.Close()
	require.NoError(t, again.Join(ctx, testRoomID))
	assert.Empty(t, again.Snapshot().Slots[Seat1].Hand)

	joiner := NewSession(st, "joiner", nil, rules, &scriptRng{})
	defer joiner.Close()
	require.NoError(t, joiner.Join(ctx, testRoomID))

	require.Eventually(t, func() bool {
		hs := again.Snapshot()
		return hs.GameActive && len(hs.Slots[Seat1].Hand) == rules.StartingHandSize
	}, 2*time.Second, 10*time.Millisecond, "reconnected host was never dealt a hand")
}

func TestPlayCardResolvesAndHandsTurn(t *testing.T) {
	f := setupDuel(t, testRules())

	require.NoError(t, f.host.PlayCard(context.Background(), 0))

	hs := f.host.Snapshot()
	assert.Equal(t, 28, hs.Slots[Seat2].Health, "Fire/Attack/2 deals 2")
	assert.Len(t, hs.Slots[Seat1].Hand, 2)
	assert.Equal(t, "joiner", hs.CurrentTurnPlayerID)
	require.NotNil(t, hs.LastPlayedCard)
	assert.Equal(t, Fire, hs.LastPlayedCard.Element)

	require.Eventually(t, func() bool {
		js := f.joiner.Snapshot()
		return js.Slots[Seat2].Health == 28 && js.CurrentTurnPlayerID == "joiner"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPlayCardOutOfTurn(t *testing.T) {
	f := setupDuel(t, testRules())

	err := f.joiner.PlayCard(context.Background(), 0)
	require.ErrorIs(t, err, ErrNotYourTurn)
}

func TestPlayCardNotSeated(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewSession(st, "p1", nil, testRules(), &scriptRng{})
	defer s.Close()

	err := s.PlayCard(context.Background(), 0)
	require.ErrorIs(t, err, ErrNotSeated)
}

func TestPlayCardIndexOutOfRange(t *testing.T) {
	f := setupDuel(t, testRules())

	err := f.host.PlayCard(context.Background(), 99)
	require.Error(t, err)
	assert.Len(t, f.host.Snapshot().Slots[Seat1].Hand, 3, "hand untouched on bad index")
}

// flakyStore injects write failures into an in-memory backend.
type flakyStore struct {
	*store.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyStore) Update(ctx context.Context, key string, fields map[string]interface{}) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("backend unavailable")
	}
	return f.MemoryStore.Update(ctx, key, fields)
}

func TestPlayCardStoreFailureRollsBack(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	f := setupDuelOn(t, testRules(), st)
	ctx := context.Background()

	st.setFail(true)
	err := f.host.PlayCard(ctx, 0)
	require.Error(t, err)

	// Nothing reached the record, so locally it must still be our turn with
	// the full hand; the play can simply be re-issued.
	hs := f.host.Snapshot()
	assert.Len(t, hs.Slots[Seat1].Hand, 3, "hand restored after failed write")
	assert.Equal(t, 30, hs.Slots[Seat2].Health)
	assert.Equal(t, "host", hs.CurrentTurnPlayerID)

	st.setFail(false)
	require.NoError(t, f.host.PlayCard(ctx, 0))
	hs = f.host.Snapshot()
	assert.Equal(t, 28, hs.Slots[Seat2].Health, "re-issued play resolved once")
	assert.Len(t, hs.Slots[Seat1].Hand, 2)
	assert.Equal(t, "joiner", hs.CurrentTurnPlayerID)
}

func TestPlayCardWhileStunned(t *testing.T) {
	f := setupDuel(t, testRules())

	f.write(t, map[string]interface{}{
		seatField(Seat1, "Status"): Status{Stunned: true},
	})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().Slots[Seat1].Status.Stunned
	}, 2*time.Second, 10*time.Millisecond)

	err := f.host.PlayCard(context.Background(), 0)
	require.ErrorIs(t, err, ErrStunned)
}

func TestPlayCardWhileRematchPending(t *testing.T) {
	f := setupDuel(t, testRules())

	f.write(t, map[string]interface{}{
		fieldRematchBy: "joiner",
	})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().RematchRequestedBy == "joiner"
	}, 2*time.Second, 10*time.Millisecond)

	err := f.host.PlayCard(context.Background(), 0)
	require.ErrorIs(t, err, ErrRematchPending)
}

func TestPlayCardAfterGameEnded(t *testing.T) {
	f := setupDuel(t, testRules())

	f.write(t, map[string]interface{}{
		fieldGameActive: false,
		fieldWinner:     "joiner",
	})
	require.Eventually(t, func() bool {
		return !f.host.Snapshot().GameActive
	}, 2*time.Second, 10*time.Millisecond)

	err := f.host.PlayCard(context.Background(), 0)
	require.ErrorIs(t, err, ErrGameEnded)
}

func TestDrawCardAppendsToHand(t *testing.T) {
	f := setupDuel(t, testRules())

	// Script a card distinct from the Fire/Attack/2 copies already in hand.
	f.hostRng.ints = []int{1, 1, 1}
	require.NoError(t, f.host.DrawCard(context.Background()))

	hand := f.host.Snapshot().Slots[Seat1].Hand
	require.Len(t, hand, 4)
	assert.Equal(t, Card{Element: Water, Action: Shield, Power: 3}, hand[3])
}

func TestDrawCardKeepsDuplicate(t *testing.T) {
	f := setupDuel(t, testRules())
	ctx := context.Background()

	// The exhausted RNG draws another Fire/Attack/2, identical to every card
	// already in hand. The duplicate must land in the shared record as well.
	require.NoError(t, f.host.DrawCard(ctx))
	require.Len(t, f.host.Snapshot().Slots[Seat1].Hand, 4)

	doc, err := f.st.Get(ctx, SessionKey(testRoomID))
	require.NoError(t, err)
	snap, err := snapshotFromDoc(doc)
	require.NoError(t, err)
	assert.Len(t, snap.Slots[Seat1].Hand, 4, "shared record holds the duplicate too")
}

func TestDrawCardSilentOffTurn(t *testing.T) {
	f := setupDuel(t, testRules())

	require.NoError(t, f.joiner.DrawCard(context.Background()))
	assert.Len(t, f.joiner.Snapshot().Slots[Seat2].Hand, 3, "off-turn draw is a no-op")
}

func TestDrawCardSilentAtHandCap(t *testing.T) {
	rules := testRules()
	rules.HandLimit = rules.StartingHandSize
	f := setupDuel(t, rules)

	require.NoError(t, f.host.DrawCard(context.Background()))
	assert.Len(t, f.host.Snapshot().Slots[Seat1].Hand, rules.StartingHandSize)
}

func TestGameOverLatchesAndAnnounces(t *testing.T) {
	f := setupDuel(t, testRules())

	ended := make(chan string, 1)
	f.host.OnGameEnd = func(roomID, winnerID string, generation int) {
		assert.Equal(t, testRoomID, roomID)
		assert.Equal(t, 0, generation)
		ended <- winnerID
	}

	f.write(t, map[string]interface{}{
		seatField(Seat2, "Health"): 2,
	})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().Slots[Seat2].Health == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.host.PlayCard(context.Background(), 0))

	select {
	case winner := <-ended:
		assert.Equal(t, "host", winner)
	case <-time.After(2 * time.Second):
		t.Fatal("OnGameEnd never fired")
	}

	hs := f.host.Snapshot()
	assert.False(t, hs.GameActive)
	assert.Equal(t, "host", hs.Winner)
	assert.True(t, f.hostN.hasEffect("You won"))

	require.Eventually(t, func() bool {
		return f.joinN.hasEffect("You lost")
	}, 2*time.Second, 10*time.Millisecond, "loser never saw the result")
}

func TestSimultaneousZeroIsADraw(t *testing.T) {
	f := setupDuel(t, testRules())

	f.write(t, map[string]interface{}{
		seatField(Seat1, "Health"): 0,
		seatField(Seat2, "Health"): 2,
	})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().Slots[Seat1].Health == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.host.PlayCard(context.Background(), 0))

	hs := f.host.Snapshot()
	assert.False(t, hs.GameActive)
	assert.Empty(t, hs.Winner)
	assert.True(t, f.hostN.hasEffect("draw"))
}

func TestTimeoutAutoPlaysACard(t *testing.T) {
	rules := testRules()
	rules.TurnBudget = 50 * time.Millisecond
	rules.MinTurnBudget = 20 * time.Millisecond
	f := setupDuel(t, rules)

	require.Eventually(t, func() bool {
		return len(f.host.Snapshot().Slots[Seat1].Hand) < rules.StartingHandSize
	}, 2*time.Second, 10*time.Millisecond, "timeout never auto-played")
	assert.True(t, f.hostN.hasEffect("Time's up"))
}

func TestRewindReclaimsTimeCard(t *testing.T) {
	f := setupDuel(t, testRules())

	f.write(t, map[string]interface{}{
		fieldLastPlayed: Card{Element: Time, Action: Attack, Power: 3},
	})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().LastPlayedCard != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.host.PlayCard(context.Background(), RewindSentinel))

	hs := f.host.Snapshot()
	require.Len(t, hs.Slots[Seat1].Hand, 4)
	assert.Equal(t, Card{Element: Time, Action: Attack, Power: 3}, hs.Slots[Seat1].Hand[3])
	assert.Nil(t, hs.LastPlayedCard)
	assert.Equal(t, "host", hs.CurrentTurnPlayerID, "rewind does not end the turn")
}

func TestRewindUnavailableForOtherElements(t *testing.T) {
	f := setupDuel(t, testRules())

	f.write(t, map[string]interface{}{
		fieldLastPlayed: Card{Element: Fire, Action: Attack, Power: 3},
	})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().LastPlayedCard != nil
	}, 2*time.Second, 10*time.Millisecond)

	err := f.host.PlayCard(context.Background(), RewindSentinel)
	require.ErrorIs(t, err, ErrRewindUnavailable)
}

func TestBurnTicksAtTurnStart(t *testing.T) {
	f := setupDuel(t, testRules())

	// Hand the turn to the joiner, then burn the host.
	require.NoError(t, f.host.PlayCard(context.Background(), 0))
	f.write(t, map[string]interface{}{
		seatField(Seat1, "Status"): Status{BurnTurns: 2},
	})
	require.Eventually(t, func() bool {
		return f.joiner.Snapshot().Slots[Seat1].Status.BurnTurns == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.joiner.PlayCard(context.Background(), 0))

	require.Eventually(t, func() bool {
		hs := f.host.Snapshot()
		return hs.Slots[Seat1].Health == 27 && hs.Slots[Seat1].Status.BurnTurns == 1
	}, 2*time.Second, 10*time.Millisecond, "burn tick never applied")
	assert.True(t, f.hostN.hasEffect("Burn effect"))
}

func TestStunSkipsTurnAfterDelay(t *testing.T) {
	f := setupDuel(t, testRules())

	require.NoError(t, f.host.PlayCard(context.Background(), 0))
	f.write(t, map[string]interface{}{
		seatField(Seat1, "Status"): Status{Stunned: true},
	})
	require.Eventually(t, func() bool {
		return f.joiner.Snapshot().Slots[Seat1].Status.Stunned
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.joiner.PlayCard(context.Background(), 0))

	// The host's stunned turn auto-ends with no card played.
	require.Eventually(t, func() bool {
		hs := f.host.Snapshot()
		return hs.CurrentTurnPlayerID == "joiner" && hs.LastPlayedCard == nil
	}, 2*time.Second, 10*time.Millisecond, "stunned turn never auto-ended")
	assert.Len(t, f.host.Snapshot().Slots[Seat1].Hand, 2, "no card left the hand during the skip")
	assert.True(t, f.hostN.hasEffect("stunned"))
}

func TestFreezeShortensNextTurnBudget(t *testing.T) {
	f := setupDuel(t, testRules())

	// Detach the opponent so the reduction is not consumed the instant their
	// turn starts; the shared record keeps the landed value.
	f.joiner.Close()

	// Force an Ice card into the host's hand, then play it.
	f.write(t, map[string]interface{}{
		seatField(Seat1, "Hand"): []Card{{Element: Ice, Action: Attack, Power: 2}},
	})
	require.Eventually(t, func() bool {
		hand := f.host.Snapshot().Slots[Seat1].Hand
		return len(hand) == 1 && hand[0].Element == Ice
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.host.PlayCard(context.Background(), 0))

	assert.Equal(t, 10, f.host.Snapshot().Slots[Seat2].Status.TimeReductionSec)
	assert.Equal(t, 28, f.host.Snapshot().Slots[Seat2].Health)
}

func TestTurnBudgetClampsToMinimum(t *testing.T) {
	rules := DefaultRuleset()

	assert.Equal(t, 30*time.Second, turnBudget(rules, 0))
	assert.Equal(t, 20*time.Second, turnBudget(rules, 10))
	assert.Equal(t, 10*time.Second, turnBudget(rules, 25), "budget never drops below the floor")
}

func TestShadowStealsACard(t *testing.T) {
	f := setupDuel(t, testRules())

	f.write(t, map[string]interface{}{
		seatField(Seat1, "Hand"): []Card{{Element: Shadow, Action: Attack, Power: 2}},
	})
	require.Eventually(t, func() bool {
		hand := f.host.Snapshot().Slots[Seat1].Hand
		return len(hand) == 1 && hand[0].Element == Shadow
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.host.PlayCard(context.Background(), 0))

	hs := f.host.Snapshot()
	assert.Len(t, hs.Slots[Seat1].Hand, 1, "played one, stole one")
	assert.Len(t, hs.Slots[Seat2].Hand, 2)
}

func TestRematchHandshake(t *testing.T) {
	f := setupDuel(t, testRules())
	ctx := context.Background()

	// End the game: host wins.
	f.write(t, map[string]interface{}{seatField(Seat2, "Health"): 2})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().Slots[Seat2].Health == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.host.PlayCard(ctx, 0))
	require.Eventually(t, func() bool {
		return !f.joiner.Snapshot().GameActive
	}, 2*time.Second, 10*time.Millisecond)

	// Joiner requests; host should see the prompt.
	require.NoError(t, f.joiner.RequestRematch(ctx))
	assert.Equal(t, "joiner", f.joiner.Snapshot().RematchRequestedBy)
	require.Eventually(t, func() bool {
		return f.hostN.hasEffect("wants a rematch")
	}, 2*time.Second, 10*time.Millisecond)

	// Host accepts; a new generation starts with reset state.
	require.Eventually(t, func() bool {
		return f.host.Snapshot().RematchRequestedBy == "joiner"
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.host.RequestRematch(ctx))

	require.Eventually(t, func() bool {
		hs, js := f.host.Snapshot(), f.joiner.Snapshot()
		return hs.GameActive && js.GameActive &&
			hs.Generation == 1 && js.Generation == 1 &&
			hs.Slots[Seat1].Health == 30 && hs.Slots[Seat2].Health == 30 &&
			len(hs.Slots[Seat1].Hand) == 3 && len(js.Slots[Seat2].Hand) == 3 &&
			hs.CurrentTurnPlayerID == "host" &&
			hs.RematchRequestedBy == "" && hs.Winner == ""
	}, 2*time.Second, 10*time.Millisecond, "rematch never restarted the game")
}

func TestSimultaneousRematchRequests(t *testing.T) {
	f := setupDuel(t, testRules())
	ctx := context.Background()

	f.write(t, map[string]interface{}{seatField(Seat2, "Health"): 2})
	require.Eventually(t, func() bool {
		return f.host.Snapshot().Slots[Seat2].Health == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.host.PlayCard(ctx, 0))
	require.Eventually(t, func() bool {
		return !f.host.Snapshot().GameActive && !f.joiner.Snapshot().GameActive
	}, 2*time.Second, 10*time.Millisecond)

	// Both sides hit the button at once; the claim collapses the race into
	// one request and one acceptance.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = f.host.RequestRematch(ctx) }()
	go func() { defer wg.Done(); _ = f.joiner.RequestRematch(ctx) }()
	wg.Wait()

	require.Eventually(t, func() bool {
		hs, js := f.host.Snapshot(), f.joiner.Snapshot()
		return hs.GameActive && js.GameActive &&
			hs.Generation == 1 && js.Generation == 1 &&
			hs.RematchRequestedBy == "" &&
			len(hs.Slots[Seat1].Hand) == 3 && len(js.Slots[Seat2].Hand) == 3
	}, 2*time.Second, 10*time.Millisecond, "concurrent rematch requests never converged")
}

func TestLeaveVacatesSeatAndNotifiesOpponent(t *testing.T) {
	f := setupDuel(t, testRules())
	ctx := context.Background()

	require.NoError(t, f.host.Leave(ctx))
	assert.False(t, f.host.Seated())

	err := f.host.PlayCard(ctx, 0)
	require.ErrorIs(t, err, ErrNotSeated)

	require.Eventually(t, func() bool {
		js := f.joiner.Snapshot()
		return !js.GameActive && js.PlayerLeftID == "host" && js.Slots[Seat1].ID == ""
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.joinN.hasEffect("Opponent left"))
}
