// internal/room/manager.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elemduel/elemduel/internal/duel"
	"github.com/elemduel/elemduel/internal/store"
)

// DefaultMaxAge is how long a room lives before the sweep expires it.
const DefaultMaxAge = 24 * time.Hour

// Manager owns room lifecycle against the shared store: creation with
// collision-checked ids, membership on join/leave, and the periodic expiry
// sweep.
type Manager struct {
	// MaxAge is the room age after which Sweep marks it expired.
	MaxAge time.Duration

	// OnExpired, if set, is invoked for every room the sweep expires,
	// typically to archive it durably.
	OnExpired func(Room)

	st     store.Store
	rng    duel.Rng
	logger *logrus.Logger
}

func NewManager(st store.Store, rng duel.Rng, logger *logrus.Logger) *Manager {
	return &Manager{
		MaxAge: DefaultMaxAge,
		st:     st,
		rng:    rng,
		logger: logger,
	}
}

// Create allocates a fresh room with the host as its only member and
// registers it in the room index.
func (m *Manager) Create(ctx context.Context, hostID string) (string, error) {
	id, err := GenerateUniqueID(ctx, m.st, m.rng)
	if err != nil {
		return "", fmt.Errorf("failed to allocate room id: %w", err)
	}
	r := Room{
		ID:        id,
		MemberIDs: []string{hostID},
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.st.Set(ctx, Key(id), r.fields()); err != nil {
		return "", err
	}
	if err := m.st.AppendAtomic(ctx, indexKey, indexField, id); err != nil {
		return "", err
	}
	m.logger.WithFields(logrus.Fields{"room": id, "host": hostID}).Info("Room created")
	return id, nil
}

// Get loads a room record.
func (m *Manager) Get(ctx context.Context, id string) (Room, error) {
	doc, err := m.st.Get(ctx, Key(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Room{}, duel.ErrRoomNotFound
		}
		return Room{}, err
	}
	return fromDoc(doc)
}

// Join validates the room and records the player's membership. Seat
// assignment itself happens at the session level; this guards against
// expired and over-full rooms first.
func (m *Manager) Join(ctx context.Context, id, playerID string) error {
	r, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Expired {
		return duel.ErrRoomExpired
	}
	if contains(r.MemberIDs, playerID) {
		return nil // rejoin
	}
	if len(r.MemberIDs) >= 2 {
		return duel.ErrRoomFull
	}
	return m.st.AppendAtomic(ctx, Key(id), "memberIds", playerID)
}

// Leave removes the player from the room's membership. The last member out
// marks the room expired. The removal is atomic so two simultaneous leaves
// cannot lose each other's write; whichever leave drains the room flips the
// expired flag.
func (m *Manager) Leave(ctx context.Context, id, playerID string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	remaining, err := m.st.RemoveAtomic(ctx, Key(id), "memberIds", playerID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := m.st.Update(ctx, Key(id), map[string]interface{}{"expired": true}); err != nil {
			return err
		}
	}
	m.logger.WithFields(logrus.Fields{"room": id, "player": playerID, "remaining": remaining}).Info("Player left room")
	return nil
}

// Sweep walks the room index and expires every unexpired room older than
// MaxAge. Returns the number of rooms expired.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	doc, err := m.st.Get(ctx, indexKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil // no rooms yet
		}
		return 0, err
	}
	var ids []string
	if raw, ok := doc[indexField]; ok {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return 0, fmt.Errorf("malformed room index: %w", err)
		}
	}

	now := time.Now()
	expired := 0
	for _, id := range ids {
		r, err := m.Get(ctx, id)
		if err != nil {
			if errors.Is(err, duel.ErrRoomNotFound) {
				continue
			}
			return expired, err
		}
		if r.Expired || r.Age(now) < m.MaxAge {
			continue
		}
		if err := m.st.Update(ctx, Key(id), map[string]interface{}{"expired": true}); err != nil {
			return expired, err
		}
		r.Expired = true
		expired++
		m.logger.WithField("room", id).Info("Room expired by sweep")
		if m.OnExpired != nil {
			m.OnExpired(r)
		}
	}
	return expired, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
