package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/storage"
)

// ErrInjected is returned by MockBackend when a failure is injected.
var ErrInjected = errors.New("injected failure")

// MockBackend is an in-memory storage.Backend.
type MockBackend struct {
	mu    sync.Mutex
	seq   int
	pins  map[string]map[string]models.Pin
	rooms map[string]models.Room
	metas map[string]map[string]models.MapMeta
	prefs map[string]models.UserPrefs

	// FailDeletesAfter makes DeletePins fail once this many pins were deleted
	// in a call. Negative disables the failure.
	FailDeletesAfter int
	// FailWrites makes every pin and room write return ErrInjected.
	FailWrites bool
}

// NewMockBackend creates an empty backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		pins:             make(map[string]map[string]models.Pin),
		rooms:            make(map[string]models.Room),
		metas:            make(map[string]map[string]models.MapMeta),
		prefs:            make(map[string]models.UserPrefs),
		FailDeletesAfter: -1,
	}
}

func (m *MockBackend) Name() string { return "mock" }
func (m *MockBackend) Close() error { return nil }

func (m *MockBackend) ListPins(_ context.Context, scope string) ([]models.Pin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Pin{}
	for _, p := range m.pins[scope] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockBackend) GetPin(_ context.Context, scope, id string) (*models.Pin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pins[scope][id]
	if !ok {
		return nil, fmt.Errorf("pin %s: %w", id, storage.ErrNotFound)
	}
	return &p, nil
}

func (m *MockBackend) CreatePin(_ context.Context, scope string, pin *models.Pin) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return "", ErrInjected
	}
	if pin.ID == "" {
		m.seq++
		pin.ID = fmt.Sprintf("pin-%04d", m.seq)
	}
	pin.RoomID = scope
	if m.pins[scope] == nil {
		m.pins[scope] = make(map[string]models.Pin)
	}
	m.pins[scope][pin.ID] = *pin
	return pin.ID, nil
}

func (m *MockBackend) UpdatePin(_ context.Context, scope, id string, patch models.PinPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	p, ok := m.pins[scope][id]
	if !ok {
		return fmt.Errorf("pin %s: %w", id, storage.ErrNotFound)
	}
	patch.Apply(&p)
	m.pins[scope][id] = p
	return nil
}

func (m *MockBackend) DeletePin(_ context.Context, scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	if _, ok := m.pins[scope][id]; !ok {
		return fmt.Errorf("pin %s: %w", id, storage.ErrNotFound)
	}
	delete(m.pins[scope], id)
	return nil
}

func (m *MockBackend) DeletePins(_ context.Context, scope string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if m.FailDeletesAfter >= 0 && deleted >= m.FailDeletesAfter {
			return deleted, ErrInjected
		}
		if _, ok := m.pins[scope][id]; ok {
			delete(m.pins[scope], id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockBackend) CountPins(_ context.Context, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pins[scope]), nil
}

func (m *MockBackend) DeleteExpiredPins(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, pins := range m.pins {
		for id, p := range pins {
			if p.ExpiresAt != nil && p.ExpiresAt.Before(before) {
				delete(pins, id)
				n++
			}
		}
	}
	return n, nil
}

func cloneRoom(r models.Room) *models.Room {
	r.AllowedUsers = slices.Clone(r.AllowedUsers)
	r.Pending = slices.Clone(r.Pending)
	return &r
}

func (m *MockBackend) CreateRoom(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	if _, ok := m.rooms[room.RoomID]; ok {
		return fmt.Errorf("room %s: %w", room.RoomID, storage.ErrAlreadyExists)
	}
	m.rooms[room.RoomID] = *cloneRoom(*room)
	return nil
}

func (m *MockBackend) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, storage.ErrNotFound)
	}
	return cloneRoom(r), nil
}

func (m *MockBackend) updateRoom(roomID string, fn func(r *models.Room)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, storage.ErrNotFound)
	}
	c := cloneRoom(r)
	fn(c)
	m.rooms[roomID] = *c
	return nil
}

func (m *MockBackend) AddAllowed(_ context.Context, roomID, uid string) error {
	return m.updateRoom(roomID, func(r *models.Room) {
		if !slices.Contains(r.AllowedUsers, uid) {
			r.AllowedUsers = append(r.AllowedUsers, uid)
		}
		r.Pending = slices.DeleteFunc(r.Pending, func(p models.PendingRequest) bool { return p.UID == uid })
	})
}

func (m *MockBackend) AddPending(_ context.Context, roomID string, req models.PendingRequest) error {
	return m.updateRoom(roomID, func(r *models.Room) {
		r.Pending = slices.DeleteFunc(r.Pending, func(p models.PendingRequest) bool { return p.UID == req.UID })
		r.Pending = append(r.Pending, req)
	})
}

func (m *MockBackend) RemovePending(_ context.Context, roomID, uid string) error {
	return m.updateRoom(roomID, func(r *models.Room) {
		r.Pending = slices.DeleteFunc(r.Pending, func(p models.PendingRequest) bool { return p.UID == uid })
	})
}

func (m *MockBackend) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomID]; !ok {
		return fmt.Errorf("room %s: %w", roomID, storage.ErrNotFound)
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *MockBackend) RoomsForUser(_ context.Context, uid string) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Room
	for _, r := range m.rooms {
		if slices.Contains(r.AllowedUsers, uid) {
			out = append(out, *cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out, nil
}

func (m *MockBackend) ExpiredRooms(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, r := range m.rooms {
		if r.ExpiresAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockBackend) GetMapMeta(_ context.Context, scope, mapID string) (*models.MapMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.metas[scope][mapID]
	if !ok {
		return nil, fmt.Errorf("map meta %s: %w", mapID, storage.ErrNotFound)
	}
	meta.Profiles = slices.Clone(meta.Profiles)
	meta.Backgrounds = maps.Clone(meta.Backgrounds)
	return &meta, nil
}

func (m *MockBackend) PutMapMeta(_ context.Context, scope string, meta *models.MapMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.metas[scope] == nil {
		m.metas[scope] = make(map[string]models.MapMeta)
	}
	c := *meta
	c.Profiles = slices.Clone(meta.Profiles)
	c.Backgrounds = maps.Clone(meta.Backgrounds)
	m.metas[scope][meta.MapID] = c
	return nil
}

func (m *MockBackend) DeleteMapMeta(_ context.Context, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.metas[scope])
	delete(m.metas, scope)
	return n, nil
}

// PinCount returns the number of pins stored for a scope.
func (m *MockBackend) PinCount(scope string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pins[scope])
}

func (m *MockBackend) GetPrefs(_ context.Context, uid string) (*models.UserPrefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prefs[uid]
	if !ok {
		return nil, fmt.Errorf("prefs %s: %w", uid, storage.ErrNotFound)
	}
	p.IconOverrides = maps.Clone(p.IconOverrides)
	p.IconLibrary = slices.Clone(p.IconLibrary)
	return &p, nil
}

func (m *MockBackend) PutPrefs(_ context.Context, prefs *models.UserPrefs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	p := *prefs
	p.IconOverrides = maps.Clone(p.IconOverrides)
	p.IconLibrary = slices.Clone(p.IconLibrary)
	m.prefs[p.UID] = p
	return nil
}
