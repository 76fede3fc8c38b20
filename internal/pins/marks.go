package pins

import (
	"context"
	"sort"
	"sync"

	"github.com/tactical-map/backend/internal/models"
)

// markSet holds each user's marked pin ids per scope.
type markSet struct {
	mu    sync.Mutex
	marks map[string]map[string]map[string]struct{} // scope -> uid -> pin ids
}

func newMarkSet() *markSet {
	return &markSet{marks: make(map[string]map[string]map[string]struct{})}
}

func (m *markSet) set(scope, uid, pinID string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.marks[scope]
	if !ok {
		if !on {
			return
		}
		users = make(map[string]map[string]struct{})
		m.marks[scope] = users
	}
	ids, ok := users[uid]
	if !ok {
		if !on {
			return
		}
		ids = make(map[string]struct{})
		users[uid] = ids
	}
	if on {
		ids[pinID] = struct{}{}
		return
	}
	delete(ids, pinID)
}

func (m *markSet) list(scope, uid string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []string{}
	for id := range m.marks[scope][uid] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// forget removes pinID from every user's set in scope.
func (m *markSet) forget(scope, pinID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ids := range m.marks[scope] {
		delete(ids, pinID)
	}
}

func (m *markSet) clear(scope string) {
	m.mu.Lock()
	delete(m.marks, scope)
	m.mu.Unlock()
}

// Mark adds a pin to the caller's marked set.
func (s *Service) Mark(ctx context.Context, scope models.Scope, id string) error {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return err
	}
	s.marks.set(scope.Key(), scope.Identity.UID, id, true)
	return nil
}

// Unmark removes a pin from the caller's marked set.
func (s *Service) Unmark(ctx context.Context, scope models.Scope, id string) error {
	if err := s.gate.CanView(ctx, scope); err != nil {
		return err
	}
	s.marks.set(scope.Key(), scope.Identity.UID, id, false)
	return nil
}

// Marked returns the caller's marked pin ids.
func (s *Service) Marked(ctx context.Context, scope models.Scope) ([]string, error) {
	if err := s.gate.CanView(ctx, scope); err != nil {
		return nil, err
	}
	return s.marks.list(scope.Key(), scope.Identity.UID), nil
}
