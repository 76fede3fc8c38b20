package session

import (
	"fmt"
	"sort"
	"time"
)

// PresenceMaxAge is how long a connection may stay silent before it is
// dropped from the presence list.
const PresenceMaxAge = 2 * time.Minute

// presence tracks one user in one room. conns counts open connections so
// that closing one of several tabs keeps the user online.
type presence struct {
	conns int
	seen  time.Time
}

func (m *Manager) presenceOf(roomID, uid string) *presence {
	users, ok := m.presence[roomID]
	if !ok {
		users = make(map[string]*presence)
		m.presence[roomID] = users
	}
	p, ok := users[uid]
	if !ok {
		p = &presence{}
		users[uid] = p
	}
	return p
}

// Join records a new connection of uid to roomID.
func (m *Manager) Join(roomID, uid string) {
	if uid == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.presenceOf(roomID, uid)
	p.conns++
	p.seen = m.now()
}

// Touch records that uid is still active in roomID.
func (m *Manager) Touch(roomID, uid string) {
	if uid == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.presenceOf(roomID, uid).seen = m.now()
}

// Leave closes one connection of uid. The user drops from roomID's presence
// list with the last one.
func (m *Manager) Leave(roomID, uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.presence[roomID]
	if !ok {
		return
	}
	if p, ok := users[uid]; ok {
		p.conns--
		if p.conns <= 0 {
			delete(users, uid)
		}
	}
	if len(users) == 0 {
		delete(m.presence, roomID)
	}
}

// Online lists the users seen in roomID, sorted.
func (m *Manager) Online(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]string, 0, len(m.presence[roomID]))
	for uid := range m.presence[roomID] {
		users = append(users, uid)
	}
	sort.Strings(users)
	return users
}

// CleanupIdle drops presence entries older than maxAge.
func (m *Manager) CleanupIdle(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for roomID, users := range m.presence {
		for uid, p := range users {
			if p.seen.Before(cutoff) {
				delete(users, uid)
				removed++
			}
		}
		if len(users) == 0 {
			delete(m.presence, roomID)
		}
	}
	if removed > 0 {
		fmt.Printf("[Rooms] Dropped %d idle users\n", removed)
	}
	return removed
}
