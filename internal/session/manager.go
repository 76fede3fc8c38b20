// Package session resolves request scopes and runs the owner/approval
// protocol of shared rooms.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/storage"
)

var (
	ErrInvalidRoomID    = errors.New("invalid room id")
	ErrIdentityRequired = errors.New("identity required")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotApproved      = errors.New("not approved for this room")
	ErrNotOwner         = errors.New("only the room owner may do this")
	ErrNotPending       = errors.New("no pending request for user")
)

// DefaultRoomTTL is how long a room lives after creation.
const DefaultRoomTTL = 7 * 24 * time.Hour

const (
	maxNameLength = 24
	anonymousName = "Anonymous"
	roomIDLength  = 6
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// Local scopes are stored under this prefix, so no room may use it.
const reservedRoomPrefix = models.LocalKeyPrefix

// Publisher receives room change notifications.
type Publisher interface {
	Publish(scope, kind string)
}

// Manager is the room controller. It owns room documents in the backend and
// tracks who is currently connected to each room.
type Manager struct {
	rooms     storage.RoomStore
	roomTTL   time.Duration
	now       func() time.Time
	publisher Publisher

	mu       sync.RWMutex
	presence map[string]map[string]*presence // roomID -> uid
}

// Option configures a Manager.
type Option func(*Manager)

// WithRoomTTL sets the room lifetime.
func WithRoomTTL(d time.Duration) Option {
	return func(m *Manager) { m.roomTTL = d }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPublisher sets the sink for room change notifications.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// NewManager creates a room controller over rooms.
func NewManager(rooms storage.RoomStore, opts ...Option) *Manager {
	m := &Manager{
		rooms:    rooms,
		roomTTL:  DefaultRoomTTL,
		now:      time.Now,
		presence: make(map[string]map[string]*presence),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ValidRoomID reports whether id can name a room.
func ValidRoomID(id string) bool {
	if len(id) >= len(reservedRoomPrefix) && strings.EqualFold(id[:len(reservedRoomPrefix)], reservedRoomPrefix) {
		return false
	}
	return roomIDPattern.MatchString(id)
}

// NormalizeName trims a display name and falls back to "Anonymous".
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return anonymousName
	}
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength])
	}
	return name
}

// Resolve maps the room query parameter and caller identity to a scope. An
// empty room selects local mode, which is private to the caller's uid.
func Resolve(room string, id models.Identity) (models.Scope, error) {
	id.Name = NormalizeName(id.Name)
	room = strings.TrimSpace(room)
	if room == "" {
		if id.UID == "" {
			return models.Scope{}, ErrIdentityRequired
		}
		return models.Scope{Mode: models.ModeLocal, Identity: id}, nil
	}
	if !ValidRoomID(room) {
		return models.Scope{}, fmt.Errorf("%w: %q", ErrInvalidRoomID, room)
	}
	return models.Scope{Mode: models.ModeShared, RoomID: room, Identity: id}, nil
}

// GenerateRoomID returns a random 6-character upper-case base36 code.
func GenerateRoomID() string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8])
	id := strings.ToUpper(strconv.FormatUint(n, 36))
	for len(id) < roomIDLength {
		id = "0" + id
	}
	return id[:roomIDLength]
}

// EnterResult is the outcome of entering a room.
type EnterResult struct {
	Room    *models.Room `json:"room"`
	Role    models.Role  `json:"role"`
	Created bool         `json:"created"`
}

// Enter runs the join protocol for scope's user. With create set, the first
// caller to confirm the room id becomes its owner; a room that already exists
// is joined instead. Owners are re-added to the allow-list, other unapproved
// visitors are recorded as pending once.
func (m *Manager) Enter(ctx context.Context, scope models.Scope, create bool) (*EnterResult, error) {
	if !scope.Shared() {
		return nil, ErrInvalidRoomID
	}
	uid := scope.Identity.UID
	if uid == "" {
		return nil, ErrIdentityRequired
	}

	if create {
		now := m.now()
		room := &models.Room{
			RoomID:       scope.RoomID,
			OwnerUID:     uid,
			AllowedUsers: []string{uid},
			CreatedAt:    now,
			ExpiresAt:    now.Add(m.roomTTL),
		}
		err := m.rooms.CreateRoom(ctx, room)
		if err == nil {
			fmt.Printf("[Rooms] %s created by %s\n", scope.RoomID, uid)
			m.publish(scope.RoomID)
			return &EnterResult{Room: room, Role: models.RoleOwner, Created: true}, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("creating room: %w", err)
		}
	}

	room, err := m.getRoom(ctx, scope.RoomID)
	if err != nil {
		return nil, err
	}

	switch room.RoleOf(uid) {
	case models.RoleOwner:
		if !slices.Contains(room.AllowedUsers, uid) {
			if err := m.rooms.AddAllowed(ctx, room.RoomID, uid); err != nil {
				return nil, fmt.Errorf("re-adding owner: %w", err)
			}
			room.AllowedUsers = append(room.AllowedUsers, uid)
			m.publish(room.RoomID)
		}
		return &EnterResult{Room: room, Role: models.RoleOwner}, nil
	case models.RoleMember:
		return &EnterResult{Room: room, Role: models.RoleMember}, nil
	case models.RolePending:
		return &EnterResult{Room: room, Role: models.RolePending}, nil
	}

	req := models.PendingRequest{UID: uid, Name: scope.Identity.Name, RequestedAt: m.now()}
	if err := m.rooms.AddPending(ctx, room.RoomID, req); err != nil {
		return nil, fmt.Errorf("requesting access: %w", err)
	}
	room.Pending = append(room.Pending, req)
	fmt.Printf("[Rooms] %s requested access to %s\n", uid, room.RoomID)
	m.publish(room.RoomID)
	return &EnterResult{Room: room, Role: models.RolePending}, nil
}

// Approve moves a pending user into the allow-list. Owner only.
func (m *Manager) Approve(ctx context.Context, scope models.Scope, uid string) error {
	room, err := m.ownedRoom(ctx, scope)
	if err != nil {
		return err
	}
	if !room.IsPending(uid) {
		return fmt.Errorf("%w: %s", ErrNotPending, uid)
	}
	if err := m.rooms.AddAllowed(ctx, room.RoomID, uid); err != nil {
		return fmt.Errorf("approving %s: %w", uid, err)
	}
	fmt.Printf("[Rooms] %s approved in %s\n", uid, room.RoomID)
	m.publish(room.RoomID)
	return nil
}

// Reject drops a pending request. Owner only.
func (m *Manager) Reject(ctx context.Context, scope models.Scope, uid string) error {
	room, err := m.ownedRoom(ctx, scope)
	if err != nil {
		return err
	}
	if !room.IsPending(uid) {
		return fmt.Errorf("%w: %s", ErrNotPending, uid)
	}
	if err := m.rooms.RemovePending(ctx, room.RoomID, uid); err != nil {
		return fmt.Errorf("rejecting %s: %w", uid, err)
	}
	m.publish(room.RoomID)
	return nil
}

// Access describes the caller's standing in the scope.
type Access struct {
	Role     models.Role  `json:"role"`
	Approved bool         `json:"approved"`
	Room     *models.Room `json:"room,omitempty"`
}

// Access returns the caller's role. Local scopes are always approved.
func (m *Manager) Access(ctx context.Context, scope models.Scope) (*Access, error) {
	if !scope.Shared() {
		return &Access{Role: models.RoleOwner, Approved: true}, nil
	}
	room, err := m.getRoom(ctx, scope.RoomID)
	if errors.Is(err, ErrRoomNotFound) {
		return &Access{Role: models.RoleNone}, nil
	}
	if err != nil {
		return nil, err
	}
	role := room.RoleOf(scope.Identity.UID)
	return &Access{
		Role:     role,
		Approved: role == models.RoleOwner || role == models.RoleMember,
		Room:     room,
	}, nil
}

// CanEdit gates pin and metadata writes. A missing identity only blocks writes.
func (m *Manager) CanEdit(ctx context.Context, scope models.Scope) error {
	if !scope.Shared() {
		return nil
	}
	if scope.Identity.UID == "" {
		return ErrIdentityRequired
	}
	room, err := m.getRoom(ctx, scope.RoomID)
	if err != nil {
		return err
	}
	if !room.IsAllowed(scope.Identity.UID) {
		return ErrNotApproved
	}
	return nil
}

// CanView gates reads of a shared room's pins. Unapproved visitors see nothing.
func (m *Manager) CanView(ctx context.Context, scope models.Scope) error {
	return m.CanEdit(ctx, scope)
}

// RequireOwner gates owner-only operations. Local scopes belong to their user.
func (m *Manager) RequireOwner(ctx context.Context, scope models.Scope) error {
	if !scope.Shared() {
		return nil
	}
	_, err := m.ownedRoom(ctx, scope)
	return err
}

// RecentRooms lists the rooms the user belongs to, newest first.
func (m *Manager) RecentRooms(ctx context.Context, uid string, limit int) ([]models.RoomSummary, error) {
	if uid == "" {
		return nil, ErrIdentityRequired
	}
	rooms, err := m.rooms.RoomsForUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })

	now := m.now()
	out := []models.RoomSummary{}
	for _, r := range rooms {
		if !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, models.RoomSummary{RoomID: r.RoomID, Role: r.RoleOf(uid), ExpiresAt: r.ExpiresAt})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Manager) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := m.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	return room, nil
}

func (m *Manager) ownedRoom(ctx context.Context, scope models.Scope) (*models.Room, error) {
	if !scope.Shared() {
		return nil, ErrInvalidRoomID
	}
	if scope.Identity.UID == "" {
		return nil, ErrIdentityRequired
	}
	room, err := m.getRoom(ctx, scope.RoomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerUID != scope.Identity.UID {
		return nil, ErrNotOwner
	}
	return room, nil
}

func (m *Manager) publish(roomID string) {
	if m.publisher != nil {
		m.publisher.Publish(roomID, storage.ChangeRoom)
	}
}
