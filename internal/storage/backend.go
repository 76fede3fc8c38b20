package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tactical-map/backend/internal/models"
)

var (
	// ErrNotFound is returned when a pin, room or metadata document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by CreateRoom when the room id is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// PinStore persists pins per scope key (a room id or a local namespace).
// Writes to the same pin are last-writer-wins.
type PinStore interface {
	ListPins(ctx context.Context, scope string) ([]models.Pin, error)
	GetPin(ctx context.Context, scope, id string) (*models.Pin, error)
	// CreatePin stores pin and returns its id, assigning one when pin.ID is empty.
	CreatePin(ctx context.Context, scope string, pin *models.Pin) (string, error)
	UpdatePin(ctx context.Context, scope, id string, patch models.PinPatch) error
	DeletePin(ctx context.Context, scope, id string) error
	// DeletePins removes the given pins best-effort and reports how many were
	// deleted. A failure part-way leaves the earlier deletions in place.
	DeletePins(ctx context.Context, scope string, ids []string) (int, error)
	CountPins(ctx context.Context, scope string) (int, error)
	DeleteExpiredPins(ctx context.Context, before time.Time) (int, error)
}

// RoomStore persists room documents. Each method touches a single document.
type RoomStore interface {
	// CreateRoom writes room if no room with the same id exists, else ErrAlreadyExists.
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// AddAllowed adds uid to the allow-list and drops its pending request.
	AddAllowed(ctx context.Context, roomID, uid string) error
	// AddPending records a join request, replacing an earlier one from the same uid.
	AddPending(ctx context.Context, roomID string, req models.PendingRequest) error
	RemovePending(ctx context.Context, roomID, uid string) error
	DeleteRoom(ctx context.Context, roomID string) error
	// RoomsForUser returns rooms whose allow-list contains uid.
	RoomsForUser(ctx context.Context, uid string) ([]models.Room, error)
	ExpiredRooms(ctx context.Context, before time.Time) ([]string, error)
}

// MetaStore persists per-map metadata per scope key.
type MetaStore interface {
	GetMapMeta(ctx context.Context, scope, mapID string) (*models.MapMeta, error)
	PutMapMeta(ctx context.Context, scope string, meta *models.MapMeta) error
	DeleteMapMeta(ctx context.Context, scope string) (int, error)
}

// PrefStore persists per-user preferences.
type PrefStore interface {
	GetPrefs(ctx context.Context, uid string) (*models.UserPrefs, error)
	PutPrefs(ctx context.Context, prefs *models.UserPrefs) error
}

// Backend is a complete persistence adapter.
type Backend interface {
	PinStore
	RoomStore
	MetaStore
	Name() string
	Close() error
}

// Change kinds reported by a Watcher.
const (
	ChangePins = "pins"
	ChangeRoom = "room"
	ChangeMeta = "meta"
)

// Watcher is implemented by backends that can observe writes made by other
// processes. WatchScope blocks until ctx is done, calling onChange for every
// remote change to the scope's pins, room or metadata.
type Watcher interface {
	WatchScope(ctx context.Context, scope string, onChange func(kind string)) error
}
