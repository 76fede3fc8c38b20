// interfaces.go - Handler and dependency interfaces for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/gamedata"
	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/session"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// CatalogHandler serves the marker and map catalogs
type CatalogHandler interface {
	HandleGetMarkers(c echo.Context) error
	HandleResolveMarker(c echo.Context) error
	HandleAddMarker(c echo.Context) error
	HandleRemoveMarker(c echo.Context) error
	HandleGetMaps(c echo.Context) error
}

// SessionHandler resolves sessions and runs the room protocol
type SessionHandler interface {
	HandleGetSession(c echo.Context) error
	HandleCreateRoom(c echo.Context) error
	HandleJoinRoom(c echo.Context) error
	HandleRoomAccess(c echo.Context) error
	HandleApprove(c echo.Context) error
	HandleReject(c echo.Context) error
	HandleRecentRooms(c echo.Context) error
	HandleOnline(c echo.Context) error
}

// PinHandler handles pin operations
type PinHandler interface {
	HandleListPins(c echo.Context) error
	HandleListPinsMsgpack(c echo.Context) error
	HandleGetPin(c echo.Context) error
	HandleAddPin(c echo.Context) error
	HandleUpdateNote(c echo.Context) error
	HandleUpdateImage(c echo.Context) error
	HandleUpdateIcon(c echo.Context) error
	HandleDeletePin(c echo.Context) error
	HandleMarkPin(c echo.Context) error
	HandleUnmarkPin(c echo.Context) error
	HandleMarkedPins(c echo.Context) error
	HandleBulkDelete(c echo.Context) error
	HandlePurge(c echo.Context) error
}

// MapMetaHandler handles per-map metadata and profiles
type MapMetaHandler interface {
	HandleGetMeta(c echo.Context) error
	HandleUpdateMeta(c echo.Context) error
	HandleAddProfile(c echo.Context) error
	HandleRemoveProfile(c echo.Context) error
	HandleSetBackground(c echo.Context) error
	HandleGetBackground(c echo.Context) error
}

// FileHandler handles stored background images and snapshots
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDownloadFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleCreateSnapshot(c echo.Context) error
}

// PrefsHandler handles per-user marker customizations
type PrefsHandler interface {
	HandleGetPrefs(c echo.Context) error
	HandleSetIcon(c echo.Context) error
	HandleClearIcon(c echo.Context) error
	HandleAddLibraryIcon(c echo.Context) error
	HandleRemoveLibraryIcon(c echo.Context) error
}

// GameDataHandler serves the companion game-data cards
type GameDataHandler interface {
	HandleGetCards(c echo.Context) error
	HandleGetDataset(c echo.Context) error
	HandleReload(c echo.Context) error
}

// RoomController defines the room protocol used by the handlers.
// This allows mocking in tests
type RoomController interface {
	Enter(ctx context.Context, scope models.Scope, create bool) (*session.EnterResult, error)
	Approve(ctx context.Context, scope models.Scope, uid string) error
	Reject(ctx context.Context, scope models.Scope, uid string) error
	Access(ctx context.Context, scope models.Scope) (*session.Access, error)
	CanView(ctx context.Context, scope models.Scope) error
	RecentRooms(ctx context.Context, uid string, limit int) ([]models.RoomSummary, error)
	Join(roomID, uid string)
	Touch(roomID, uid string)
	Leave(roomID, uid string)
	Online(roomID string) []string
}

// PinService defines the pin store used by the handlers.
type PinService interface {
	Limits() pins.Limits
	List(ctx context.Context, scope models.Scope, f pins.Filter) ([]models.Pin, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.Pin, error)
	Add(ctx context.Context, scope models.Scope, in pins.AddInput) (*models.Pin, error)
	UpdateNote(ctx context.Context, scope models.Scope, id, note string) error
	UpdateImage(ctx context.Context, scope models.Scope, id, dataURL string) error
	UpdateIcon(ctx context.Context, scope models.Scope, id, iconURL string) error
	Delete(ctx context.Context, scope models.Scope, id string) error
	Mark(ctx context.Context, scope models.Scope, id string) error
	Unmark(ctx context.Context, scope models.Scope, id string) error
	Marked(ctx context.Context, scope models.Scope) ([]string, error)
	DeleteAll(ctx context.Context, scope models.Scope, confirm string) (*pins.BulkResult, error)
	DeleteByType(ctx context.Context, scope models.Scope, markerType, confirm string) (*pins.BulkResult, error)
	PurgeRoom(ctx context.Context, scope models.Scope, confirm string) (*pins.BulkResult, error)
	Meta(ctx context.Context, scope models.Scope, mapID string) (*models.MapMeta, error)
	ResolveProfile(ctx context.Context, scope models.Scope, mapID, profile string) (string, error)
	AddProfile(ctx context.Context, scope models.Scope, mapID, name string) (*models.MapMeta, error)
	RemoveProfile(ctx context.Context, scope models.Scope, mapID, name string) (*models.MapMeta, error)
	UpdateMeta(ctx context.Context, scope models.Scope, mapID string, u pins.MetaUpdate) (*models.MapMeta, error)
	SetBackground(ctx context.Context, scope models.Scope, mapID, layerID, fileID string) (*models.MapMeta, error)
}

// MarkerRegistry is the merged marker catalog.
type MarkerRegistry interface {
	All() []models.Marker
	Custom() []models.Marker
	Resolve(id string) models.Marker
	AddCustom(label, category, icon, createdBy string) (models.Marker, error)
	RemoveCustom(id, uid string) error
}

// MapCatalog lists the available maps.
type MapCatalog interface {
	List() []models.MapDef
	Get(id string) (models.MapDef, bool)
	ValidLayer(mapID, layerID string) bool
	DefaultLayer(mapID string) string
	BackgroundURL(mapID, layerID string) string
}

// GameDataStore serves the game-data dataset.
type GameDataStore interface {
	Dataset() *gamedata.Dataset
	Cards(q gamedata.Query) []gamedata.Card
	Reload() error
}

// ChangeHub fans change notifications out to the live clients of a scope.
type ChangeHub interface {
	Subscribe(scope string) (<-chan string, func())
	Publish(scope, kind string)
}

// PrefsService stores per-user marker customizations.
type PrefsService interface {
	Get(ctx context.Context, uid string) (*models.UserPrefs, error)
	SetIcon(ctx context.Context, uid, markerType, url string) (*models.UserPrefs, error)
	ClearIcon(ctx context.Context, uid, markerType string) (*models.UserPrefs, error)
	AddIcon(ctx context.Context, uid, name, url string) (*models.IconEntry, error)
	RemoveIcon(ctx context.Context, uid, id string) (*models.UserPrefs, error)
}
