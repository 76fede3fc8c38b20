// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Rooms    RoomController
	Pins     PinService
	Markers  MarkerRegistry
	Maps     MapCatalog
	Files    storage.FileStore
	GameData GameDataStore
	Hub      ChangeHub
	Verifier TokenVerifier
	Prefs    PrefsService
	Admins   []string // uids allowed to run maintenance endpoints

	Version        string
	LocalBackend   string
	SharedBackend  string
	CompressPhotos bool
	Snapshots      SnapshotOptions

	WSBufferSize     int
	WSMaxMessageSize int64
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Catalog   CatalogHandler
	Session   SessionHandler
	Pins      PinHandler
	Meta      MapMetaHandler
	Files     FileHandler
	GameData  GameDataHandler
	Prefs     PrefsHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	authMode := "header"
	if deps.Verifier != nil {
		authMode = "firebase"
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.LocalBackend, deps.SharedBackend, authMode),
		Catalog:   NewCatalogHandler(deps.Markers, deps.Maps),
		Session:   NewSessionHandler(deps.Rooms, deps.Pins, deps.Maps),
		Pins:      NewPinHandler(deps.Pins, deps.CompressPhotos),
		Meta:      NewMapMetaHandler(deps.Pins, deps.Maps, deps.Files),
		Files:     NewFileHandler(deps.Files, deps.Snapshots),
		GameData:  NewGameDataHandler(deps.GameData, deps.Admins...),
		Prefs:     NewPrefsHandler(deps.Prefs),
		WebSocket: NewWebSocketHandler(deps.Rooms, deps.Pins, deps.Hub, deps.WSBufferSize, deps.WSMaxMessageSize),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers, verifier TokenVerifier) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	api := e.Group("/api", IdentityMiddleware(verifier))

	// Catalogs
	api.GET("/markers", handlers.Catalog.HandleGetMarkers)
	api.GET("/markers/:id", handlers.Catalog.HandleResolveMarker)
	api.POST("/markers", handlers.Catalog.HandleAddMarker)
	api.DELETE("/markers/:id", handlers.Catalog.HandleRemoveMarker)
	api.GET("/maps", handlers.Catalog.HandleGetMaps)

	// Per-user marker customizations
	prefsGroup := api.Group("/prefs")
	prefsGroup.GET("", handlers.Prefs.HandleGetPrefs)
	prefsGroup.PUT("/icons/:type", handlers.Prefs.HandleSetIcon)
	prefsGroup.DELETE("/icons/:type", handlers.Prefs.HandleClearIcon)
	prefsGroup.POST("/library", handlers.Prefs.HandleAddLibraryIcon)
	prefsGroup.DELETE("/library/:id", handlers.Prefs.HandleRemoveLibraryIcon)

	// Session and rooms
	api.GET("/session", handlers.Session.HandleGetSession)
	roomGroup := api.Group("/rooms")
	roomGroup.POST("", handlers.Session.HandleCreateRoom)
	roomGroup.GET("/recent", handlers.Session.HandleRecentRooms)
	roomGroup.POST("/:room/join", handlers.Session.HandleJoinRoom)
	roomGroup.GET("/:room/access", handlers.Session.HandleRoomAccess)
	roomGroup.POST("/:room/approve", handlers.Session.HandleApprove)
	roomGroup.POST("/:room/reject", handlers.Session.HandleReject)
	roomGroup.GET("/:room/online", handlers.Session.HandleOnline)

	// Pins, scoped by ?room=
	pinGroup := api.Group("/pins")
	pinGroup.GET("", handlers.Pins.HandleListPins)
	pinGroup.GET("/msgpack", handlers.Pins.HandleListPinsMsgpack)
	pinGroup.POST("", handlers.Pins.HandleAddPin)
	pinGroup.GET("/marked", handlers.Pins.HandleMarkedPins)
	pinGroup.POST("/bulk-delete", handlers.Pins.HandleBulkDelete)
	pinGroup.POST("/purge", handlers.Pins.HandlePurge)
	pinGroup.GET("/:id", handlers.Pins.HandleGetPin)
	pinGroup.DELETE("/:id", handlers.Pins.HandleDeletePin)
	pinGroup.PATCH("/:id/note", handlers.Pins.HandleUpdateNote)
	pinGroup.PUT("/:id/image", handlers.Pins.HandleUpdateImage)
	pinGroup.PUT("/:id/icon", handlers.Pins.HandleUpdateIcon)
	pinGroup.POST("/:id/mark", handlers.Pins.HandleMarkPin)
	pinGroup.DELETE("/:id/mark", handlers.Pins.HandleUnmarkPin)

	// Per-map metadata, scoped by ?room=
	mapGroup := api.Group("/maps/:map")
	mapGroup.GET("/meta", handlers.Meta.HandleGetMeta)
	mapGroup.PATCH("/meta", handlers.Meta.HandleUpdateMeta)
	mapGroup.POST("/profiles", handlers.Meta.HandleAddProfile)
	mapGroup.DELETE("/profiles/:profile", handlers.Meta.HandleRemoveProfile)
	mapGroup.GET("/background", handlers.Meta.HandleGetBackground)
	mapGroup.PUT("/background", handlers.Meta.HandleSetBackground)

	// Stored files
	fileGroup := api.Group("/files")
	fileGroup.POST("", handlers.Files.HandleUploadFile)
	fileGroup.GET("", handlers.Files.HandleListFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.GET("/:id/download", handlers.Files.HandleDownloadFile)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	api.POST("/snapshots", handlers.Files.HandleCreateSnapshot)

	// Game data
	dataGroup := api.Group("/gamedata")
	dataGroup.GET("/cards", handlers.GameData.HandleGetCards)
	dataGroup.GET("/dataset", handlers.GameData.HandleGetDataset)
	dataGroup.POST("/reload", handlers.GameData.HandleReload)

	// Live sync
	api.GET("/ws", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
