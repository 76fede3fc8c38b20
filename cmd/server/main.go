package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tactical-map/backend/internal/api"
	"github.com/tactical-map/backend/internal/catalog"
	"github.com/tactical-map/backend/internal/config"
	"github.com/tactical-map/backend/internal/gamedata"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/prefs"
	"github.com/tactical-map/backend/internal/realtime"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/storage"
	"github.com/tactical-map/backend/internal/sweep"
	"github.com/tactical-map/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := filepath.Join(filepath.Dir(exePath), config.FileName)
	if env := os.Getenv("TACTICAL_MAP_CONFIG"); env != "" {
		configPath = env
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	api.ShowErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local scopes always live in DuckDB.
	storage.DuckDBThreads = cfg.Advanced.DuckDBThreads
	local, err := storage.NewDuckStore(cfg.GetDatabasePath())
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer local.Close()

	// Shared rooms use Firestore when configured, DuckDB otherwise.
	var (
		shared   storage.Backend = local
		watcher  storage.Watcher
		verifier api.TokenVerifier
	)
	if cfg.FirebaseEnabled() {
		fb, err := storage.NewFirebase(ctx, cfg.Firebase.CredentialsJSON)
		if err != nil {
			fmt.Printf("Warning: firebase unavailable, rooms stay local: %v\n", err)
		} else {
			store := storage.NewFirestoreStore(fb.Firestore, cfg.Firebase.AppID)
			defer store.Close()
			shared = store
			watcher = store
			verifier = fb.Auth
		}
	}

	markers, err := catalog.NewRegistry(cfg.GetCustomMarkersPath())
	if err != nil {
		fmt.Printf("Failed to load custom markers: %v\n", err)
		os.Exit(1)
	}
	maps, err := catalog.LoadMaps(cfg.GetMapCatalogPath())
	if err != nil {
		fmt.Printf("Failed to load map catalog: %v\n", err)
		os.Exit(1)
	}
	gameData, err := gamedata.NewStore(cfg.GetGameDataPath())
	if err != nil {
		fmt.Printf("Warning: game data not loaded: %v\n", err)
		gameData, _ = gamedata.NewStore("")
	}

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(watcher)
	defer hub.Close()

	rooms := session.NewManager(shared,
		session.WithRoomTTL(cfg.Limits.RoomTTL()),
		session.WithPublisher(hub),
	)

	pinService := pins.NewService(pins.Config{
		Local:     local,
		Shared:    shared,
		Gate:      rooms,
		Markers:   markers,
		Maps:      maps,
		Publisher: hub,
		Limits: pins.Limits{
			CreateInterval: cfg.Limits.PinInterval(),
			MaxPinsPerRoom: cfg.Limits.MaxPinsPerRoom,
			MaxNoteLength:  cfg.Limits.NoteMaxLength,
			NoteInterval:   cfg.Limits.NoteInterval(),
			MaxImageBytes:  cfg.Limits.ImageMaxBytes,
			ImageInterval:  cfg.Limits.ImageInterval(),
			PinTTL:         cfg.Limits.PinTTL(),
		},
	})

	sweep.New(hub, time.Now, local, shared).Start(ctx, cfg.Processing.SweepInterval())

	// Start background presence cleanup
	go func() {
		interval := cfg.Processing.CleanupInterval()
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rooms.CleanupIdle(cfg.Processing.PresenceTimeout()); n > 0 {
					fmt.Printf("[Presence] Dropped %d idle connections\n", n)
				}
				pinService.PruneLimiters()
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/health" || path == "/api/ws"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/api/ws"
		},
		ErrorMessage: "Request timeout",
	}))

	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.Request().URL.Path == "/api/ws"
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderUserID, api.HeaderDisplayName},
		}))
	}

	prefService := prefs.NewService(prefs.Config{
		Store:        local,
		Markers:      markers,
		MaxIconBytes: cfg.Limits.ImageMaxBytes,
	})

	handlers := api.NewHandlers(&api.Dependencies{
		Rooms:          rooms,
		Pins:           pinService,
		Markers:        markers,
		Maps:           maps,
		Files:          fileStore,
		GameData:       gameData,
		Hub:            hub,
		Verifier:       verifier,
		Prefs:          prefService,
		Admins:         cfg.Advanced.Admins(),
		Version:        Version,
		LocalBackend:   local.Name(),
		SharedBackend:  shared.Name(),
		CompressPhotos: cfg.Processing.CompressPhotoAttachment,
		Snapshots: api.SnapshotOptions{
			Tolerance: float64(cfg.Processing.SnapshotCropTolerance),
			Padding:   cfg.Processing.SnapshotCropPaddingPx,
			Retain:    cfg.Processing.MaxSnapshotsRetained,
		},
		WSBufferSize:     cfg.Advanced.WebSocketBufferSize * 1024,
		WSMaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
	})
	api.RegisterRoutes(e, handlers, verifier)

	embeddedMode := web.HasEmbeddedFiles()
	if err := web.RegisterStaticRoutes(e, cfg.Storage.AssetsDirectory); err != nil {
		fmt.Printf("Warning: failed to register static routes: %v\n", err)
	} else if embeddedMode {
		fmt.Println("Serving embedded frontend from binary")
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	mode := "Local only"
	if shared != storage.Backend(local) {
		mode = "Shared rooms (" + shared.Name() + ")"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Tactical Map Server                             ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Server stopped: %v\n", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Shutdown error: %v\n", err)
	}
}
