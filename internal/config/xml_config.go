// Package config provides XML-based configuration with environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FileName is the default configuration file name.
const FileName = "TacticalMap.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"TacticalMap"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Firebase   FirebaseConfig   `xml:"Firebase"`
	Limits     LimitsConfig     `xml:"Limits"`
	Processing ProcessingConfig `xml:"Processing"`
	Advanced   AdvancedConfig   `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains local storage paths. Relative paths are resolved
// against the config file's directory, except the file names below which
// live inside DataDirectory.
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	DatabaseFile     string `xml:"DatabaseFile"`
	CustomMarkers    string `xml:"CustomMarkersFile"`
	MapCatalog       string `xml:"MapCatalogFile"`
	GameData         string `xml:"GameDataFile"`
	AssetsDirectory  string `xml:"AssetsDirectory"`
}

// FirebaseConfig controls the shared-room backend.
type FirebaseConfig struct {
	Enabled bool   `xml:"Enabled"`
	AppID   string `xml:"AppID"`
	// CredentialsEnv names the environment variable holding the service
	// account JSON.
	CredentialsEnv string `xml:"CredentialsEnv"`
	// CredentialsJSON is filled from CredentialsEnv and never written out.
	CredentialsJSON string `xml:"-"`
}

// LimitsConfig contains validation thresholds.
type LimitsConfig struct {
	PinIntervalMillis   int `xml:"PinIntervalMillis"`
	MaxPinsPerRoom      int `xml:"MaxPinsPerRoom"`
	NoteMaxLength       int `xml:"NoteMaxLength"`
	NoteIntervalMillis  int `xml:"NoteIntervalMillis"`
	ImageMaxBytes       int `xml:"ImageMaxBytes"`
	ImageIntervalMillis int `xml:"ImageIntervalMillis"`
	RoomTTLHours        int `xml:"RoomTTLHours"`
	PinTTLHours         int `xml:"PinTTLHours"`
}

// ProcessingConfig contains background job and response settings
type ProcessingConfig struct {
	SweepIntervalMinutes    int  `xml:"SweepIntervalMinutes"`
	PresenceTimeoutSeconds  int  `xml:"PresenceTimeoutSeconds"`
	CleanupIntervalSeconds  int  `xml:"CleanupIntervalSeconds"`
	EnableCompression       bool `xml:"EnableCompression"`
	CompressionLevel        int  `xml:"CompressionLevel"`
	SnapshotCropTolerance   int  `xml:"SnapshotCropTolerance"`
	SnapshotCropPaddingPx   int  `xml:"SnapshotCropPaddingPx"`
	MaxSnapshotsRetained    int  `xml:"MaxSnapshotsRetained"`
	CompressPhotoAttachment bool `xml:"CompressPhotoAttachments"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	DuckDBThreads           int    `xml:"DuckDBThreads"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
	WebSocketBufferSize     int    `xml:"WebSocketBufferSizeKB"`
	AdminUsers              string `xml:"AdminUsers"` // comma-separated uids allowed to reload game data
}

// Admins returns the configured admin uids.
func (a AdvancedConfig) Admins() []string {
	var out []string
	for _, uid := range strings.Split(a.AdminUsers, ",") {
		if uid = strings.TrimSpace(uid); uid != "" {
			out = append(out, uid)
		}
	}
	return out
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "8M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			DatabaseFile:     "tacticalmap.duckdb",
			CustomMarkers:    "markers.yaml",
			MapCatalog:       "maps.yaml",
			GameData:         "gamedata.json",
			AssetsDirectory:  "./data/assets",
		},
		Firebase: FirebaseConfig{
			Enabled:        true,
			AppID:          "tactical-map",
			CredentialsEnv: "GOOGLE_APPLICATION_CREDENTIALS_JSON",
		},
		Limits: LimitsConfig{
			PinIntervalMillis:   1000,
			MaxPinsPerRoom:      1500,
			NoteMaxLength:       300,
			NoteIntervalMillis:  500,
			ImageMaxBytes:       400000,
			ImageIntervalMillis: 2000,
			RoomTTLHours:        24 * 7,
			PinTTLHours:         0,
		},
		Processing: ProcessingConfig{
			SweepIntervalMinutes:    15,
			PresenceTimeoutSeconds:  120,
			CleanupIntervalSeconds:  60,
			EnableCompression:       true,
			CompressionLevel:        5,
			SnapshotCropTolerance:   12,
			SnapshotCropPaddingPx:   8,
			MaxSnapshotsRetained:    50,
			CompressPhotoAttachment: true,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			DuckDBThreads:           2,
			WebSocketMaxMessageSize: 512,
			WebSocketBufferSize:     4,
		},
	}
}

// LoadConfig loads configuration from an XML file, creating it with defaults
// when missing. A .env file in the working directory is loaded first so
// its values take part in the environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("[Config] Ignoring .env: %v\n", err)
	}

	config := DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// FromEnvironment returns the defaults with environment overrides applied,
// for deployments without a config file.
func FromEnvironment() *AppConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("[Config] Ignoring .env: %v\n", err)
	}
	config := DefaultConfig()
	config.applyEnvironmentOverrides()
	return config
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Tactical Map Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.AssetsDirectory = filepath.Join(dataDir, "assets")
	}

	if appID := os.Getenv("FIREBASE_APP_ID"); appID != "" {
		c.Firebase.AppID = appID
	}

	if c.Firebase.CredentialsEnv != "" {
		c.Firebase.CredentialsJSON = strings.TrimSpace(os.Getenv(c.Firebase.CredentialsEnv))
	}

	if admins := os.Getenv("ADMIN_USERS"); admins != "" {
		c.Advanced.AdminUsers = admins
	}

	if v, err := strconv.ParseBool(os.Getenv("DISABLE_FIREBASE")); err == nil && v {
		c.Firebase.Enabled = false
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.AssetsDirectory) {
		c.Storage.AssetsDirectory = filepath.Join(configDir, c.Storage.AssetsDirectory)
	}
}

func (c *AppConfig) inDataDir(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Storage.DataDirectory, name)
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetDatabasePath returns the DuckDB file path. Empty means in-memory.
func (c *AppConfig) GetDatabasePath() string {
	return c.inDataDir(c.Storage.DatabaseFile)
}

// GetCustomMarkersPath returns the custom marker YAML path.
func (c *AppConfig) GetCustomMarkersPath() string {
	return c.inDataDir(c.Storage.CustomMarkers)
}

// GetMapCatalogPath returns the map catalog overlay path.
func (c *AppConfig) GetMapCatalogPath() string {
	return c.inDataDir(c.Storage.MapCatalog)
}

// GetGameDataPath returns the game-data JSON path.
func (c *AppConfig) GetGameDataPath() string {
	return c.inDataDir(c.Storage.GameData)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// FirebaseEnabled reports whether the shared backend should be attempted.
func (c *AppConfig) FirebaseEnabled() bool {
	return c.Firebase.Enabled && c.Firebase.CredentialsJSON != ""
}

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func hours(n int) time.Duration { return time.Duration(n) * time.Hour }

// PinInterval is the minimum time between pin creations per user and room.
func (l LimitsConfig) PinInterval() time.Duration { return millis(l.PinIntervalMillis) }

// NoteInterval is the minimum time between note edits.
func (l LimitsConfig) NoteInterval() time.Duration { return millis(l.NoteIntervalMillis) }

// ImageInterval is the minimum time between image uploads.
func (l LimitsConfig) ImageInterval() time.Duration { return millis(l.ImageIntervalMillis) }

// RoomTTL is the soft lifetime of a room.
func (l LimitsConfig) RoomTTL() time.Duration { return hours(l.RoomTTLHours) }

// PinTTL is the soft lifetime of a pin. Zero disables pin expiry.
func (l LimitsConfig) PinTTL() time.Duration { return hours(l.PinTTLHours) }

// SweepInterval returns how often expired data is removed.
func (p ProcessingConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMinutes) * time.Minute
}

// PresenceTimeout returns how long a silent connection counts as online.
func (p ProcessingConfig) PresenceTimeout() time.Duration {
	return time.Duration(p.PresenceTimeoutSeconds) * time.Second
}

// CleanupInterval returns how often presence entries are pruned.
func (p ProcessingConfig) CleanupInterval() time.Duration {
	return time.Duration(p.CleanupIntervalSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.AssetsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
