package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "DATA_DIR", "FIREBASE_APP_ID", "GOOGLE_APPLICATION_CREDENTIALS_JSON", "DISABLE_FIREBASE", "ADMIN_USERS"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.GetDataDir())
	assert.Equal(t, filepath.Join(dir, "data", "tacticalmap.duckdb"), cfg.GetDatabasePath())
	assert.Equal(t, filepath.Join(dir, "data", "markers.yaml"), cfg.GetCustomMarkersPath())
	assert.False(t, cfg.FirebaseEnabled())
	assert.Equal(t, []string{"root", "ops"}, cfg.Advanced.Admins())
}

func TestLoadConfig_ReadsFileOverDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<TacticalMap>
  <Server><Port>9000</Port><BindAddress>127.0.0.1</BindAddress></Server>
  <Limits><MaxPinsPerRoom>20</MaxPinsPerRoom><PinIntervalMillis>250</PinIntervalMillis></Limits>
</TacticalMap>`
	require.NoError(t, os.WriteFile(path, []byte(xml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddr())
	assert.Equal(t, 20, cfg.Limits.MaxPinsPerRoom)
	assert.Equal(t, 250*time.Millisecond, cfg.Limits.PinInterval())
	assert.Equal(t, 300, cfg.Limits.NoteMaxLength)
	assert.Equal(t, 7*24*time.Hour, cfg.Limits.RoomTTL())
	assert.Equal(t, time.Duration(0), cfg.Limits.PinTTL())
}

func TestLoadConfig_InvalidXML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("<TacticalMap><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	t.Setenv("PORT", "7070")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("FIREBASE_APP_ID", "my-app")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ` {"type":"service_account"} `)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.GetDataDir())
	assert.Equal(t, filepath.Join(dataDir, "uploads"), cfg.GetUploadDir())
	assert.Equal(t, "my-app", cfg.Firebase.AppID)
	assert.Equal(t, `{"type":"service_account"}`, cfg.Firebase.CredentialsJSON)
	assert.True(t, cfg.FirebaseEnabled())

	assert.Empty(t, cfg.Advanced.Admins())

	t.Setenv("ADMIN_USERS", " root, ops ,,")
	t.Setenv("DISABLE_FIREBASE", "true")
	cfg, err = LoadConfig(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.False(t, cfg.FirebaseEnabled())
}

func TestFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIREBASE_APP_ID", "lambda-app")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)

	cfg := FromEnvironment()
	assert.Equal(t, "lambda-app", cfg.Firebase.AppID)
	assert.True(t, cfg.FirebaseEnabled())
	assert.Equal(t, 168*time.Hour, cfg.Limits.RoomTTL())
}

func TestSave_OmitsCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Firebase.CredentialsJSON = "secret"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), "<CredentialsEnv>GOOGLE_APPLICATION_CREDENTIALS_JSON</CredentialsEnv>")
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)
	require.NoError(t, cfg.EnsureDirectories())

	for _, d := range []string{cfg.GetDataDir(), cfg.GetUploadDir(), cfg.Storage.AssetsDirectory} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
