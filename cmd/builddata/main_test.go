package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactical-map/backend/internal/gamedata"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	csvDir := filepath.Join(dir, "csv")
	require.NoError(t, os.MkdirAll(csvDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, "weapons.csv"), []byte("id,name_en\nw1,Rifle\n"), 0644))

	assetsDir := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(filepath.Join(assetsDir, "items"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "items", "battery.svg"), []byte("<svg/>"), 0644))

	out := filepath.Join(dir, "out", "gamedata.json")
	manifest := filepath.Join(dir, "out", "manifest.json")
	require.NoError(t, run(csvDir, out, assetsDir, manifest))

	ds, err := gamedata.Load(out)
	require.NoError(t, err)
	assert.Len(t, ds.Weapons, 1)
	require.Len(t, ds.Items, 1)
	assert.Equal(t, "battery", ds.Items[0]["id"])

	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	var assets []gamedata.Asset
	require.NoError(t, json.Unmarshal(data, &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, "items", assets[0].Category)
}

func TestRun_MissingCSV(t *testing.T) {
	err := run(t.TempDir(), filepath.Join(t.TempDir(), "gamedata.json"), "", "")
	assert.ErrorIs(t, err, gamedata.ErrNoSource)
}
