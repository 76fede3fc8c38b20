// Command builddata converts the game-data CSV tables into the JSON dataset
// served by the server, optionally seeding items from an asset directory and
// writing an asset manifest.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tactical-map/backend/internal/gamedata"
)

func main() {
	csvDir := flag.String("csv", "data/csv", "directory holding the table CSVs")
	out := flag.String("out", "data/gamedata.json", "dataset output path")
	assetsDir := flag.String("assets", "", "asset directory to scan (optional)")
	manifest := flag.String("manifest", "", "asset manifest output path (optional, needs -assets)")
	flag.Parse()

	if err := run(*csvDir, *out, *assetsDir, *manifest); err != nil {
		fmt.Printf("builddata: %v\n", err)
		os.Exit(1)
	}
}

func run(csvDir, out, assetsDir, manifest string) error {
	ds, err := gamedata.LoadCSVDir(csvDir)
	if err != nil {
		return fmt.Errorf("loading CSVs: %w", err)
	}
	fmt.Printf("Loaded %d weapons, %d levels, %d items, %d arcs, %d drops\n",
		len(ds.Weapons), len(ds.WeaponLevels), len(ds.Items), len(ds.Arcs), len(ds.ArcDrops))

	if assetsDir != "" {
		assets, err := gamedata.ScanAssetDir(assetsDir)
		if err != nil {
			return fmt.Errorf("scanning assets: %w", err)
		}
		fmt.Printf("Indexed %d assets, seeded %d items\n", len(assets), gamedata.SeedItems(ds, assets))

		if manifest != "" {
			if err := writeJSON(manifest, assets); err != nil {
				return fmt.Errorf("writing manifest: %w", err)
			}
			fmt.Printf("Wrote %s\n", manifest)
		}
	}

	if err := gamedata.Save(out, ds); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	fmt.Printf("Wrote %s\n", out)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
