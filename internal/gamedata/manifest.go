package gamedata

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path"
	"strings"
)

// AssetCategories are the asset subdirectories that are indexed.
var AssetCategories = []string{"weapons", "items", "maps", "arcs"}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".gif": true, ".avif": true, ".svg": true,
}

// Asset is one indexed image file. Width and Height are nil for formats
// whose size cannot be read.
type Asset struct {
	Category string `json:"category"`
	RelPath  string `json:"rel_path"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Width    *int   `json:"width"`
	Height   *int   `json:"height"`
	Name     string `json:"name"`
}

// IsImage reports whether name has an indexed image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

// ScanAssets indexes the image files below each category directory of fsys.
// Missing categories are skipped.
func ScanAssets(fsys fs.FS) ([]Asset, error) {
	assets := []Asset{}
	for _, cat := range AssetCategories {
		err := fs.WalkDir(fsys, cat, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == cat && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				return err
			}
			if d.IsDir() || !IsImage(d.Name()) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			name := d.Name()
			a := Asset{
				Category: cat,
				RelPath:  cat + "/" + name,
				FileName: name,
				FileSize: info.Size(),
				Name:     strings.TrimSuffix(name, path.Ext(name)),
			}
			if w, h, ok := imageSize(fsys, p); ok {
				a.Width, a.Height = &w, &h
			}
			assets = append(assets, a)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", cat, err)
		}
	}
	return assets, nil
}

// ScanAssetDir indexes dir on the local filesystem.
func ScanAssetDir(dir string) ([]Asset, error) {
	return ScanAssets(os.DirFS(dir))
}

func imageSize(fsys fs.FS, p string) (int, int, bool) {
	f, err := fsys.Open(p)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// SeedItems appends an item row for every item asset not yet referenced by
// an item's image_rel and returns how many were added. The row id is the
// file stem.
func SeedItems(ds *Dataset, assets []Asset) int {
	have := make(map[string]bool, len(ds.Items))
	for _, it := range ds.Items {
		if rel := it["image_rel"]; rel != "" {
			have[rel] = true
		}
	}
	added := 0
	for _, a := range assets {
		if a.Category != "items" || have[a.RelPath] {
			continue
		}
		ds.Items = append(ds.Items, Row{
			"id":        a.Name,
			"name_ja":   "",
			"name_en":   "",
			"image_rel": a.RelPath,
		})
		have[a.RelPath] = true
		added++
	}
	return added
}
