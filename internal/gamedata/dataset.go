// Package gamedata loads the companion game-data tables (weapons, enemies,
// items) and turns them into browsable cards.
package gamedata

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoSource is returned when none of the table CSVs exist.
var ErrNoSource = errors.New("no game-data CSV files found")

// SourceCSV marks datasets built from CSV files.
const SourceCSV = "csv"

// Row is one table row keyed by column header.
type Row map[string]string

// Name returns the Japanese name, else the English name, else the id.
func (r Row) Name() string {
	for _, key := range []string{"name_ja", "name_en", "id"} {
		if v := strings.TrimSpace(r[key]); v != "" {
			return v
		}
	}
	return ""
}

// Meta describes where a dataset came from.
type Meta struct {
	Source string `json:"source"`
}

// Dataset holds every table.
type Dataset struct {
	Weapons      []Row `json:"weapons"`
	WeaponLevels []Row `json:"weapon_levels"`
	Items        []Row `json:"items"`
	Arcs         []Row `json:"arcs"`
	ArcDrops     []Row `json:"arc_drops"`
	Meta         Meta  `json:"meta"`
}

// Empty returns a dataset with no rows.
func Empty() *Dataset {
	return &Dataset{
		Weapons:      []Row{},
		WeaponLevels: []Row{},
		Items:        []Row{},
		Arcs:         []Row{},
		ArcDrops:     []Row{},
	}
}

// tables maps each CSV base name to its slot in a Dataset.
var tables = []struct {
	file string
	slot func(*Dataset) *[]Row
}{
	{"weapons.csv", func(d *Dataset) *[]Row { return &d.Weapons }},
	{"weaponlevels.csv", func(d *Dataset) *[]Row { return &d.WeaponLevels }},
	{"items.csv", func(d *Dataset) *[]Row { return &d.Items }},
	{"arcs.csv", func(d *Dataset) *[]Row { return &d.Arcs }},
	{"arcdrops.csv", func(d *Dataset) *[]Row { return &d.ArcDrops }},
}

// LoadCSVDir reads the table CSVs from dir. Missing tables are left empty;
// ErrNoSource is returned when every table is missing.
func LoadCSVDir(dir string) (*Dataset, error) {
	ds := Empty()
	found := 0
	for _, t := range tables {
		path := filepath.Join(dir, t.file)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rows, err := ReadCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.file, err)
		}
		*t.slot(ds) = rows
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSource, dir)
	}
	ds.Meta.Source = SourceCSV
	return ds, nil
}

// ReadCSV parses a headed CSV table. A UTF-8 BOM is stripped and rows whose
// cells are all blank are skipped.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := []Row{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Load reads a dataset JSON file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds := Empty()
	if err := json.Unmarshal(data, ds); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return ds, nil
}

// Save writes ds as indented JSON, creating parent directories.
func Save(path string, ds *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Store serves a dataset loaded from disk and can reload it.
type Store struct {
	mu   sync.RWMutex
	path string
	ds   *Dataset
}

// NewStore loads path. A missing file yields an empty dataset.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, ds: Empty()}
	if err := s.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the dataset file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	ds, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ds = ds
	s.mu.Unlock()
	fmt.Printf("[GameData] Loaded %d weapons, %d arcs, %d items from %s\n",
		len(ds.Weapons), len(ds.Arcs), len(ds.Items), s.path)
	return nil
}

// Dataset returns the current dataset. Callers must not modify it.
func (s *Store) Dataset() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// Cards builds the cards matching q from the current dataset.
func (s *Store) Cards(q Query) []Card {
	return Cards(s.Dataset(), q)
}
