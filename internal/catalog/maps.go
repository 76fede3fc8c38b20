package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tactical-map/backend/internal/models"
)

var baseMaps = []models.MapDef{
	{ID: "dam", Name: "Dam Battlegrounds", Width: 2000, Height: 2000, DefaultURL: "/maps/dam.jpg", BgColor: "#1a1d21", GridColor: "#2a2e33"},
	{ID: "spaceport", Name: "Spaceport", Width: 2400, Height: 1600, DefaultURL: "/maps/spaceport.jpg", BgColor: "#161b22", GridColor: "#1f2937"},
	{ID: "buried", Name: "Buried City", Width: 2000, Height: 2000, DefaultURL: "/maps/buried.jpg", BgColor: "#1f1a16", GridColor: "#332b25"},
	{ID: "bluegate", Name: "Blue Gate", Width: 2400, Height: 1600, DefaultURL: "/maps/bluegate.jpg", BgColor: "#1e293b", GridColor: "#334155"},
	{
		ID: "stella", Name: "Stella Montis", Width: 2400, Height: 1600, BgColor: "#0f172a", GridColor: "#1e293b",
		Layers: []models.Layer{
			{ID: "upper", Name: "Surface (Facility)", DefaultURL: "/maps/stella_upper.jpg"},
			{ID: "lower", Name: "Underground (Metro)", DefaultURL: "/maps/stella_lower.jpg"},
		},
	},
}

// DefaultMapID is the map shown when none is requested.
const DefaultMapID = "dam"

// Maps is an ordered, read-only map registry.
type Maps struct {
	list []models.MapDef
	byID map[string]int
}

type mapsFile struct {
	Maps []models.MapDef `yaml:"maps"`
}

// NewMaps returns the built-in map registry.
func NewMaps() *Maps {
	m := &Maps{byID: make(map[string]int)}
	for _, def := range baseMaps {
		m.put(def)
	}
	return m
}

// LoadMaps returns the built-in registry with the maps of an optional YAML
// overlay applied. Overlay entries replace built-in maps with the same id and
// append new ones. A missing file is not an error.
func LoadMaps(path string) (*Maps, error) {
	m := NewMaps()
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading map catalog: %w", err)
	}

	var f mapsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing map catalog: %w", err)
	}
	for _, def := range f.Maps {
		if err := validateMap(def); err != nil {
			return nil, fmt.Errorf("map %q: %w", def.ID, err)
		}
		m.put(def)
	}
	fmt.Printf("[Catalog] Loaded %d map overrides from %s\n", len(f.Maps), path)
	return m, nil
}

func validateMap(def models.MapDef) error {
	if def.ID == "" {
		return fmt.Errorf("missing id")
	}
	if def.Width <= 0 || def.Height <= 0 {
		return fmt.Errorf("invalid dimensions %vx%v", def.Width, def.Height)
	}
	seen := make(map[string]bool)
	for _, l := range def.Layers {
		if l.ID == "" || seen[l.ID] {
			return fmt.Errorf("invalid layer id %q", l.ID)
		}
		seen[l.ID] = true
	}
	return nil
}

func (m *Maps) put(def models.MapDef) {
	if i, ok := m.byID[def.ID]; ok {
		m.list[i] = def
		return
	}
	m.byID[def.ID] = len(m.list)
	m.list = append(m.list, def)
}

// List returns the maps in display order.
func (m *Maps) List() []models.MapDef {
	out := make([]models.MapDef, len(m.list))
	copy(out, m.list)
	return out
}

// Get looks up a map by id.
func (m *Maps) Get(id string) (models.MapDef, bool) {
	i, ok := m.byID[id]
	if !ok {
		return models.MapDef{}, false
	}
	return m.list[i], true
}

// ValidLayer reports whether layerID is a valid selection for the map:
// one of its layers for layered maps, empty otherwise.
func (m *Maps) ValidLayer(mapID, layerID string) bool {
	def, ok := m.Get(mapID)
	if !ok {
		return false
	}
	if !def.HasLayers() {
		return layerID == ""
	}
	for _, l := range def.Layers {
		if l.ID == layerID {
			return true
		}
	}
	return false
}

// DefaultLayer returns the layer selected after switching to the map.
func (m *Maps) DefaultLayer(mapID string) string {
	def, ok := m.Get(mapID)
	if !ok || !def.HasLayers() {
		return ""
	}
	return def.Layers[0].ID
}

// BackgroundURL returns the default background of a map or map layer.
func (m *Maps) BackgroundURL(mapID, layerID string) string {
	def, ok := m.Get(mapID)
	if !ok {
		return ""
	}
	for _, l := range def.Layers {
		if l.ID == layerID {
			return l.DefaultURL
		}
	}
	return def.DefaultURL
}
