package models

import "time"

// Layer is a renderable surface of a map with more than one.
type Layer struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	DefaultURL string `json:"defaultUrl" yaml:"default_url"`
}

// MapDef is a playable map from the map catalog.
type MapDef struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`
	DefaultURL string  `json:"defaultUrl,omitempty" yaml:"default_url,omitempty"`
	BgColor    string  `json:"bgColor" yaml:"bg_color"`
	GridColor  string  `json:"gridColor" yaml:"grid_color"`
	Layers     []Layer `json:"layers,omitempty" yaml:"layers,omitempty"`
}

// HasLayers reports whether the map is split into layers.
func (m *MapDef) HasLayers() bool {
	return len(m.Layers) > 0
}

// Contains reports whether (x, y) lies within the map, edges included.
func (m *MapDef) Contains(x, y float64) bool {
	return x >= 0 && y >= 0 && x <= m.Width && y <= m.Height
}

// MapMeta is the per-map metadata of a scope: named profiles, a title and a note.
type MapMeta struct {
	MapID       string            `json:"mapId" firestore:"mapId" msgpack:"mapId"`
	Profiles    []string          `json:"profiles" firestore:"profiles" msgpack:"profiles"`
	Title       string            `json:"title,omitempty" firestore:"title,omitempty" msgpack:"title,omitempty"`
	Note        string            `json:"note,omitempty" firestore:"note,omitempty" msgpack:"note,omitempty"`
	Backgrounds map[string]string `json:"backgrounds,omitempty" firestore:"backgrounds,omitempty" msgpack:"backgrounds,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt" firestore:"updatedAt" msgpack:"updatedAt"`
	UpdatedBy   string            `json:"updatedBy" firestore:"updatedBy" msgpack:"updatedBy"`
}

// NewMapMeta returns metadata holding only the default profile.
func NewMapMeta(mapID string) *MapMeta {
	return &MapMeta{
		MapID:    mapID,
		Profiles: []string{DefaultProfile},
	}
}

// HasProfile reports whether name is one of the map's profiles.
func (m *MapMeta) HasProfile(name string) bool {
	if name == DefaultProfile {
		return true
	}
	for _, p := range m.Profiles {
		if p == name {
			return true
		}
	}
	return false
}

// BackgroundKey is the key of a map or map layer background image.
func BackgroundKey(mapID, layerID string) string {
	if layerID == "" {
		return mapID
	}
	return mapID + "_" + layerID
}
