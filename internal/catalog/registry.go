package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tactical-map/backend/internal/models"
)

var (
	ErrEmptyLabel      = errors.New("marker label is empty")
	ErrUnknownCategory = errors.New("unknown marker category")
	ErrMarkerNotFound  = errors.New("marker not found")
	ErrBuiltinMarker   = errors.New("built-in markers cannot be removed")
	ErrNotCreator      = errors.New("only the marker's creator may remove it")
)

const maxLabelLength = 40

// Registry merges the built-in marker table with user-defined markers.
// The built-in table is never modified; custom markers are kept in insertion
// order and persisted to a YAML file when a path is set.
type Registry struct {
	mu     sync.RWMutex
	path   string
	custom []models.Marker
}

type registryFile struct {
	Markers []models.Marker `yaml:"markers"`
}

// NewRegistry creates a registry backed by the YAML file at path. An empty
// path keeps custom markers in memory only.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading custom markers: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing custom markers: %w", err)
	}
	for _, m := range f.Markers {
		if _, ok := Category(m.Category); !ok || m.ID == "" {
			fmt.Printf("[Catalog] Skipping invalid custom marker %q\n", m.ID)
			continue
		}
		m.Custom = true
		r.custom = append(r.custom, m)
	}
	fmt.Printf("[Catalog] Loaded %d custom markers\n", len(r.custom))
	return r, nil
}

// Lookup resolves a marker id against the built-in table first, then the custom overlay.
func (r *Registry) Lookup(id string) (models.Marker, bool) {
	if m, ok := baseMarker(id); ok {
		return m, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.custom {
		if m.ID == id {
			return m, true
		}
	}
	return models.Marker{}, false
}

// Resolve is Lookup with the fallback marker for unknown ids.
func (r *Registry) Resolve(id string) models.Marker {
	if m, ok := r.Lookup(id); ok {
		return m
	}
	return fallbackMarker
}

// Exists reports whether id names a built-in or custom marker.
func (r *Registry) Exists(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// All returns built-in markers followed by custom markers.
func (r *Registry) All() []models.Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := BaseMarkers()
	return append(out, r.custom...)
}

// Custom returns the user-defined markers.
func (r *Registry) Custom() []models.Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Marker, len(r.custom))
	copy(out, r.custom)
	return out
}

// AddCustom defines a new marker owned by createdBy. The label must be
// non-empty and the category must exist.
func (r *Registry) AddCustom(label, category, icon, createdBy string) (models.Marker, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return models.Marker{}, ErrEmptyLabel
	}
	if len([]rune(label)) > maxLabelLength {
		label = string([]rune(label)[:maxLabelLength])
	}
	if _, ok := Category(category); !ok {
		return models.Marker{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if icon == "" {
		icon = fallbackMarker.Icon
	}

	m := models.Marker{
		ID:        "custom_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		Category:  category,
		Label:     label,
		Icon:      icon,
		Custom:    true,
		CreatedBy: createdBy,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = append(r.custom, m)
	if err := r.saveLocked(); err != nil {
		r.custom = r.custom[:len(r.custom)-1]
		return models.Marker{}, err
	}
	return m, nil
}

// RemoveCustom deletes a user-defined marker on behalf of uid, who must have
// created it. Existing pins of that type render with the fallback marker
// afterwards.
func (r *Registry) RemoveCustom(id, uid string) error {
	if _, ok := baseMarker(id); ok {
		return ErrBuiltinMarker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.custom {
		if m.ID != id {
			continue
		}
		if m.CreatedBy != uid {
			return ErrNotCreator
		}
		prev := r.custom
		r.custom = append(append([]models.Marker{}, prev[:i]...), prev[i+1:]...)
		if err := r.saveLocked(); err != nil {
			r.custom = prev
			return err
		}
		return nil
	}
	return ErrMarkerNotFound
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	data, err := yaml.Marshal(registryFile{Markers: r.custom})
	if err != nil {
		return fmt.Errorf("encoding custom markers: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("writing custom markers: %w", err)
	}
	return nil
}
