// Package prefs keeps the per-user marker customizations: icon overrides
// per marker type and a small library of saved icons.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/storage"
)

var (
	ErrUnknownMarker = errors.New("unknown marker type")
	ErrEmptyIcon     = errors.New("icon is empty")
	ErrIconTooLarge  = errors.New("icon exceeds the size limit")
	ErrIconNotFound  = errors.New("icon not found")
	ErrLibraryFull   = errors.New("icon library is full")
)

const (
	DefaultMaxLibrary = 50
	maxIconNameLength = 40
)

// Markers reports whether a marker type exists.
type Markers interface {
	Exists(id string) bool
}

// Config wires a Service.
type Config struct {
	Store        storage.PrefStore
	Markers      Markers
	MaxIconBytes int
	MaxLibrary   int
	Now          func() time.Time
}

// Service reads and edits user preferences.
type Service struct {
	store        storage.PrefStore
	markers      Markers
	maxIconBytes int
	maxLibrary   int
	now          func() time.Time

	// Serializes read-modify-write per process.
	mu sync.Mutex
}

// NewService creates a preference service.
func NewService(cfg Config) *Service {
	if cfg.MaxLibrary <= 0 {
		cfg.MaxLibrary = DefaultMaxLibrary
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:        cfg.Store,
		markers:      cfg.Markers,
		maxIconBytes: cfg.MaxIconBytes,
		maxLibrary:   cfg.MaxLibrary,
		now:          cfg.Now,
	}
}

// Get returns the preferences of uid, empty when none were saved.
func (s *Service) Get(ctx context.Context, uid string) (*models.UserPrefs, error) {
	if uid == "" {
		return nil, session.ErrIdentityRequired
	}
	p, err := s.store.GetPrefs(ctx, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return models.NewUserPrefs(uid), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading prefs: %w", err)
	}
	if p.IconOverrides == nil {
		p.IconOverrides = map[string]string{}
	}
	if p.IconLibrary == nil {
		p.IconLibrary = []models.IconEntry{}
	}
	return p, nil
}

func (s *Service) checkIcon(url string) error {
	if strings.TrimSpace(url) == "" {
		return ErrEmptyIcon
	}
	if s.maxIconBytes > 0 && len(url) > s.maxIconBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrIconTooLarge, len(url), s.maxIconBytes)
	}
	return nil
}

// update applies fn to the stored preferences of uid and saves the result.
func (s *Service) update(ctx context.Context, uid string, fn func(*models.UserPrefs) error) (*models.UserPrefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.store.PutPrefs(ctx, p); err != nil {
		fmt.Printf("[Prefs] Save %s failed: %v\n", uid, err)
		return nil, fmt.Errorf("saving prefs: %w", err)
	}
	return p, nil
}

// SetIcon draws every marker of markerType with url for uid.
func (s *Service) SetIcon(ctx context.Context, uid, markerType, url string) (*models.UserPrefs, error) {
	if !s.markers.Exists(markerType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarker, markerType)
	}
	if err := s.checkIcon(url); err != nil {
		return nil, err
	}
	return s.update(ctx, uid, func(p *models.UserPrefs) error {
		p.IconOverrides[markerType] = url
		return nil
	})
}

// ClearIcon restores the catalog icon of markerType for uid.
func (s *Service) ClearIcon(ctx context.Context, uid, markerType string) (*models.UserPrefs, error) {
	return s.update(ctx, uid, func(p *models.UserPrefs) error {
		delete(p.IconOverrides, markerType)
		return nil
	})
}

// AddIcon saves url to the icon library of uid.
func (s *Service) AddIcon(ctx context.Context, uid, name, url string) (*models.IconEntry, error) {
	if err := s.checkIcon(url); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxIconNameLength {
		name = string(r[:maxIconNameLength])
	}
	entry := models.IconEntry{ID: uuid.New().String(), Name: name, URL: url}
	_, err := s.update(ctx, uid, func(p *models.UserPrefs) error {
		if len(p.IconLibrary) >= s.maxLibrary {
			return fmt.Errorf("%w: max %d", ErrLibraryFull, s.maxLibrary)
		}
		p.IconLibrary = append(p.IconLibrary, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveIcon deletes a library entry. Overrides using the same image stay.
func (s *Service) RemoveIcon(ctx context.Context, uid, id string) (*models.UserPrefs, error) {
	return s.update(ctx, uid, func(p *models.UserPrefs) error {
		for i, e := range p.IconLibrary {
			if e.ID == id {
				p.IconLibrary = append(p.IconLibrary[:i], p.IconLibrary[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrIconNotFound, id)
	})
}
