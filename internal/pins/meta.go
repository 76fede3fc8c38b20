package pins

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/storage"
)

var (
	ErrInvalidProfile = errors.New("invalid profile name")
	ErrProfileExists  = errors.New("profile already exists")
	ErrUnknownProfile = errors.New("unknown profile")
	ErrDefaultProfile = errors.New("the default profile cannot be removed")
	ErrTitleTooLong   = errors.New("title is too long")
)

const (
	maxProfileName = 32
	maxTitleLength = 80
)

func (s *Service) loadMeta(ctx context.Context, scope models.Scope, mapID string) (*models.MapMeta, error) {
	meta, err := s.BackendFor(scope).GetMapMeta(ctx, scope.Key(), mapID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.NewMapMeta(mapID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading map meta: %w", err)
	}
	if !slices.Contains(meta.Profiles, models.DefaultProfile) {
		meta.Profiles = append([]string{models.DefaultProfile}, meta.Profiles...)
	}
	return meta, nil
}

func (s *Service) saveMeta(ctx context.Context, scope models.Scope, meta *models.MapMeta) error {
	meta.UpdatedAt = s.now()
	meta.UpdatedBy = scope.Identity.UID
	if err := s.BackendFor(scope).PutMapMeta(ctx, scope.Key(), meta); err != nil {
		fmt.Printf("[Pins] Saving meta %s/%s failed: %v\n", scope.Key(), meta.MapID, err)
		return fmt.Errorf("saving map meta: %w", err)
	}
	s.publish(scope, storage.ChangeMeta)
	return nil
}

func (s *Service) editableMeta(ctx context.Context, scope models.Scope, mapID string) (*models.MapMeta, error) {
	if err := s.gate.CanEdit(ctx, scope); err != nil {
		return nil, err
	}
	if _, ok := s.maps.Get(mapID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMap, mapID)
	}
	return s.loadMeta(ctx, scope, mapID)
}

// Meta returns a map's metadata. Maps never written to report only the default profile.
func (s *Service) Meta(ctx context.Context, scope models.Scope, mapID string) (*models.MapMeta, error) {
	if err := s.gate.CanView(ctx, scope); err != nil {
		return nil, err
	}
	if _, ok := s.maps.Get(mapID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMap, mapID)
	}
	return s.loadMeta(ctx, scope, mapID)
}

// ResolveProfile returns profile if the map has it, else the default profile.
func (s *Service) ResolveProfile(ctx context.Context, scope models.Scope, mapID, profile string) (string, error) {
	if err := s.gate.CanView(ctx, scope); err != nil {
		// Unapproved visitors still get a usable selection.
		return models.DefaultProfile, nil
	}
	return s.resolveProfile(ctx, scope, mapID, profile)
}

// AddProfile creates a named pin grouping on a map.
func (s *Service) AddProfile(ctx context.Context, scope models.Scope, mapID, name string) (*models.MapMeta, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxProfileName {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProfile, name)
	}
	meta, err := s.editableMeta(ctx, scope, mapID)
	if err != nil {
		return nil, err
	}
	if meta.HasProfile(name) {
		return nil, fmt.Errorf("%w: %s", ErrProfileExists, name)
	}
	meta.Profiles = append(meta.Profiles, name)
	if err := s.saveMeta(ctx, scope, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// RemoveProfile deletes a profile name. Its pins stay stored and reappear if
// the profile is created again.
func (s *Service) RemoveProfile(ctx context.Context, scope models.Scope, mapID, name string) (*models.MapMeta, error) {
	if name == models.DefaultProfile {
		return nil, ErrDefaultProfile
	}
	meta, err := s.editableMeta(ctx, scope, mapID)
	if err != nil {
		return nil, err
	}
	i := slices.Index(meta.Profiles, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	meta.Profiles = slices.Delete(meta.Profiles, i, i+1)
	if err := s.saveMeta(ctx, scope, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// MetaUpdate is a partial update of a map's title and note.
type MetaUpdate struct {
	Title *string `json:"title"`
	Note  *string `json:"note"`
}

// UpdateMeta sets a map's title and note.
func (s *Service) UpdateMeta(ctx context.Context, scope models.Scope, mapID string, u MetaUpdate) (*models.MapMeta, error) {
	if u.Title != nil && utf8.RuneCountInString(*u.Title) > maxTitleLength {
		return nil, fmt.Errorf("%w: max %d characters", ErrTitleTooLong, maxTitleLength)
	}
	if u.Note != nil {
		if err := s.checkNote(*u.Note); err != nil {
			return nil, err
		}
	}
	meta, err := s.editableMeta(ctx, scope, mapID)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		meta.Title = strings.TrimSpace(*u.Title)
	}
	if u.Note != nil {
		meta.Note = *u.Note
	}
	if err := s.saveMeta(ctx, scope, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SetBackground records a custom background image for a map or map layer.
// An empty fileID restores the default image.
func (s *Service) SetBackground(ctx context.Context, scope models.Scope, mapID, layerID, fileID string) (*models.MapMeta, error) {
	if !s.maps.ValidLayer(mapID, layerID) {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownLayer, mapID, layerID)
	}
	meta, err := s.editableMeta(ctx, scope, mapID)
	if err != nil {
		return nil, err
	}
	key := models.BackgroundKey(mapID, layerID)
	if fileID == "" {
		delete(meta.Backgrounds, key)
	} else {
		if meta.Backgrounds == nil {
			meta.Backgrounds = make(map[string]string)
		}
		meta.Backgrounds[key] = fileID
	}
	if err := s.saveMeta(ctx, scope, meta); err != nil {
		return nil, err
	}
	return meta, nil
}
