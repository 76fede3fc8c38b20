// Package pins implements the pin store: validated pin CRUD, per-map
// metadata and profiles, the marked set and owner-only bulk deletes.
//
// Concurrent edits to the same pin are unordered: the last write to reach
// the backend wins.
package pins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/ratelimit"
	"github.com/tactical-map/backend/internal/storage"
)

var (
	ErrOutOfBounds          = errors.New("pin is outside the map")
	ErrUnknownMap           = errors.New("unknown map")
	ErrUnknownLayer         = errors.New("unknown layer for map")
	ErrUnknownMarker        = errors.New("unknown marker type")
	ErrRateLimited          = errors.New("too many requests, slow down")
	ErrTooManyPins          = errors.New("room pin limit reached")
	ErrNoteTooLong          = errors.New("note is too long")
	ErrImageTooLarge        = errors.New("image is too large")
	ErrConfirmationRequired = errors.New("confirmation token does not match")
	ErrPinNotFound          = errors.New("pin not found")
)

// Gate authorizes access to a scope.
type Gate interface {
	CanView(ctx context.Context, scope models.Scope) error
	CanEdit(ctx context.Context, scope models.Scope) error
	RequireOwner(ctx context.Context, scope models.Scope) error
}

// Publisher receives change notifications per scope key.
type Publisher interface {
	Publish(scope, kind string)
}

// Markers resolves marker type ids.
type Markers interface {
	Exists(id string) bool
}

// Maps resolves maps and their layers.
type Maps interface {
	Get(id string) (models.MapDef, bool)
	ValidLayer(mapID, layerID string) bool
}

// Limits are the validation thresholds of the store.
type Limits struct {
	CreateInterval time.Duration
	MaxPinsPerRoom int
	MaxNoteLength  int
	NoteInterval   time.Duration
	MaxImageBytes  int
	ImageInterval  time.Duration
	PinTTL         time.Duration
}

// DefaultLimits returns the stock thresholds.
func DefaultLimits() Limits {
	return Limits{
		CreateInterval: time.Second,
		MaxPinsPerRoom: 1500,
		MaxNoteLength:  300,
		NoteInterval:   500 * time.Millisecond,
		MaxImageBytes:  400_000,
		ImageInterval:  2 * time.Second,
	}
}

// Config wires a Service.
type Config struct {
	// Local stores local-mode scopes.
	Local storage.Backend
	// Shared stores room scopes. Defaults to Local.
	Shared    storage.Backend
	Gate      Gate
	Markers   Markers
	Maps      Maps
	Publisher Publisher
	Limits    Limits
	Now       func() time.Time
}

// Service is the pin store.
type Service struct {
	local     storage.Backend
	shared    storage.Backend
	gate      Gate
	markers   Markers
	maps      Maps
	publisher Publisher
	limits    Limits
	now       func() time.Time

	createLimiter ratelimit.Limiter
	noteLimiter   ratelimit.Limiter
	imageLimiter  ratelimit.Limiter

	marks *markSet
}

// NewService creates a pin store.
func NewService(cfg Config) *Service {
	if cfg.Shared == nil {
		cfg.Shared = cfg.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		local:         cfg.Local,
		shared:        cfg.Shared,
		gate:          cfg.Gate,
		markers:       cfg.Markers,
		maps:          cfg.Maps,
		publisher:     cfg.Publisher,
		limits:        cfg.Limits,
		now:           cfg.Now,
		createLimiter: ratelimit.NewIntervalWithClock(cfg.Limits.CreateInterval, cfg.Now),
		noteLimiter:   ratelimit.NewIntervalWithClock(cfg.Limits.NoteInterval, cfg.Now),
		imageLimiter:  ratelimit.NewIntervalWithClock(cfg.Limits.ImageInterval, cfg.Now),
		marks:         newMarkSet(),
	}
}

// PruneLimiters drops idle rate-limit state and returns how many keys were
// removed.
func (s *Service) PruneLimiters() int {
	return s.createLimiter.Prune() + s.noteLimiter.Prune() + s.imageLimiter.Prune()
}

// Limits returns the configured thresholds.
func (s *Service) Limits() Limits {
	return s.limits
}

// BackendFor returns the backend that stores scope.
func (s *Service) BackendFor(scope models.Scope) storage.Backend {
	if scope.Shared() {
		return s.shared
	}
	return s.local
}

func (s *Service) publish(scope models.Scope, kind string) {
	if s.publisher != nil {
		s.publisher.Publish(scope.Key(), kind)
	}
}

func limiterKey(scope models.Scope) string {
	return scope.Key() + "/" + scope.Identity.UID
}

// Filter selects the visible pins.
type Filter struct {
	MapID     string
	LayerID   string
	ProfileID string
	// Hidden lists marker types switched off in the palette.
	Hidden []string
}

// List returns the pins of scope matching f. An empty MapID matches all maps.
// Pins past their soft TTL are hidden until the sweeper deletes them.
func (s *Service) List(ctx context.Context, scope models.Scope, f Filter) ([]models.Pin, error) {
	if err := s.gate.CanView(ctx, scope); err != nil {
		return nil, err
	}

	all, err := s.BackendFor(scope).ListPins(ctx, scope.Key())
	if err != nil {
		fmt.Printf("[Pins] List %s failed: %v\n", scope.Key(), err)
		return nil, fmt.Errorf("listing pins: %w", err)
	}
	now := s.now()
	if f.MapID == "" && f.ProfileID == "" && len(f.Hidden) == 0 {
		out := make([]models.Pin, 0, len(all))
		for _, p := range all {
			if !p.Expired(now) {
				out = append(out, p)
			}
		}
		return out, nil
	}

	profile := f.ProfileID
	if profile == "" {
		profile = models.DefaultProfile
	}
	layered := false
	if def, ok := s.maps.Get(f.MapID); ok {
		layered = def.HasLayers()
	}
	hidden := make(map[string]bool, len(f.Hidden))
	for _, h := range f.Hidden {
		hidden[h] = true
	}

	out := make([]models.Pin, 0, len(all))
	for _, p := range all {
		if p.Expired(now) {
			continue
		}
		if f.MapID != "" {
			if p.MapID != f.MapID {
				continue
			}
			if layered && p.LayerID != f.LayerID {
				continue
			}
		}
		if pinProfile(p) != profile {
			continue
		}
		if hidden[p.Type] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func pinProfile(p models.Pin) string {
	if p.ProfileID == "" {
		return models.DefaultProfile
	}
	return p.ProfileID
}

// Get returns one pin.
func (s *Service) Get(ctx context.Context, scope models.Scope, id string) (*models.Pin, error) {
	if err := s.gate.CanView(ctx, scope); err != nil {
		return nil, err
	}
	p, err := s.BackendFor(scope).GetPin(ctx, scope.Key(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, id)
	}
	return p, err
}

// AddInput describes a pin placed on the map.
type AddInput struct {
	MapID     string  `json:"mapId"`
	LayerID   string  `json:"layerId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Type      string  `json:"type"`
	ProfileID string  `json:"profileId"`
	Note      string  `json:"note"`
	IconURL   string  `json:"iconUrl"`
}

// Add validates and stores a new pin. Validation failures leave no trace.
func (s *Service) Add(ctx context.Context, scope models.Scope, in AddInput) (*models.Pin, error) {
	if err := s.gate.CanEdit(ctx, scope); err != nil {
		return nil, err
	}

	def, ok := s.maps.Get(in.MapID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMap, in.MapID)
	}
	if !s.maps.ValidLayer(in.MapID, in.LayerID) {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownLayer, in.MapID, in.LayerID)
	}
	if !def.Contains(in.X, in.Y) {
		return nil, fmt.Errorf("%w: (%.1f, %.1f) not in %vx%v", ErrOutOfBounds, in.X, in.Y, def.Width, def.Height)
	}
	if !s.markers.Exists(in.Type) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarker, in.Type)
	}
	if err := s.checkNote(in.Note); err != nil {
		return nil, err
	}
	if err := s.checkImage(in.IconURL); err != nil {
		return nil, err
	}

	backend := s.BackendFor(scope)
	if s.limits.MaxPinsPerRoom > 0 {
		n, err := backend.CountPins(ctx, scope.Key())
		if err != nil {
			return nil, fmt.Errorf("counting pins: %w", err)
		}
		if n >= s.limits.MaxPinsPerRoom {
			return nil, ErrTooManyPins
		}
	}

	profile, err := s.resolveProfile(ctx, scope, in.MapID, in.ProfileID)
	if err != nil {
		return nil, err
	}

	if !s.createLimiter.Allow(limiterKey(scope)) {
		return nil, ErrRateLimited
	}

	now := s.now()
	pin := &models.Pin{
		MapID:         in.MapID,
		LayerID:       in.LayerID,
		X:             in.X,
		Y:             in.Y,
		Type:          in.Type,
		IconURL:       in.IconURL,
		Note:          in.Note,
		ProfileID:     profile,
		CreatedAt:     now,
		CreatedBy:     scope.Identity.UID,
		CreatedByName: scope.Identity.Name,
	}
	if s.limits.PinTTL > 0 {
		exp := now.Add(s.limits.PinTTL)
		pin.ExpiresAt = &exp
	}

	if _, err := backend.CreatePin(ctx, scope.Key(), pin); err != nil {
		fmt.Printf("[Pins] Add to %s failed: %v\n", scope.Key(), err)
		return nil, fmt.Errorf("adding pin: %w", err)
	}
	s.publish(scope, storage.ChangePins)
	return pin, nil
}

// resolveProfile returns requested if it is one of the map's profiles, else the default.
func (s *Service) resolveProfile(ctx context.Context, scope models.Scope, mapID, requested string) (string, error) {
	if requested == "" || requested == models.DefaultProfile {
		return models.DefaultProfile, nil
	}
	meta, err := s.loadMeta(ctx, scope, mapID)
	if err != nil {
		return "", err
	}
	if meta.HasProfile(requested) {
		return requested, nil
	}
	return models.DefaultProfile, nil
}

func (s *Service) checkNote(note string) error {
	if s.limits.MaxNoteLength > 0 && utf8.RuneCountInString(note) > s.limits.MaxNoteLength {
		return fmt.Errorf("%w: max %d characters", ErrNoteTooLong, s.limits.MaxNoteLength)
	}
	return nil
}

func (s *Service) checkImage(data string) error {
	if s.limits.MaxImageBytes > 0 && len(data) > s.limits.MaxImageBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrImageTooLarge, len(data), s.limits.MaxImageBytes)
	}
	return nil
}

// UpdateNote replaces a pin's note.
func (s *Service) UpdateNote(ctx context.Context, scope models.Scope, id, note string) error {
	if err := s.gate.CanEdit(ctx, scope); err != nil {
		return err
	}
	note = strings.TrimRight(note, " \t\r\n")
	if err := s.checkNote(note); err != nil {
		return err
	}
	return s.limitedPatch(ctx, scope, s.noteLimiter, id, models.PinPatch{Note: &note})
}

// UpdateImage replaces a pin's attached image, usually a data URL. An empty
// value removes it.
func (s *Service) UpdateImage(ctx context.Context, scope models.Scope, id, dataURL string) error {
	if err := s.gate.CanEdit(ctx, scope); err != nil {
		return err
	}
	if err := s.checkImage(dataURL); err != nil {
		return err
	}
	return s.limitedPatch(ctx, scope, s.imageLimiter, id, models.PinPatch{ImageURL: &dataURL})
}

// UpdateIcon overrides the icon of a single pin. An empty value restores the marker icon.
func (s *Service) UpdateIcon(ctx context.Context, scope models.Scope, id, iconURL string) error {
	if err := s.gate.CanEdit(ctx, scope); err != nil {
		return err
	}
	if err := s.checkImage(iconURL); err != nil {
		return err
	}
	return s.limitedPatch(ctx, scope, s.imageLimiter, id, models.PinPatch{IconURL: &iconURL})
}

// limitedPatch spends a token of lim only once the pin is known to exist.
func (s *Service) limitedPatch(ctx context.Context, scope models.Scope, lim ratelimit.Limiter, id string, p models.PinPatch) error {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return err
	}
	if !lim.Allow(limiterKey(scope)) {
		return ErrRateLimited
	}
	return s.patch(ctx, scope, id, p)
}

func (s *Service) patch(ctx context.Context, scope models.Scope, id string, p models.PinPatch) error {
	err := s.BackendFor(scope).UpdatePin(ctx, scope.Key(), id, p)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrPinNotFound, id)
	}
	if err != nil {
		fmt.Printf("[Pins] Update %s/%s failed: %v\n", scope.Key(), id, err)
		return fmt.Errorf("updating pin: %w", err)
	}
	s.publish(scope, storage.ChangePins)
	return nil
}

// Delete removes a pin and clears it from every marked set of the scope.
func (s *Service) Delete(ctx context.Context, scope models.Scope, id string) error {
	if err := s.gate.CanEdit(ctx, scope); err != nil {
		return err
	}
	err := s.BackendFor(scope).DeletePin(ctx, scope.Key(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.marks.forget(scope.Key(), id)
		return fmt.Errorf("%w: %s", ErrPinNotFound, id)
	}
	if err != nil {
		fmt.Printf("[Pins] Delete %s/%s failed: %v\n", scope.Key(), id, err)
		return fmt.Errorf("deleting pin: %w", err)
	}
	s.marks.forget(scope.Key(), id)
	s.publish(scope, storage.ChangePins)
	return nil
}
