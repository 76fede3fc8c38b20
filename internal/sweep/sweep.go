// Package sweep removes rooms and pins whose soft expiry has passed.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tactical-map/backend/internal/storage"
)

// Publisher is notified about scopes whose data was removed.
type Publisher interface {
	Publish(scope, kind string)
}

// Report summarizes one sweep.
type Report struct {
	Rooms int `json:"rooms"`
	Pins  int `json:"pins"`
	Meta  int `json:"meta"`
}

// Add accumulates o into r.
func (r *Report) Add(o Report) {
	r.Rooms += o.Rooms
	r.Pins += o.Pins
	r.Meta += o.Meta
}

// Sweeper deletes expired data from one or more backends.
type Sweeper struct {
	backends  []storage.Backend
	publisher Publisher
	now       func() time.Time
}

// New creates a sweeper over backends. Duplicate and nil backends are ignored.
func New(publisher Publisher, now func() time.Time, backends ...storage.Backend) *Sweeper {
	if now == nil {
		now = time.Now
	}
	s := &Sweeper{publisher: publisher, now: now}
	for _, b := range backends {
		if b == nil || s.has(b) {
			continue
		}
		s.backends = append(s.backends, b)
	}
	return s
}

func (s *Sweeper) has(b storage.Backend) bool {
	for _, x := range s.backends {
		if x == b {
			return true
		}
	}
	return false
}

// Run sweeps every backend once. Errors do not stop the sweep; they are
// joined and returned with the partial report.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	now := s.now()
	var total Report
	var errs []error
	for _, b := range s.backends {
		rep, err := s.sweepBackend(ctx, b, now)
		total.Add(rep)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	if total.Rooms+total.Pins+total.Meta > 0 {
		fmt.Printf("[Sweep] Removed %d rooms, %d pins, %d meta docs\n", total.Rooms, total.Pins, total.Meta)
	}
	return total, errors.Join(errs...)
}

func (s *Sweeper) sweepBackend(ctx context.Context, b storage.Backend, now time.Time) (Report, error) {
	var rep Report
	var errs []error

	rooms, err := b.ExpiredRooms(ctx, now)
	if err != nil {
		return rep, fmt.Errorf("listing expired rooms: %w", err)
	}
	for _, roomID := range rooms {
		r, err := s.purgeRoom(ctx, b, roomID)
		rep.Add(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
		}
	}

	n, err := b.DeleteExpiredPins(ctx, now)
	rep.Pins += n
	if err != nil {
		errs = append(errs, fmt.Errorf("expired pins: %w", err))
	}
	return rep, errors.Join(errs...)
}

// purgeRoom deletes the room's pins and metadata, then the room document.
// The room document is kept when an earlier step fails so the next sweep
// finds the room again.
func (s *Sweeper) purgeRoom(ctx context.Context, b storage.Backend, roomID string) (Report, error) {
	var rep Report

	pins, err := b.ListPins(ctx, roomID)
	if err != nil {
		return rep, fmt.Errorf("listing pins: %w", err)
	}
	if len(pins) > 0 {
		ids := make([]string, len(pins))
		for i, p := range pins {
			ids[i] = p.ID
		}
		n, err := b.DeletePins(ctx, roomID, ids)
		rep.Pins += n
		if err != nil {
			return rep, fmt.Errorf("deleting pins: %w", err)
		}
	}

	rep.Meta, err = b.DeleteMapMeta(ctx, roomID)
	if err != nil {
		return rep, fmt.Errorf("deleting map meta: %w", err)
	}

	if err := b.DeleteRoom(ctx, roomID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return rep, fmt.Errorf("deleting room: %w", err)
	}
	rep.Rooms++
	s.publish(roomID)
	return rep, nil
}

func (s *Sweeper) publish(roomID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(roomID, storage.ChangePins)
	s.publisher.Publish(roomID, storage.ChangeRoom)
}

// Start runs a sweep every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(ctx); err != nil {
					fmt.Printf("[Sweep] Sweep finished with errors: %v\n", err)
				}
			}
		}
	}()
}
