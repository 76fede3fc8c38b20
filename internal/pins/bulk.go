package pins

import (
	"context"
	"errors"
	"fmt"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/storage"
)

// localConfirmToken confirms bulk deletes of a local scope.
const localConfirmToken = "local"

// ConfirmToken is the value a caller must echo back to run a bulk delete on
// scope: the room id in shared mode.
func ConfirmToken(scope models.Scope) string {
	if scope.Shared() {
		return scope.RoomID
	}
	return localConfirmToken
}

// BulkResult reports a best-effort bulk delete. On a partial failure Deleted
// counts what was removed before the error; nothing is restored.
type BulkResult struct {
	Deleted     int  `json:"deleted"`
	MetaDeleted int  `json:"metaDeleted,omitempty"`
	RoomDeleted bool `json:"roomDeleted,omitempty"`
}

func (s *Service) authorizeBulk(ctx context.Context, scope models.Scope, confirm string) error {
	if err := s.gate.RequireOwner(ctx, scope); err != nil {
		return err
	}
	if confirm != ConfirmToken(scope) {
		return ErrConfirmationRequired
	}
	return nil
}

func (s *Service) deleteMatching(ctx context.Context, scope models.Scope, match func(models.Pin) bool) (int, error) {
	backend := s.BackendFor(scope)
	all, err := backend.ListPins(ctx, scope.Key())
	if err != nil {
		return 0, fmt.Errorf("listing pins: %w", err)
	}

	var ids []string
	for _, p := range all {
		if match(p) {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := backend.DeletePins(ctx, scope.Key(), ids)
	for _, id := range ids[:min(n, len(ids))] {
		s.marks.forget(scope.Key(), id)
	}
	if n > 0 {
		s.publish(scope, storage.ChangePins)
	}
	if err != nil {
		fmt.Printf("[Pins] Bulk delete in %s stopped after %d of %d: %v\n", scope.Key(), n, len(ids), err)
		return n, fmt.Errorf("bulk delete incomplete (%d of %d): %w", n, len(ids), err)
	}
	fmt.Printf("[Pins] Bulk deleted %d pins in %s\n", n, scope.Key())
	return n, nil
}

// DeleteAll removes every pin of the scope. Owner only.
func (s *Service) DeleteAll(ctx context.Context, scope models.Scope, confirm string) (*BulkResult, error) {
	if err := s.authorizeBulk(ctx, scope, confirm); err != nil {
		return nil, err
	}
	n, err := s.deleteMatching(ctx, scope, func(models.Pin) bool { return true })
	if err == nil {
		s.marks.clear(scope.Key())
	}
	return &BulkResult{Deleted: n}, err
}

// DeleteByType removes every pin of one marker type. Owner only.
func (s *Service) DeleteByType(ctx context.Context, scope models.Scope, markerType, confirm string) (*BulkResult, error) {
	if err := s.authorizeBulk(ctx, scope, confirm); err != nil {
		return nil, err
	}
	n, err := s.deleteMatching(ctx, scope, func(p models.Pin) bool { return p.Type == markerType })
	return &BulkResult{Deleted: n}, err
}

// PurgeRoom removes the scope's pins, its map metadata and, in shared mode,
// the room document. Owner only. Steps run in that order and stop at the
// first failure.
func (s *Service) PurgeRoom(ctx context.Context, scope models.Scope, confirm string) (*BulkResult, error) {
	if err := s.authorizeBulk(ctx, scope, confirm); err != nil {
		return nil, err
	}
	res := &BulkResult{}

	n, err := s.deleteMatching(ctx, scope, func(models.Pin) bool { return true })
	res.Deleted = n
	if err != nil {
		return res, err
	}
	s.marks.clear(scope.Key())

	backend := s.BackendFor(scope)
	res.MetaDeleted, err = backend.DeleteMapMeta(ctx, scope.Key())
	if err != nil {
		return res, fmt.Errorf("deleting map meta: %w", err)
	}
	s.publish(scope, storage.ChangeMeta)

	if scope.Shared() {
		err := backend.DeleteRoom(ctx, scope.RoomID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("deleting room: %w", err)
		}
		res.RoomDeleted = err == nil
		s.publish(scope, storage.ChangeRoom)
	}

	s.createLimiter.Forget(limiterKey(scope))
	fmt.Printf("[Pins] Purged %s: %d pins, %d meta docs\n", scope.Key(), res.Deleted, res.MetaDeleted)
	return res, nil
}
