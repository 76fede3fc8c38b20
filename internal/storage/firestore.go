package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tactical-map/backend/internal/models"
)

// FirestoreStore is the shared backend. Documents live under
// artifacts/{appID}/public/data: one "{scope}_pins" collection per scope, one
// "{scope}_mapmeta" collection per scope and a "rooms" collection.
type FirestoreStore struct {
	client *firestore.Client
	appID  string
}

type pendingDoc struct {
	Name        string    `firestore:"name"`
	RequestedAt time.Time `firestore:"requestedAt"`
}

type roomDoc struct {
	OwnerUID     string                `firestore:"ownerUid"`
	AllowedUsers []string              `firestore:"allowedUsers"`
	Pending      map[string]pendingDoc `firestore:"pending"`
	CreatedAt    time.Time             `firestore:"createdAt"`
	ExpiresAt    time.Time             `firestore:"expiresAt"`
}

// NewFirestoreStore wraps a Firestore client. appID namespaces all documents.
func NewFirestoreStore(client *firestore.Client, appID string) *FirestoreStore {
	return &FirestoreStore{client: client, appID: appID}
}

// Name identifies the backend in logs and health output.
func (s *FirestoreStore) Name() string { return "firestore" }

// Close closes the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) data() *firestore.DocumentRef {
	return s.client.Collection("artifacts").Doc(s.appID).Collection("public").Doc("data")
}

func (s *FirestoreStore) pins(scope string) *firestore.CollectionRef {
	return s.data().Collection(scope + "_pins")
}

func (s *FirestoreStore) metas(scope string) *firestore.CollectionRef {
	return s.data().Collection(scope + "_mapmeta")
}

func (s *FirestoreStore) rooms() *firestore.CollectionRef {
	return s.data().Collection("rooms")
}

// translate maps gRPC status codes onto the package sentinels.
func translate(err error, what string) error {
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	default:
		fmt.Printf("[Firestore] %s failed: %v\n", what, err)
		return fmt.Errorf("%s: %w", what, err)
	}
}

// ListPins returns all pins of a scope.
func (s *FirestoreStore) ListPins(ctx context.Context, scope string) ([]models.Pin, error) {
	iter := s.pins(scope).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	pins := []models.Pin{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, translate(err, "listing pins")
		}
		var p models.Pin
		if err := doc.DataTo(&p); err != nil {
			fmt.Printf("[Firestore] Skipping malformed pin %s: %v\n", doc.Ref.ID, err)
			continue
		}
		p.ID = doc.Ref.ID
		p.RoomID = scope
		pins = append(pins, p)
	}
	return pins, nil
}

// GetPin returns one pin.
func (s *FirestoreStore) GetPin(ctx context.Context, scope, id string) (*models.Pin, error) {
	doc, err := s.pins(scope).Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err, "pin "+id)
	}
	var p models.Pin
	if err := doc.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decoding pin: %w", err)
	}
	p.ID = id
	p.RoomID = scope
	return &p, nil
}

// CreatePin adds a pin document with a generated id unless pin.ID is set.
func (s *FirestoreStore) CreatePin(ctx context.Context, scope string, pin *models.Pin) (string, error) {
	pin.RoomID = scope
	ref := s.pins(scope).NewDoc()
	if pin.ID != "" {
		ref = s.pins(scope).Doc(pin.ID)
	}
	if _, err := ref.Create(ctx, pin); err != nil {
		return "", translate(err, "creating pin")
	}
	pin.ID = ref.ID
	return ref.ID, nil
}

// UpdatePin issues a partial update of the set fields.
func (s *FirestoreStore) UpdatePin(ctx context.Context, scope, id string, patch models.PinPatch) error {
	var updates []firestore.Update
	if patch.Note != nil {
		updates = append(updates, firestore.Update{Path: "note", Value: *patch.Note})
	}
	if patch.ImageURL != nil {
		updates = append(updates, firestore.Update{Path: "imageUrl", Value: *patch.ImageURL})
	}
	if patch.IconURL != nil {
		updates = append(updates, firestore.Update{Path: "iconUrl", Value: *patch.IconURL})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := s.pins(scope).Doc(id).Update(ctx, updates)
	return translate(err, "pin "+id)
}

// DeletePin removes one pin document.
func (s *FirestoreStore) DeletePin(ctx context.Context, scope, id string) error {
	_, err := s.pins(scope).Doc(id).Delete(ctx, firestore.Exists)
	return translate(err, "pin "+id)
}

// DeletePins removes pins with a bulk writer. Individual failures are logged
// and skipped; there is no rollback.
func (s *FirestoreStore) DeletePins(ctx context.Context, scope string, ids []string) (int, error) {
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = s.pins(scope).Doc(id)
	}
	return s.bulkDelete(ctx, refs)
}

func (s *FirestoreStore) bulkDelete(ctx context.Context, refs []*firestore.DocumentRef) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	var firstErr error
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			fmt.Printf("[Firestore] Bulk delete failed: %v\n", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	if firstErr != nil {
		return deleted, fmt.Errorf("bulk delete: %w", firstErr)
	}
	return deleted, nil
}

// CountPins uses a count aggregation over the scope's pins.
func (s *FirestoreStore) CountPins(ctx context.Context, scope string) (int, error) {
	res, err := s.pins(scope).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, translate(err, "counting pins")
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("counting pins: unexpected aggregation result")
	}
	return int(v.GetIntegerValue()), nil
}

// DeleteExpiredPins scans each room's pins for an expiry before the given time.
func (s *FirestoreStore) DeleteExpiredPins(ctx context.Context, before time.Time) (int, error) {
	roomIter := s.rooms().Documents(ctx)
	defer roomIter.Stop()

	total := 0
	for {
		roomSnap, err := roomIter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return total, translate(err, "listing rooms")
		}

		iter := s.pins(roomSnap.Ref.ID).Where("expiresAt", "<", before).Documents(ctx)
		var refs []*firestore.DocumentRef
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				fmt.Printf("[Firestore] Failed to iterate expired pins of %s: %v\n", roomSnap.Ref.ID, err)
				break
			}
			refs = append(refs, doc.Ref)
		}
		iter.Stop()

		n, err := s.bulkDelete(ctx, refs)
		total += n
		if err != nil {
			fmt.Printf("[Firestore] Expired pin cleanup of %s incomplete: %v\n", roomSnap.Ref.ID, err)
		}
	}
	return total, nil
}

func roomFromDoc(id string, d *roomDoc) *models.Room {
	r := &models.Room{
		RoomID:       id,
		OwnerUID:     d.OwnerUID,
		AllowedUsers: d.AllowedUsers,
		CreatedAt:    d.CreatedAt,
		ExpiresAt:    d.ExpiresAt,
	}
	for uid, p := range d.Pending {
		r.Pending = append(r.Pending, models.PendingRequest{UID: uid, Name: p.Name, RequestedAt: p.RequestedAt})
	}
	sort.Slice(r.Pending, func(i, j int) bool {
		return r.Pending[i].RequestedAt.Before(r.Pending[j].RequestedAt)
	})
	return r
}

// CreateRoom writes the room only if absent.
func (s *FirestoreStore) CreateRoom(ctx context.Context, room *models.Room) error {
	d := roomDoc{
		OwnerUID:     room.OwnerUID,
		AllowedUsers: room.AllowedUsers,
		Pending:      map[string]pendingDoc{},
		CreatedAt:    room.CreatedAt,
		ExpiresAt:    room.ExpiresAt,
	}
	for _, p := range room.Pending {
		d.Pending[p.UID] = pendingDoc{Name: p.Name, RequestedAt: p.RequestedAt}
	}
	_, err := s.rooms().Doc(room.RoomID).Create(ctx, d)
	return translate(err, "room "+room.RoomID)
}

// GetRoom reads a room document.
func (s *FirestoreStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	snap, err := s.rooms().Doc(roomID).Get(ctx)
	if err != nil {
		return nil, translate(err, "room "+roomID)
	}
	var d roomDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding room: %w", err)
	}
	return roomFromDoc(roomID, &d), nil
}

// AddAllowed array-unions uid into the allow-list and deletes its pending entry
// in one single-document update.
func (s *FirestoreStore) AddAllowed(ctx context.Context, roomID, uid string) error {
	_, err := s.rooms().Doc(roomID).Update(ctx, []firestore.Update{
		{Path: "allowedUsers", Value: firestore.ArrayUnion(uid)},
		{FieldPath: firestore.FieldPath{"pending", uid}, Value: firestore.Delete},
	})
	return translate(err, "room "+roomID)
}

// AddPending sets the pending entry keyed by the requester's uid.
func (s *FirestoreStore) AddPending(ctx context.Context, roomID string, req models.PendingRequest) error {
	_, err := s.rooms().Doc(roomID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"pending", req.UID}, Value: pendingDoc{Name: req.Name, RequestedAt: req.RequestedAt}},
	})
	return translate(err, "room "+roomID)
}

// RemovePending deletes the pending entry of uid.
func (s *FirestoreStore) RemovePending(ctx context.Context, roomID, uid string) error {
	_, err := s.rooms().Doc(roomID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"pending", uid}, Value: firestore.Delete},
	})
	return translate(err, "room "+roomID)
}

// DeleteRoom removes the room document.
func (s *FirestoreStore) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.rooms().Doc(roomID).Delete(ctx, firestore.Exists)
	return translate(err, "room "+roomID)
}

// RoomsForUser queries rooms whose allow-list contains uid.
func (s *FirestoreStore) RoomsForUser(ctx context.Context, uid string) ([]models.Room, error) {
	iter := s.rooms().Where("allowedUsers", "array-contains", uid).Documents(ctx)
	defer iter.Stop()

	var out []models.Room
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, translate(err, "listing rooms")
		}
		var d roomDoc
		if err := doc.DataTo(&d); err != nil {
			continue
		}
		out = append(out, *roomFromDoc(doc.Ref.ID, &d))
	}
	return out, nil
}

// ExpiredRooms lists rooms whose expiry passed before the given time.
func (s *FirestoreStore) ExpiredRooms(ctx context.Context, before time.Time) ([]string, error) {
	iter := s.rooms().Where("expiresAt", "<", before).Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return ids, translate(err, "listing expired rooms")
		}
		ids = append(ids, doc.Ref.ID)
	}
	return ids, nil
}

// GetMapMeta reads the metadata document of one map.
func (s *FirestoreStore) GetMapMeta(ctx context.Context, scope, mapID string) (*models.MapMeta, error) {
	snap, err := s.metas(scope).Doc(mapID).Get(ctx)
	if err != nil {
		return nil, translate(err, "map meta "+mapID)
	}
	var meta models.MapMeta
	if err := snap.DataTo(&meta); err != nil {
		return nil, fmt.Errorf("decoding map meta: %w", err)
	}
	meta.MapID = mapID
	return &meta, nil
}

// PutMapMeta overwrites the metadata document of one map.
func (s *FirestoreStore) PutMapMeta(ctx context.Context, scope string, meta *models.MapMeta) error {
	_, err := s.metas(scope).Doc(meta.MapID).Set(ctx, meta)
	return translate(err, "map meta "+meta.MapID)
}

// DeleteMapMeta removes every metadata document of a scope.
func (s *FirestoreStore) DeleteMapMeta(ctx context.Context, scope string) (int, error) {
	refs, err := s.metas(scope).DocumentRefs(ctx).GetAll()
	if err != nil {
		return 0, translate(err, "listing map meta")
	}
	return s.bulkDelete(ctx, refs)
}

// WatchScope listens to the scope's pin and metadata collections and its room
// document. The initial snapshot of each listener is not reported.
func (s *FirestoreStore) WatchScope(ctx context.Context, scope string, onChange func(kind string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	watchQuery := func(q firestore.Query, kind string) {
		defer wg.Done()
		it := q.Snapshots(ctx)
		defer it.Stop()
		first := true
		for {
			_, err := it.Next()
			if err != nil {
				errs <- err
				return
			}
			if first {
				first = false
				continue
			}
			onChange(kind)
		}
	}

	wg.Add(3)
	go watchQuery(s.pins(scope).Query, ChangePins)
	go watchQuery(s.metas(scope).Query, ChangeMeta)
	go func() {
		defer wg.Done()
		it := s.rooms().Doc(scope).Snapshots(ctx)
		defer it.Stop()
		first := true
		for {
			_, err := it.Next()
			if err != nil {
				errs <- err
				return
			}
			if first {
				first = false
				continue
			}
			onChange(ChangeRoom)
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
		cancel()
	}
	wg.Wait()

	if err == nil || ctx.Err() != nil && (status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled)) {
		return nil
	}
	return translate(err, "watching "+scope)
}
