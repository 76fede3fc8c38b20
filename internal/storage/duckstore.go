package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tactical-map/backend/internal/models"
)

// DuckStore is the embedded backend. It keeps local-mode pins and, when no
// cloud backend is configured, shared rooms in a single DuckDB file.
type DuckStore struct {
	db     *sql.DB
	dbPath string

	// Serializes read-modify-write of room and metadata rows.
	mu sync.Mutex
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pins (
		scope           VARCHAR NOT NULL,
		id              VARCHAR NOT NULL,
		map_id          VARCHAR NOT NULL,
		layer_id        VARCHAR NOT NULL DEFAULT '',
		x               DOUBLE NOT NULL,
		y               DOUBLE NOT NULL,
		type            VARCHAR NOT NULL,
		icon_url        VARCHAR NOT NULL DEFAULT '',
		image_url       VARCHAR NOT NULL DEFAULT '',
		note            VARCHAR NOT NULL DEFAULT '',
		profile_id      VARCHAR NOT NULL,
		created_at      TIMESTAMP NOT NULL,
		created_by      VARCHAR NOT NULL,
		created_by_name VARCHAR NOT NULL,
		expires_at      TIMESTAMP,
		PRIMARY KEY (scope, id)
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id    VARCHAR PRIMARY KEY,
		owner_uid  VARCHAR NOT NULL,
		allowed    BLOB,
		pending    BLOB,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS map_meta (
		scope  VARCHAR NOT NULL,
		map_id VARCHAR NOT NULL,
		data   BLOB NOT NULL,
		PRIMARY KEY (scope, map_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_prefs (
		uid  VARCHAR PRIMARY KEY,
		data BLOB NOT NULL
	)`,
}

// DuckDBThreads is the worker thread count of databases opened afterwards.
var DuckDBThreads = 2

// NewDuckStore opens (or creates) the database at dbPath. An empty path opens
// an in-memory database.
func NewDuckStore(dbPath string) (*DuckStore, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	fmt.Printf("[DuckStore] Opening database at: %q\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA threads=%d", max(DuckDBThreads, 1)),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[DuckStore] Pragma warning: %v\n", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &DuckStore{db: db, dbPath: dbPath}, nil
}

// Name identifies the backend in logs and health output.
func (s *DuckStore) Name() string { return "duckdb" }

// Close closes the database.
func (s *DuckStore) Close() error {
	return s.db.Close()
}

const pinColumns = `id, map_id, layer_id, x, y, type, icon_url, image_url, note,
	profile_id, created_at, created_by, created_by_name, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPin(row rowScanner, scope string) (*models.Pin, error) {
	var p models.Pin
	var expires sql.NullTime
	err := row.Scan(&p.ID, &p.MapID, &p.LayerID, &p.X, &p.Y, &p.Type, &p.IconURL,
		&p.ImageURL, &p.Note, &p.ProfileID, &p.CreatedAt, &p.CreatedBy, &p.CreatedByName, &expires)
	if err != nil {
		return nil, err
	}
	p.RoomID = scope
	p.CreatedAt = p.CreatedAt.UTC()
	if expires.Valid {
		t := expires.Time.UTC()
		p.ExpiresAt = &t
	}
	return &p, nil
}

// ListPins returns the scope's pins in creation order.
func (s *DuckStore) ListPins(ctx context.Context, scope string) ([]models.Pin, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+pinColumns+" FROM pins WHERE scope = ? ORDER BY created_at, id", scope)
	if err != nil {
		return nil, fmt.Errorf("listing pins: %w", err)
	}
	defer rows.Close()

	pins := []models.Pin{}
	for rows.Next() {
		p, err := scanPin(rows, scope)
		if err != nil {
			return nil, fmt.Errorf("scanning pin: %w", err)
		}
		pins = append(pins, *p)
	}
	return pins, rows.Err()
}

// GetPin returns one pin.
func (s *DuckStore) GetPin(ctx context.Context, scope, id string) (*models.Pin, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pinColumns+" FROM pins WHERE scope = ? AND id = ?", scope, id)
	p, err := scanPin(row, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading pin: %w", err)
	}
	return p, nil
}

// CreatePin inserts a pin, generating an id when none is set.
func (s *DuckStore) CreatePin(ctx context.Context, scope string, pin *models.Pin) (string, error) {
	if pin.ID == "" {
		pin.ID = uuid.New().String()
	}
	pin.RoomID = scope
	pin.CreatedAt = pin.CreatedAt.UTC().Truncate(time.Microsecond)

	var expires any
	if pin.ExpiresAt != nil {
		t := pin.ExpiresAt.UTC().Truncate(time.Microsecond)
		pin.ExpiresAt = &t
		expires = t
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO pins (scope, `+pinColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scope, pin.ID, pin.MapID, pin.LayerID, pin.X, pin.Y, pin.Type, pin.IconURL,
		pin.ImageURL, pin.Note, pin.ProfileID, pin.CreatedAt, pin.CreatedBy, pin.CreatedByName, expires)
	if err != nil {
		return "", fmt.Errorf("inserting pin: %w", err)
	}
	return pin.ID, nil
}

// UpdatePin applies a partial update.
func (s *DuckStore) UpdatePin(ctx context.Context, scope, id string, patch models.PinPatch) error {
	if patch.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if patch.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *patch.Note)
	}
	if patch.ImageURL != nil {
		sets = append(sets, "image_url = ?")
		args = append(args, *patch.ImageURL)
	}
	if patch.IconURL != nil {
		sets = append(sets, "icon_url = ?")
		args = append(args, *patch.IconURL)
	}
	args = append(args, scope, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE pins SET "+strings.Join(sets, ", ")+" WHERE scope = ? AND id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeletePin removes one pin.
func (s *DuckStore) DeletePin(ctx context.Context, scope, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pins WHERE scope = ? AND id = ?", scope, id)
	if err != nil {
		return fmt.Errorf("deleting pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeletePins removes pins one statement at a time, stopping at the first failure.
func (s *DuckStore) DeletePins(ctx context.Context, scope string, ids []string) (int, error) {
	deleted := 0
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, "DELETE FROM pins WHERE scope = ? AND id = ?", scope, id)
		if err != nil {
			return deleted, fmt.Errorf("deleting pin %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}
	return deleted, nil
}

// CountPins counts the scope's pins.
func (s *DuckStore) CountPins(ctx context.Context, scope string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pins WHERE scope = ?", scope).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pins: %w", err)
	}
	return n, nil
}

// DeleteExpiredPins removes pins whose soft TTL passed before the given time.
func (s *DuckStore) DeleteExpiredPins(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pins WHERE expires_at IS NOT NULL AND expires_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired pins: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *DuckStore) readRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.Room
	var allowed, pending []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT room_id, owner_uid, allowed, pending, created_at, expires_at FROM rooms WHERE room_id = ?",
		roomID).Scan(&r.RoomID, &r.OwnerUID, &allowed, &pending, &r.CreatedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	if err := decodeList(allowed, &r.AllowedUsers); err != nil {
		return nil, err
	}
	if err := decodeList(pending, &r.Pending); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return &r, nil
}

func decodeList(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding room list: %w", err)
	}
	return nil
}

func (s *DuckStore) writeLists(ctx context.Context, r *models.Room) error {
	allowed, err := msgpack.Marshal(r.AllowedUsers)
	if err != nil {
		return err
	}
	pending, err := msgpack.Marshal(r.Pending)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE rooms SET allowed = ?, pending = ? WHERE room_id = ?",
		allowed, pending, r.RoomID)
	if err != nil {
		return fmt.Errorf("updating room: %w", err)
	}
	return nil
}

// CreateRoom inserts a room if the id is free.
func (s *DuckStore) CreateRoom(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readRoom(ctx, room.RoomID); err == nil {
		return fmt.Errorf("room %s: %w", room.RoomID, ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	allowed, err := msgpack.Marshal(room.AllowedUsers)
	if err != nil {
		return err
	}
	pending, err := msgpack.Marshal(room.Pending)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO rooms (room_id, owner_uid, allowed, pending, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		room.RoomID, room.OwnerUID, allowed, pending, room.CreatedAt.UTC(), room.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}
	return nil
}

// GetRoom returns a room.
func (s *DuckStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.readRoom(ctx, roomID)
}

// AddAllowed adds uid to the allow-list and drops its pending request.
func (s *DuckStore) AddAllowed(ctx context.Context, roomID, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.readRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !slices.Contains(r.AllowedUsers, uid) {
		r.AllowedUsers = append(r.AllowedUsers, uid)
	}
	r.Pending = slices.DeleteFunc(r.Pending, func(p models.PendingRequest) bool { return p.UID == uid })
	return s.writeLists(ctx, r)
}

// AddPending records a join request keyed by uid.
func (s *DuckStore) AddPending(ctx context.Context, roomID string, req models.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.readRoom(ctx, roomID)
	if err != nil {
		return err
	}
	r.Pending = slices.DeleteFunc(r.Pending, func(p models.PendingRequest) bool { return p.UID == req.UID })
	r.Pending = append(r.Pending, req)
	return s.writeLists(ctx, r)
}

// RemovePending drops uid's join request.
func (s *DuckStore) RemovePending(ctx context.Context, roomID, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.readRoom(ctx, roomID)
	if err != nil {
		return err
	}
	r.Pending = slices.DeleteFunc(r.Pending, func(p models.PendingRequest) bool { return p.UID == uid })
	return s.writeLists(ctx, r)
}

// DeleteRoom removes the room document only.
func (s *DuckStore) DeleteRoom(ctx context.Context, roomID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE room_id = ?", roomID)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

// RoomsForUser returns rooms whose allow-list contains uid, newest first.
func (s *DuckStore) RoomsForUser(ctx context.Context, uid string) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT room_id FROM rooms ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []models.Room
	for _, id := range ids {
		r, err := s.readRoom(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if slices.Contains(r.AllowedUsers, uid) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// ExpiredRooms lists rooms whose expiry passed before the given time.
func (s *DuckStore) ExpiredRooms(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT room_id FROM rooms WHERE expires_at < ?", before.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing expired rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMapMeta returns a map's metadata in a scope.
func (s *DuckStore) GetMapMeta(ctx context.Context, scope, mapID string) (*models.MapMeta, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM map_meta WHERE scope = ? AND map_id = ?",
		scope, mapID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("map meta %s/%s: %w", scope, mapID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading map meta: %w", err)
	}

	var meta models.MapMeta
	if err := msgpack.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding map meta: %w", err)
	}
	meta.UpdatedAt = meta.UpdatedAt.UTC()
	return &meta, nil
}

// PutMapMeta replaces a map's metadata.
func (s *DuckStore) PutMapMeta(ctx context.Context, scope string, meta *models.MapMeta) error {
	data, err := msgpack.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding map meta: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, "INSERT OR REPLACE INTO map_meta (scope, map_id, data) VALUES (?, ?, ?)",
		scope, meta.MapID, data)
	if err != nil {
		return fmt.Errorf("writing map meta: %w", err)
	}
	return nil
}

// DeleteMapMeta removes every map's metadata in a scope.
func (s *DuckStore) DeleteMapMeta(ctx context.Context, scope string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM map_meta WHERE scope = ?", scope)
	if err != nil {
		return 0, fmt.Errorf("deleting map meta: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetPrefs returns the stored preferences of uid.
func (s *DuckStore) GetPrefs(ctx context.Context, uid string) (*models.UserPrefs, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM user_prefs WHERE uid = ?", uid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prefs %s: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading prefs: %w", err)
	}

	var prefs models.UserPrefs
	if err := msgpack.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("decoding prefs: %w", err)
	}
	prefs.UpdatedAt = prefs.UpdatedAt.UTC()
	return &prefs, nil
}

// PutPrefs replaces the preferences of prefs.UID.
func (s *DuckStore) PutPrefs(ctx context.Context, prefs *models.UserPrefs) error {
	data, err := msgpack.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding prefs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "INSERT OR REPLACE INTO user_prefs (uid, data) VALUES (?, ?)", prefs.UID, data)
	if err != nil {
		return fmt.Errorf("writing prefs: %w", err)
	}
	return nil
}
