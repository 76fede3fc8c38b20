package api

import (
	"context"
	"encoding/base64"
	"image"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/session"
)

type pinList struct {
	Pins  []models.Pin `json:"pins" msgpack:"pins"`
	Total int          `json:"total" msgpack:"total"`
}

func (f *apiFixture) addPin(t *testing.T, uid, room string, in pins.AddInput) models.Pin {
	t.Helper()
	target := "/api/pins"
	if room != "" {
		target += "?room=" + room
	}
	rec := f.do(t, http.MethodPost, target, uid, in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pin models.Pin
	decodeBody(t, rec, &pin)
	return pin
}

func TestPinHandler_HandleAddPin(t *testing.T) {
	tests := []struct {
		name       string
		input      pins.AddInput
		wantStatus int
		wantCode   string
	}{
		{
			name:       "valid pin",
			input:      pins.AddInput{MapID: "dam", X: 100, Y: 200, Type: "ammo"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "layered map",
			input:      pins.AddInput{MapID: "stella", LayerID: "lower", X: 10, Y: 10, Type: "hatch"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing map",
			input:      pins.AddInput{X: 1, Y: 1, Type: "ammo"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "missing type",
			input:      pins.AddInput{MapID: "dam", X: 1, Y: 1},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown map",
			input:      pins.AddInput{MapID: "moon", X: 1, Y: 1, Type: "ammo"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "UNKNOWN_MAP",
		},
		{
			name:       "missing layer",
			input:      pins.AddInput{MapID: "stella", X: 1, Y: 1, Type: "ammo"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "UNKNOWN_LAYER",
		},
		{
			name:       "out of bounds",
			input:      pins.AddInput{MapID: "dam", X: 5000, Y: 1, Type: "ammo"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "OUT_OF_BOUNDS",
		},
		{
			name:       "unknown marker",
			input:      pins.AddInput{MapID: "dam", X: 1, Y: 1, Type: "ufo"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "UNKNOWN_MARKER",
		},
		{
			name:       "note too long",
			input:      pins.AddInput{MapID: "dam", X: 1, Y: 1, Type: "ammo", Note: strings.Repeat("x", 301)},
			wantStatus: http.StatusBadRequest,
			wantCode:   "NOTE_TOO_LONG",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil)
			rec := f.do(t, http.MethodPost, "/api/pins", "alice", tt.input)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				assert.Zero(t, f.backend.PinCount("local-alice"))
			}
		})
	}
}

func TestPinHandler_CRUD(t *testing.T) {
	f := newAPIFixture(t, nil)

	pin := f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 100, Y: 200, Type: "ammo", Note: "north gate"})
	assert.Equal(t, "alice", pin.CreatedBy)
	assert.Equal(t, models.DefaultProfile, pin.ProfileID)
	f.addPin(t, "alice", "", pins.AddInput{MapID: "spaceport", X: 5, Y: 5, Type: "med"})

	rec := f.do(t, http.MethodGet, "/api/pins?map=dam", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list pinList
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, pin.ID, list.Pins[0].ID)

	// Another local user sees nothing.
	rec = f.do(t, http.MethodGet, "/api/pins?map=dam", "bob", nil)
	decodeBody(t, rec, &list)
	assert.Equal(t, 0, list.Total)

	rec = f.do(t, http.MethodGet, "/api/pins?map=dam&hidden=ammo,med", "alice", nil)
	decodeBody(t, rec, &list)
	assert.Equal(t, 0, list.Total)

	rec = f.do(t, http.MethodPatch, "/api/pins/"+pin.ID+"/note", "alice", noteRequest{Note: "south gate  \n"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/pins/"+pin.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Pin
	decodeBody(t, rec, &got)
	assert.Equal(t, "south gate", got.Note)

	rec = f.do(t, http.MethodPut, "/api/pins/"+pin.ID+"/icon", "alice", iconRequest{Icon: "data:image/png;base64,AAAA"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/pins/"+pin.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/pins/"+pin.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PIN_NOT_FOUND", errorCode(t, rec))

	rec = f.do(t, http.MethodDelete, "/api/pins/"+pin.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPinHandler_HandleListPinsMsgpack(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 1, Y: 2, Type: "ammo"})
	f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 3, Y: 4, Type: "med"})

	rec := f.do(t, http.MethodGet, "/api/pins/msgpack?map=dam", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))

	var list pinList
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Pins, 2)
}

func TestPinHandler_HandleUpdateImage(t *testing.T) {
	photo := testPNG(t, 1200, 400, image.Rect(100, 100, 300, 300))
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(photo)

	tests := []struct {
		name       string
		compress   bool
		image      string
		wantStatus int
		wantPrefix string
	}{
		{"stored as sent", false, dataURL, http.StatusOK, "data:image/png;base64,"},
		{"compressed to jpeg", true, dataURL, http.StatusOK, "data:image/jpeg;base64,"},
		{"removed", true, "", http.StatusOK, ""},
		{"not an image", true, "ftp://example.com/a.png", http.StatusBadRequest, ""},
		{"undecodable", true, "data:image/png;base64,bm90IGFuIGltYWdl", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, func(d *Dependencies) { d.CompressPhotos = tt.compress })
			pin := f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 1, Y: 1, Type: "ammo"})

			rec := f.do(t, http.MethodPut, "/api/pins/"+pin.ID+"/image", "alice", imageRequest{Image: tt.image})
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			scope, _ := session.Resolve("", models.Identity{UID: "alice"})
			stored, err := f.pins.Get(context.Background(), scope, pin.ID)
			require.NoError(t, err)
			if tt.wantPrefix == "" {
				assert.Empty(t, stored.ImageURL)
				return
			}
			assert.True(t, strings.HasPrefix(stored.ImageURL, tt.wantPrefix), stored.ImageURL[:32])
		})
	}
}

func TestPinHandler_Marks(t *testing.T) {
	f := newAPIFixture(t, nil)
	pin := f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 1, Y: 1, Type: "ammo"})

	rec := f.do(t, http.MethodPost, "/api/pins/"+pin.ID+"/mark", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":["`+pin.ID+`"]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/pins/marked", "alice", nil)
	assert.JSONEq(t, `{"marked":["`+pin.ID+`"]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/pins/pin-9999/mark", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/pins/"+pin.ID+"/mark", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":[]}`, rec.Body.String())
}

func TestPinHandler_BulkDelete(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 1, Y: 1, Type: "ammo"})
	f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 2, Y: 2, Type: "ammo"})
	f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: 3, Y: 3, Type: "med"})

	rec := f.do(t, http.MethodPost, "/api/pins/bulk-delete", "alice", bulkDeleteRequest{Type: "ammo", Confirm: "wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorCode(t, rec))
	assert.Equal(t, 3, f.backend.PinCount("local-alice"))

	rec = f.do(t, http.MethodPost, "/api/pins/bulk-delete", "alice", bulkDeleteRequest{Type: "ammo", Confirm: "local"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res pins.BulkResult
	decodeBody(t, rec, &res)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 1, f.backend.PinCount("local-alice"))

	rec = f.do(t, http.MethodPost, "/api/pins/bulk-delete", "alice", bulkDeleteRequest{Confirm: "local"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.backend.PinCount("local-alice"))
}

func TestPinHandler_SharedRoomBulkDelete(t *testing.T) {
	f := newAPIFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/rooms", "alice", createRoomRequest{RoomID: "ROOM01"})
	require.Equal(t, http.StatusCreated, rec.Code)
	f.do(t, http.MethodPost, "/api/rooms/ROOM01/join", "bob", nil)
	f.do(t, http.MethodPost, "/api/rooms/ROOM01/approve", "alice", pendingDecisionRequest{UID: "bob"})

	f.addPin(t, "bob", "ROOM01", pins.AddInput{MapID: "dam", X: 1, Y: 1, Type: "ammo"})
	f.addPin(t, "alice", "ROOM01", pins.AddInput{MapID: "dam", X: 2, Y: 2, Type: "med"})

	// Members may add pins but not clear the room.
	rec = f.do(t, http.MethodPost, "/api/pins/bulk-delete?room=ROOM01", "bob", bulkDeleteRequest{Confirm: "ROOM01"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_OWNER", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/pins/purge?room=ROOM01", "alice", bulkDeleteRequest{Confirm: "ROOM01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res pins.BulkResult
	decodeBody(t, rec, &res)
	assert.Equal(t, 2, res.Deleted)
	assert.True(t, res.RoomDeleted)

	rec = f.do(t, http.MethodGet, "/api/rooms/ROOM01/access", "alice", nil)
	var access session.Access
	decodeBody(t, rec, &access)
	assert.Equal(t, models.RoleNone, access.Role)
}

func TestPinHandler_PartialBulkDelete(t *testing.T) {
	f := newAPIFixture(t, nil)
	for i := 0; i < 3; i++ {
		f.addPin(t, "alice", "", pins.AddInput{MapID: "dam", X: float64(i), Y: 1, Type: "ammo"})
	}
	f.backend.FailDeletesAfter = 1

	rec := f.do(t, http.MethodPost, "/api/pins/bulk-delete", "alice", bulkDeleteRequest{Confirm: "local"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Code    string          `json:"code"`
		Partial pins.BulkResult `json:"partial"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.Equal(t, 1, body.Partial.Deleted)
}
