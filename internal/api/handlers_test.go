package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactical-map/backend/internal/catalog"
	"github.com/tactical-map/backend/internal/gamedata"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/prefs"
	"github.com/tactical-map/backend/internal/realtime"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/testutil"
)

type apiFixture struct {
	e        *echo.Echo
	backend  *testutil.MockBackend
	rooms    *session.Manager
	pins     *pins.Service
	files    *testutil.MockStorage
	hub      *realtime.Hub
	registry *catalog.Registry
	gamedata *gamedata.Store
}

func newAPIFixture(t *testing.T, mutate func(*Dependencies)) *apiFixture {
	t.Helper()

	backend := testutil.NewMockBackend()
	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)
	rooms := session.NewManager(backend, session.WithPublisher(hub))
	registry, err := catalog.NewRegistry("")
	require.NoError(t, err)
	maps := catalog.NewMaps()

	limits := pins.DefaultLimits()
	limits.CreateInterval = 0
	limits.NoteInterval = 0
	limits.ImageInterval = 0

	svc := pins.NewService(pins.Config{
		Local:     backend,
		Gate:      rooms,
		Markers:   registry,
		Maps:      maps,
		Publisher: hub,
		Limits:    limits,
	})

	store, err := gamedata.NewStore("")
	require.NoError(t, err)
	files := testutil.NewMockStorage(t.TempDir())

	deps := &Dependencies{
		Rooms:         rooms,
		Pins:          svc,
		Markers:       registry,
		Maps:          maps,
		Files:         files,
		GameData:      store,
		Hub:           hub,
		Prefs:         prefs.NewService(prefs.Config{Store: backend, Markers: registry, MaxIconBytes: 1024, MaxLibrary: 2}),
		Admins:        []string{"root"},
		Version:       "test",
		LocalBackend:  "mock",
		SharedBackend: "mock",
		Snapshots:     SnapshotOptions{Tolerance: 12, Padding: 0},
	}
	if mutate != nil {
		mutate(deps)
	}

	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(deps), deps.Verifier)

	return &apiFixture{
		e:        e,
		backend:  backend,
		rooms:    rooms,
		pins:     svc,
		files:    files,
		hub:      hub,
		registry: registry,
		gamedata: store,
	}
}

// do sends a JSON request as uid through the full router.
func (f *apiFixture) do(t *testing.T, method, target, uid string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if uid != "" {
		req.Header.Set(HeaderUserID, uid)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

// upload sends data as the "file" field of a multipart form on behalf of alice.
func (f *apiFixture) upload(t *testing.T, target, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	return f.uploadAs(t, target, filename, "alice", data)
}

func (f *apiFixture) uploadAs(t *testing.T, target, filename, uid string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	if uid != "" {
		req.Header.Set(HeaderUserID, uid)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var apiErr APIError
	decodeBody(t, rec, &apiErr)
	return apiErr.Code
}

// testPNG draws a dark square on a white w x h canvas.
func testPNG(t *testing.T, w, h int, square image.Rectangle) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if (image.Point{X: x, Y: y}).In(square) {
				c = color.RGBA{20, 20, 20, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealthHandler(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string            `json:"status"`
		Version string            `json:"version"`
		Storage map[string]string `json:"storage"`
		Auth    string            `json:"auth"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "mock", body.Storage["shared"])
	assert.Equal(t, "header", body.Auth)
}

func TestCatalogHandlers(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/markers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fallback":{"id":"unknown"`)

	rec = f.do(t, http.MethodGet, "/api/maps", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"stella"`)

	rec = f.do(t, http.MethodGet, "/api/markers/med", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"marker":{"id":"med"`)

	rec = f.do(t, http.MethodGet, "/api/markers/deleted_type", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"marker":{"id":"unknown"`)
	assert.Contains(t, rec.Body.String(), `"category":{"id":"others"`)

	tests := []struct {
		name       string
		body       addMarkerRequest
		wantStatus int
		wantCode   string
	}{
		{"valid", addMarkerRequest{Label: "Safe", Category: "containers"}, http.StatusCreated, ""},
		{"missing label", addMarkerRequest{Category: "containers"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing category", addMarkerRequest{Label: "Safe"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown category", addMarkerRequest{Label: "Safe", Category: "vehicles"}, http.StatusBadRequest, "UNKNOWN_CATEGORY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/markers", "alice", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
		})
	}

	rec = f.do(t, http.MethodPost, "/api/markers", "", addMarkerRequest{Label: "Crate", Category: "containers"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "IDENTITY_REQUIRED", errorCode(t, rec))

	custom := f.registry.Custom()
	require.Len(t, custom, 1)
	assert.Equal(t, "alice", custom[0].CreatedBy)

	rec = f.do(t, http.MethodDelete, "/api/markers/"+custom[0].ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/markers/"+custom[0].ID, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_CREATOR", errorCode(t, rec))
	require.Len(t, f.registry.Custom(), 1)

	rec = f.do(t, http.MethodDelete, "/api/markers/"+custom[0].ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/markers/ammo", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BUILTIN_MARKER", errorCode(t, rec))
}

func TestGameDataHandlers(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/gamedata/cards?cat=vehicles", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = f.do(t, http.MethodGet, "/api/gamedata/cards", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)

	rec = f.do(t, http.MethodGet, "/api/gamedata/dataset", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name       string
		uid        string
		wantStatus int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"not an admin", "alice", http.StatusForbidden},
		{"admin", "root", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run("reload/"+tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/gamedata/reload", tt.uid, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestGameDataHandler_Cards(t *testing.T) {
	path := t.TempDir() + "/data.json"
	ds := gamedata.Empty()
	ds.Weapons = []gamedata.Row{{"id": "w1", "name_en": "Ferro"}}
	ds.Items = []gamedata.Row{{"id": "i1", "name_en": "Battery"}}
	require.NoError(t, gamedata.Save(path, ds))

	store, err := gamedata.NewStore(path)
	require.NoError(t, err)
	handler := NewGameDataHandler(store)

	tests := []struct {
		name      string
		query     string
		wantTotal int
	}{
		{"all", "", 2},
		{"weapons only", "?cat=weapons", 1},
		{"by name", "?q=batt", 1},
		{"no match", "?q=zzz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/gamedata/cards"+tt.query, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, handler.HandleGetCards(c))
			var body struct {
				Total int `json:"total"`
			}
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.wantTotal, body.Total)
		})
	}
}
