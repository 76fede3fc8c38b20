package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactical-map/backend/internal/models"
)

func TestPrefsHandler_Icons(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/prefs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tests := []struct {
		name       string
		markerType string
		icon       string
		wantStatus int
		wantCode   string
	}{
		{"valid", "ammo", "https://example.com/ammo.png", http.StatusOK, ""},
		{"missing icon", "ammo", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown marker", "ghost", "https://example.com/g.png", http.StatusBadRequest, "UNKNOWN_MARKER"},
		{"too large", "med", "data:image/png;base64," + strings.Repeat("A", 2048), http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPut, "/api/prefs/icons/"+tt.markerType, "alice", iconRequest{Icon: tt.icon})
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
		})
	}

	var alice models.UserPrefs
	rec = f.do(t, http.MethodGet, "/api/prefs", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &alice)
	assert.Equal(t, map[string]string{"ammo": "https://example.com/ammo.png"}, alice.IconOverrides)

	var bob models.UserPrefs
	rec = f.do(t, http.MethodGet, "/api/prefs", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &bob)
	assert.Empty(t, bob.IconOverrides)

	rec = f.do(t, http.MethodDelete, "/api/prefs/icons/ammo", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &alice)
	assert.Empty(t, alice.IconOverrides)
}

func TestPrefsHandler_Library(t *testing.T) {
	f := newAPIFixture(t, nil)

	var first models.IconEntry
	rec := f.do(t, http.MethodPost, "/api/prefs/library", "alice", iconRequest{Name: "skull", Icon: "https://example.com/s.png"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeBody(t, rec, &first)
	assert.Equal(t, "skull", first.Name)

	rec = f.do(t, http.MethodPost, "/api/prefs/library", "alice", iconRequest{Icon: "https://example.com/b.png"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/prefs/library", "alice", iconRequest{Icon: "https://example.com/c.png"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LIBRARY_FULL", errorCode(t, rec))

	rec = f.do(t, http.MethodDelete, "/api/prefs/library/"+first.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ICON_NOT_FOUND", errorCode(t, rec))

	var p models.UserPrefs
	rec = f.do(t, http.MethodDelete, "/api/prefs/library/"+first.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &p)
	require.Len(t, p.IconLibrary, 1)
	assert.NotEqual(t, first.ID, p.IconLibrary[0].ID)
}
