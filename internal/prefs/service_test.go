package prefs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactical-map/backend/internal/catalog"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/testutil"
)

func newService(t *testing.T) (*Service, *testutil.MockBackend) {
	t.Helper()
	backend := testutil.NewMockBackend()
	registry, err := catalog.NewRegistry("")
	require.NoError(t, err)
	clock := testutil.NewFakeClock()
	return NewService(Config{
		Store:        backend,
		Markers:      registry,
		MaxIconBytes: 64,
		MaxLibrary:   2,
		Now:          clock.Now,
	}), backend
}

func TestGet_EmptyByDefault(t *testing.T) {
	svc, _ := newService(t)

	p, err := svc.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UID)
	assert.Empty(t, p.IconOverrides)
	assert.Empty(t, p.IconLibrary)

	_, err = svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrIdentityRequired)
}

func TestSetIcon(t *testing.T) {
	tests := []struct {
		name       string
		markerType string
		url        string
		wantErr    error
	}{
		{"override", "ammo", "/icons/ammo.png", nil},
		{"unknown marker", "dragon", "/icons/d.png", ErrUnknownMarker},
		{"empty icon", "ammo", "  ", ErrEmptyIcon},
		{"too large", "ammo", "data:" + strings.Repeat("A", 100), ErrIconTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			ctx := context.Background()

			p, err := svc.SetIcon(ctx, "alice", tt.markerType, tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.url, p.IconOverrides[tt.markerType])
			assert.False(t, p.UpdatedAt.IsZero())
		})
	}
}

func TestOverridesArePerUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SetIcon(ctx, "alice", "ammo", "/a.png")
	require.NoError(t, err)

	bob, err := svc.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bob.IconOverrides)

	alice, err := svc.ClearIcon(ctx, "alice", "ammo")
	require.NoError(t, err)
	assert.Empty(t, alice.IconOverrides)
}

func TestIconLibrary(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.AddIcon(ctx, "alice", " crate ", "/crate.png")
	require.NoError(t, err)
	assert.Equal(t, "crate", first.Name)

	_, err = svc.AddIcon(ctx, "alice", "door", "/door.png")
	require.NoError(t, err)

	_, err = svc.AddIcon(ctx, "alice", "key", "/key.png")
	assert.ErrorIs(t, err, ErrLibraryFull)

	p, err := svc.RemoveIcon(ctx, "alice", first.ID)
	require.NoError(t, err)
	require.Len(t, p.IconLibrary, 1)
	assert.Equal(t, "door", p.IconLibrary[0].Name)

	_, err = svc.RemoveIcon(ctx, "alice", first.ID)
	assert.ErrorIs(t, err, ErrIconNotFound)
}

func TestSaveFailureKeepsStoredPrefs(t *testing.T) {
	svc, backend := newService(t)
	ctx := context.Background()

	_, err := svc.SetIcon(ctx, "alice", "ammo", "/a.png")
	require.NoError(t, err)

	backend.FailWrites = true
	_, err = svc.SetIcon(ctx, "alice", "ammo", "/b.png")
	assert.ErrorIs(t, err, testutil.ErrInjected)

	p, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "/a.png", p.IconOverrides["ammo"])
}
