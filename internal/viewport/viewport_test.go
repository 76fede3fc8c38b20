package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactical-map/backend/internal/catalog"
)

const eps = 1e-9

func assertPoint(t *testing.T, want, got Point) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps)
	assert.InDelta(t, want.Y, got.Y, eps)
}

func TestZoomAt_FocalPointIsFixed(t *testing.T) {
	states := []State{
		{OffsetX: 0, OffsetY: 0, Scale: 1},
		{OffsetX: -350.5, OffsetY: 120.25, Scale: 0.4},
		{OffsetX: 900, OffsetY: -40, Scale: 3.7},
	}
	focals := []Point{{0, 0}, {640, 360}, {1919, 7.5}, {-20, 4000}}
	scales := []float64{0.2, 0.33, 1, 2.5, 5}

	for _, v := range states {
		for _, p := range focals {
			for _, s := range scales {
				before := v.ScreenToMap(p)
				after := v.ZoomAt(s, p)
				require.InDelta(t, s, after.Scale, eps)
				assertPoint(t, before, after.ScreenToMap(p))
			}
		}
	}
}

func TestZoomAt_Clamps(t *testing.T) {
	v := State{Scale: 1}
	assert.Equal(t, MinScale, v.ZoomAt(0.01, Point{}).Scale)
	assert.Equal(t, MaxScale, v.ZoomAt(50, Point{}).Scale)

	// The anchor still holds when the requested scale is clamped.
	p := Point{X: 300, Y: 200}
	assertPoint(t, v.ScreenToMap(p), v.ZoomAt(50, p).ScreenToMap(p))
}

func TestWheel(t *testing.T) {
	v := State{Scale: 1}
	cursor := Point{X: 100, Y: 100}

	in := v.Wheel(-100, cursor)
	assert.InDelta(t, 1.1, in.Scale, eps)
	assertPoint(t, v.ScreenToMap(cursor), in.ScreenToMap(cursor))

	out := v.Wheel(100, cursor)
	assert.InDelta(t, 0.9, out.Scale, eps)
}

func TestScreenMapRoundTrip(t *testing.T) {
	v := State{OffsetX: 12, OffsetY: -7, Scale: 0.75}
	m := Point{X: 1234.5, Y: 87}
	assertPoint(t, m, v.ScreenToMap(v.MapToScreen(m)))
}

func TestDrag(t *testing.T) {
	var d Drag
	v := State{OffsetX: 10, OffsetY: 20, Scale: 2}

	assert.Equal(t, v, d.Move(v, Point{X: 99, Y: 99}), "no drag in progress")

	d.Begin(v, Point{X: 100, Y: 100})
	moved := d.Move(v, Point{X: 130, Y: 90})
	assert.Equal(t, 40.0, moved.OffsetX)
	assert.Equal(t, 10.0, moved.OffsetY)
	assert.Equal(t, 2.0, moved.Scale)

	d.End()
	assert.False(t, d.Active())
}

func TestPinch(t *testing.T) {
	var p Pinch
	v := State{Scale: 1}

	p.Begin(Point{X: 100, Y: 100}, Point{X: 200, Y: 100})
	centroid := Point{X: 150, Y: 100}
	under := v.ScreenToMap(centroid)

	// Fingers spread apart symmetrically: zoom 2x around the centroid.
	next := p.Move(v, Point{X: 50, Y: 100}, Point{X: 250, Y: 100})
	assert.InDelta(t, 2.0, next.Scale, eps)
	assertPoint(t, under, next.ScreenToMap(centroid))

	// Both fingers move right by 30: pure pan.
	panned := p.Move(next, Point{X: 80, Y: 100}, Point{X: 280, Y: 100})
	assert.InDelta(t, next.Scale, panned.Scale, eps)
	assert.InDelta(t, next.OffsetX+30, panned.OffsetX, eps)
	assert.InDelta(t, next.OffsetY, panned.OffsetY, eps)
}

func TestCenter(t *testing.T) {
	v := Center(Point{X: 1600, Y: 900}, 2000, 2000)
	assert.Equal(t, CenterScale, v.Scale)
	assert.InDelta(t, 400, v.OffsetX, eps)
	assert.InDelta(t, 50, v.OffsetY, eps)
}

func TestController_SwitchMap(t *testing.T) {
	maps := catalog.NewMaps()
	view := Point{X: 1280, Y: 720}
	c := NewController(maps, view)

	require.True(t, c.SwitchMap("stella"))
	assert.Equal(t, "upper", c.Layer(), "layered map selects its first layer")
	assert.Equal(t, Center(view, 2400, 1600), c.State())

	require.True(t, c.SetLayer("lower"))
	c.Set(c.State().ZoomAt(3, Point{X: 10, Y: 10}))

	require.True(t, c.SwitchMap("dam"))
	assert.Equal(t, "", c.Layer(), "flat map has no layer")
	assert.Equal(t, Center(view, 2000, 2000), c.State(), "view is recentered")

	assert.False(t, c.SwitchMap("moon"))
	assert.Equal(t, "dam", c.MapID())
	assert.False(t, c.SetLayer("upper"))
}

func TestController_PlacePoint(t *testing.T) {
	c := NewController(catalog.NewMaps(), Point{X: 1000, Y: 1000})
	require.True(t, c.SwitchMap("dam"))

	s := c.State()
	inside, ok := c.PlacePoint(s.MapToScreen(Point{X: 500, Y: 500}))
	assert.True(t, ok)
	assertPoint(t, Point{X: 500, Y: 500}, inside)

	_, ok = c.PlacePoint(Point{X: s.OffsetX - 10, Y: s.OffsetY})
	assert.False(t, ok)
}

func TestController_SetAndZoomCenter(t *testing.T) {
	view := Point{X: 1000, Y: 800}
	c := NewController(catalog.NewMaps(), view)
	require.True(t, c.SwitchMap("dam"))

	middle := Point{X: 500, Y: 400}
	before := c.State().ScreenToMap(middle)
	c.ZoomCenter(2)
	assert.InDelta(t, 2, c.State().Scale, eps)
	assertPoint(t, before, c.State().ScreenToMap(middle))

	c.Set(State{OffsetX: 5, OffsetY: 6, Scale: 40})
	assert.Equal(t, State{OffsetX: 5, OffsetY: 6, Scale: MaxScale}, c.State())
}
