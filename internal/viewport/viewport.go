// Package viewport implements the pan/zoom transform between map space and
// screen space: screen = map*scale + offset.
package viewport

import (
	"math"

	"github.com/tactical-map/backend/internal/models"
)

const (
	MinScale         = 0.2
	MaxScale         = 5.0
	CenterScale      = 0.4
	WheelSensitivity = 0.001
)

// Point is a 2D coordinate in either screen or map space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is the affine map from map space to screen space.
type State struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Scale   float64 `json:"scale"`
}

// ClampScale limits s to [MinScale, MaxScale].
func ClampScale(s float64) float64 {
	return math.Min(math.Max(MinScale, s), MaxScale)
}

// ScreenToMap converts a screen point to map coordinates.
func (v State) ScreenToMap(p Point) Point {
	return Point{
		X: (p.X - v.OffsetX) / v.Scale,
		Y: (p.Y - v.OffsetY) / v.Scale,
	}
}

// MapToScreen converts a map point to screen coordinates.
func (v State) MapToScreen(p Point) Point {
	return Point{
		X: p.X*v.Scale + v.OffsetX,
		Y: p.Y*v.Scale + v.OffsetY,
	}
}

// ZoomAt returns the state scaled to newScale (clamped) with the map point
// under focal left in place.
func (v State) ZoomAt(newScale float64, focal Point) State {
	s := ClampScale(newScale)
	m := v.ScreenToMap(focal)
	return State{
		OffsetX: focal.X - m.X*s,
		OffsetY: focal.Y - m.Y*s,
		Scale:   s,
	}
}

// Wheel applies a wheel event anchored at the cursor.
func (v State) Wheel(deltaY float64, cursor Point) State {
	return v.ZoomAt(v.Scale-deltaY*WheelSensitivity, cursor)
}

// Pan moves the view by a screen-space delta.
func (v State) Pan(dx, dy float64) State {
	v.OffsetX += dx
	v.OffsetY += dy
	return v
}

// Center fits a map of the given size into a view at CenterScale.
func Center(view Point, mapWidth, mapHeight float64) State {
	return State{
		OffsetX: view.X/2 - mapWidth*CenterScale/2,
		OffsetY: view.Y/2 - mapHeight*CenterScale/2,
		Scale:   CenterScale,
	}
}

// CenterOn is Center for a catalog map.
func CenterOn(view Point, def models.MapDef) State {
	return Center(view, def.Width, def.Height)
}
