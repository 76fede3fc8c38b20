package viewport

import "github.com/tactical-map/backend/internal/models"

// MapLookup resolves catalog maps.
type MapLookup interface {
	Get(id string) (models.MapDef, bool)
}

// Controller holds the active map, layer and view transform of one client.
type Controller struct {
	maps  MapLookup
	view  Point
	mapID string
	layer string
	state State
}

// NewController creates a controller for a view of the given pixel size.
func NewController(maps MapLookup, view Point) *Controller {
	return &Controller{maps: maps, view: view, state: State{Scale: 1}}
}

// SwitchMap selects a map, resets the layer to its first layer (or none) and
// recenters the view. Unknown maps are ignored.
func (c *Controller) SwitchMap(mapID string) bool {
	def, ok := c.maps.Get(mapID)
	if !ok {
		return false
	}
	c.mapID = mapID
	c.layer = ""
	if def.HasLayers() {
		c.layer = def.Layers[0].ID
	}
	c.state = CenterOn(c.view, def)
	return true
}

// SetLayer selects a layer of the active map.
func (c *Controller) SetLayer(layerID string) bool {
	def, ok := c.maps.Get(c.mapID)
	if !ok {
		return false
	}
	for _, l := range def.Layers {
		if l.ID == layerID {
			c.layer = layerID
			return true
		}
	}
	return false
}

// MapID returns the active map.
func (c *Controller) MapID() string { return c.mapID }

// Layer returns the active layer, empty for maps without layers.
func (c *Controller) Layer() string { return c.layer }

// State returns the current transform.
func (c *Controller) State() State { return c.state }

// Set replaces the current transform, clamping its scale.
func (c *Controller) Set(v State) {
	v.Scale = ClampScale(v.Scale)
	c.state = v
}

// ZoomCenter zooms to scale around the middle of the view.
func (c *Controller) ZoomCenter(scale float64) {
	c.Set(c.state.ZoomAt(scale, Point{X: c.view.X / 2, Y: c.view.Y / 2}))
}

// PlacePoint converts a click to map space and reports whether it lies on the map.
func (c *Controller) PlacePoint(screen Point) (Point, bool) {
	def, ok := c.maps.Get(c.mapID)
	if !ok {
		return Point{}, false
	}
	m := c.state.ScreenToMap(screen)
	return m, def.Contains(m.X, m.Y)
}
