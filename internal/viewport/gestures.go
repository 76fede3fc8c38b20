package viewport

import "math"

// Drag tracks a single-pointer pan. The anchor is the pointer position
// relative to the offset when the drag began.
type Drag struct {
	active bool
	anchor Point
}

// Begin starts a drag at pointer p.
func (d *Drag) Begin(v State, p Point) {
	d.active = true
	d.anchor = Point{X: p.X - v.OffsetX, Y: p.Y - v.OffsetY}
}

// Move returns the state with the drag applied. Without an active drag v is returned unchanged.
func (d *Drag) Move(v State, p Point) State {
	if !d.active {
		return v
	}
	v.OffsetX = p.X - d.anchor.X
	v.OffsetY = p.Y - d.anchor.Y
	return v
}

// End finishes the drag.
func (d *Drag) End() {
	d.active = false
}

// Active reports whether a drag is in progress.
func (d *Drag) Active() bool {
	return d.active
}

// Pinch tracks a two-finger gesture between successive touch-move frames.
type Pinch struct {
	active   bool
	centroid Point
	distance float64
}

func touchMetrics(a, b Point) (Point, float64) {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}, math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Begin records the first two-finger frame.
func (p *Pinch) Begin(a, b Point) {
	p.centroid, p.distance = touchMetrics(a, b)
	p.active = true
}

// Move applies the change since the previous frame: the view zooms by the
// distance ratio around the previous centroid and pans by the centroid delta.
func (p *Pinch) Move(v State, a, b Point) State {
	c, dist := touchMetrics(a, b)
	if !p.active || p.distance == 0 {
		p.centroid, p.distance, p.active = c, dist, true
		return v
	}

	next := v.ZoomAt(v.Scale*dist/p.distance, p.centroid)
	next = next.Pan(c.X-p.centroid.X, c.Y-p.centroid.Y)

	p.centroid, p.distance = c, dist
	return next
}

// End finishes the gesture.
func (p *Pinch) End() {
	p.active = false
}
