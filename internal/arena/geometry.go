// Package arena implements polygon queries over an arena's walkable zones:
// containment, centroid, bounding box, spawn placement and boundary sliding.
//
// Every function is total. Polygons with fewer than three vertices never
// cause an error; they resolve to the documented fallbacks instead.
package arena

import (
	"math"

	"github.com/battlearena/combat-engine/pkg/core"
)

// adjustSteps is how many halving steps AdjustIntoPolygon takes toward the centroid.
const adjustSteps = 12

// Box is an axis-aligned bounding box.
type Box struct {
	MinX, MaxX, MinY, MaxY float64
}

// Width of the box.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// PointInPolygon is a ray-crossing containment test. The polygon is implicitly
// closed; an empty polygon contains nothing.
func PointInPolygon(polygon []core.Vector, x, y float64) bool {
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		xi, yi := polygon[i].X, polygon[i].Y
		xj, yj := polygon[j].X, polygon[j].Y
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// PolygonCentroid returns the signed-area weighted centroid, or the vertex
// mean when the area is zero.
func PolygonCentroid(polygon []core.Vector) core.Vector {
	if len(polygon) == 0 {
		return core.Vector{}
	}

	var area, cx, cy float64
	for i := range polygon {
		p1 := polygon[i]
		p2 := polygon[(i+1)%len(polygon)]
		cross := p1.X*p2.Y - p2.X*p1.Y
		area += cross
		cx += (p1.X + p2.X) * cross
		cy += (p1.Y + p2.Y) * cross
	}
	area *= 0.5

	if area == 0 {
		var sx, sy float64
		for _, p := range polygon {
			sx += p.X
			sy += p.Y
		}
		n := float64(len(polygon))
		return core.Vector{X: sx / n, Y: sy / n}
	}

	return core.Vector{X: cx / (6 * area), Y: cy / (6 * area)}
}

// BoundingBox of the polygon; an empty polygon yields a zero box at the origin.
func BoundingBox(polygon []core.Vector) Box {
	if len(polygon) == 0 {
		return Box{}
	}
	b := Box{MinX: polygon[0].X, MaxX: polygon[0].X, MinY: polygon[0].Y, MaxY: polygon[0].Y}
	for _, p := range polygon[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// AdjustIntoPolygon returns target if it is inside. Otherwise it moves halfway
// toward centroid up to 12 times and returns the first interior point, falling
// back to the centroid itself.
func AdjustIntoPolygon(target core.Vector, polygon []core.Vector, centroid core.Vector) core.Vector {
	if PointInPolygon(polygon, target.X, target.Y) {
		return target
	}
	x, y := target.X, target.Y
	for range adjustSteps {
		x = (x + centroid.X) * 0.5
		y = (y + centroid.Y) * 0.5
		if PointInPolygon(polygon, x, y) {
			return core.Vector{X: x, Y: y}
		}
	}
	return centroid
}

// ClosestEdgeDir returns the direction (p2 - p1) of the edge whose midpoint is
// nearest to (x, y). ok is false for an empty polygon.
func ClosestEdgeDir(polygon []core.Vector, x, y float64) (dir core.Vector, ok bool) {
	best := math.Inf(1)
	for i := range polygon {
		p1 := polygon[i]
		p2 := polygon[(i+1)%len(polygon)]
		mx := (p1.X + p2.X) * 0.5
		my := (p1.Y + p2.Y) * 0.5
		if d := math.Hypot(x-mx, y-my); d < best {
			best = d
			dir = core.Vector{X: p2.X - p1.X, Y: p2.Y - p1.Y}
			ok = true
		}
	}
	return dir, ok
}

// ProjectVector projects v onto the direction t. A zero t projects to zero.
func ProjectVector(v, t core.Vector) core.Vector {
	lenSq := t.X*t.X + t.Y*t.Y
	if lenSq == 0 {
		return core.Vector{}
	}
	scale := (v.X*t.X + v.Y*t.Y) / lenSq
	return core.Vector{X: t.X * scale, Y: t.Y * scale}
}

// SlideWithinPolygon moves from by (moveX, moveY) if the target is inside.
// Otherwise it projects the move onto the nearest edge and tries that.
// ok is false when neither position is inside; callers keep the old position.
func SlideWithinPolygon(from core.Vector, moveX, moveY float64, polygon []core.Vector) (core.Vector, bool) {
	target := core.Vector{X: from.X + moveX, Y: from.Y + moveY}
	if PointInPolygon(polygon, target.X, target.Y) {
		return target, true
	}

	edge, ok := ClosestEdgeDir(polygon, from.X, from.Y)
	if !ok {
		return core.Vector{}, false
	}

	projected := ProjectVector(core.Vector{X: moveX, Y: moveY}, edge)
	slide := from.Add(projected)
	if PointInPolygon(polygon, slide.X, slide.Y) {
		return slide, true
	}
	return core.Vector{}, false
}
