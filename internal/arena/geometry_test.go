package arena

import (
	"math"
	"testing"

	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func square(size float64) []core.Vector {
	return []core.Vector{{X: 0, Y: 0}, {X: size, Y: 0}, {X: size, Y: size}, {X: 0, Y: size}}
}

// lShape is concave: the top-right quadrant of a 100x100 square is cut out.
func lShape() []core.Vector {
	return []core.Vector{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}, {X: 100, Y: 50}, {X: 100, Y: 100}, {X: 0, Y: 100}}
}

func rotate(poly []core.Vector, k int) []core.Vector {
	out := make([]core.Vector, 0, len(poly))
	out = append(out, poly[k:]...)
	return append(out, poly[:k]...)
}

func TestPointInPolygon(t *testing.T) {
	sq := square(10)
	assert.True(t, PointInPolygon(sq, 5, 5))
	assert.True(t, PointInPolygon(sq, 0.1, 9.9))
	assert.False(t, PointInPolygon(sq, 15, 5))
	assert.False(t, PointInPolygon(sq, -1, 5))
	assert.False(t, PointInPolygon(sq, 5, 11))

	l := lShape()
	assert.True(t, PointInPolygon(l, 25, 25))
	assert.True(t, PointInPolygon(l, 75, 75))
	assert.False(t, PointInPolygon(l, 75, 25))
}

func TestPointInPolygon_Degenerate(t *testing.T) {
	assert.False(t, PointInPolygon(nil, 0, 0))
	assert.False(t, PointInPolygon([]core.Vector{}, 1, 1))
	assert.False(t, PointInPolygon([]core.Vector{{X: 0, Y: 0}, {X: 10, Y: 10}}, 5, 5))
}

func TestPointInPolygon_RotationInvariant(t *testing.T) {
	polys := [][]core.Vector{square(100), lShape(), {{X: 0, Y: 0}, {X: 100, Y: 20}, {X: 40, Y: 90}}}

	rapid.Check(t, func(t *rapid.T) {
		poly := polys[rapid.IntRange(0, len(polys)-1).Draw(t, "poly")]
		k := rapid.IntRange(0, len(poly)-1).Draw(t, "rotation")
		x := rapid.Float64Range(-20, 120).Draw(t, "x")
		y := rapid.Float64Range(-20, 120).Draw(t, "y")

		if PointInPolygon(poly, x, y) != PointInPolygon(rotate(poly, k), x, y) {
			t.Fatalf("rotation %d changed containment of (%v,%v)", k, x, y)
		}
	})
}

func TestPolygonCentroid(t *testing.T) {
	c := PolygonCentroid(square(10))
	assert.InDelta(t, 5, c.X, 1e-9)
	assert.InDelta(t, 5, c.Y, 1e-9)

	// clockwise winding gives the same centroid
	cw := []core.Vector{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}}
	c = PolygonCentroid(cw)
	assert.InDelta(t, 5, c.X, 1e-9)
	assert.InDelta(t, 5, c.Y, 1e-9)
}

func TestPolygonCentroid_DegenerateFallsBackToMean(t *testing.T) {
	collinear := []core.Vector{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}}
	assert.Equal(t, core.Vector{X: 5, Y: 5}, PolygonCentroid(collinear))
	assert.Equal(t, core.Vector{X: 2, Y: 3}, PolygonCentroid([]core.Vector{{X: 2, Y: 3}}))
	assert.Equal(t, core.Vector{}, PolygonCentroid(nil))
}

func TestBoundingBox(t *testing.T) {
	b := BoundingBox(lShape())
	assert.Equal(t, Box{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100}, b)
	assert.Equal(t, 100.0, b.Width())
	assert.Equal(t, Box{}, BoundingBox(nil))
}

func TestAdjustIntoPolygon(t *testing.T) {
	sq := square(100)
	centroid := PolygonCentroid(sq)

	inside := core.Vector{X: 10, Y: 10}
	assert.Equal(t, inside, AdjustIntoPolygon(inside, sq, centroid))

	// one halving step from (150,50) toward (50,50) lands on (100,50), the
	// boundary, which the ray test treats as outside; the second lands inside
	got := AdjustIntoPolygon(core.Vector{X: 150, Y: 50}, sq, centroid)
	assert.Equal(t, core.Vector{X: 75, Y: 50}, got)
	assert.True(t, PointInPolygon(sq, got.X, got.Y))
}

func TestAdjustIntoPolygon_FallsBackToCentroid(t *testing.T) {
	// concave polygon whose centroid lies outside: nothing found, centroid returned
	u := []core.Vector{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 90}, {X: 90, Y: 90},
		{X: 90, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100},
	}
	centroid := PolygonCentroid(u)
	require.False(t, PointInPolygon(u, centroid.X, centroid.Y))

	got := AdjustIntoPolygon(core.Vector{X: 50, Y: -1000}, u, centroid)
	assert.Equal(t, centroid, got)
}

func TestAdjustIntoPolygon_AlwaysInsideConvex(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(3, 8).Draw(t, "vertices")
		cx := rapid.Float64Range(-500, 500).Draw(t, "cx")
		cy := rapid.Float64Range(-500, 500).Draw(t, "cy")
		r := rapid.Float64Range(10, 300).Draw(t, "radius")
		base := rapid.Float64Range(0, 2*math.Pi).Draw(t, "base")

		poly := make([]core.Vector, n)
		step := 2 * math.Pi / float64(n)
		for i := range poly {
			jitter := rapid.Float64Range(-step/4, step/4).Draw(t, "jitter")
			a := base + float64(i)*step + jitter
			poly[i] = core.Vector{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
		}

		target := core.Vector{
			X: rapid.Float64Range(-2000, 2000).Draw(t, "tx"),
			Y: rapid.Float64Range(-2000, 2000).Draw(t, "ty"),
		}

		got := AdjustIntoPolygon(target, poly, PolygonCentroid(poly))
		if !PointInPolygon(poly, got.X, got.Y) {
			t.Fatalf("adjusted point %+v is outside polygon %+v", got, poly)
		}
	})
}

func TestClosestEdgeDir(t *testing.T) {
	sq := square(100)

	dir, ok := ClosestEdgeDir(sq, 95, 50)
	require.True(t, ok)
	assert.Equal(t, core.Vector{X: 0, Y: 100}, dir)

	dir, ok = ClosestEdgeDir(sq, 50, 2)
	require.True(t, ok)
	assert.Equal(t, core.Vector{X: 100, Y: 0}, dir)

	_, ok = ClosestEdgeDir(nil, 0, 0)
	assert.False(t, ok)
}

func TestProjectVector(t *testing.T) {
	assert.Equal(t, core.Vector{X: 0, Y: 10}, ProjectVector(core.Vector{X: 10, Y: 10}, core.Vector{X: 0, Y: 100}))
	assert.Equal(t, core.Vector{X: 3, Y: 0}, ProjectVector(core.Vector{X: 3, Y: 4}, core.Vector{X: -1, Y: 0}))
	assert.Equal(t, core.Vector{}, ProjectVector(core.Vector{X: 3, Y: 4}, core.Vector{}))
}

func TestSlideWithinPolygon(t *testing.T) {
	sq := square(100)

	t.Run("direct move", func(t *testing.T) {
		got, ok := SlideWithinPolygon(core.Vector{X: 50, Y: 50}, 10, 0, sq)
		require.True(t, ok)
		assert.Equal(t, core.Vector{X: 60, Y: 50}, got)
	})

	t.Run("slides along wall", func(t *testing.T) {
		got, ok := SlideWithinPolygon(core.Vector{X: 95, Y: 50}, 10, 10, sq)
		require.True(t, ok)
		assert.Equal(t, core.Vector{X: 95, Y: 60}, got)
	})

	t.Run("blocked", func(t *testing.T) {
		_, ok := SlideWithinPolygon(core.Vector{X: 50, Y: 50}, 200, 200, sq)
		assert.False(t, ok)
	})

	t.Run("empty polygon", func(t *testing.T) {
		_, ok := SlideWithinPolygon(core.Vector{X: 1, Y: 1}, 1, 1, nil)
		assert.False(t, ok)
	})
}
