package arena

import (
	"math"

	"github.com/battlearena/combat-engine/pkg/core"
)

// Zone ids looked up first when resolving the two sides of an arena.
const (
	LeftZoneID  = "left-walkable-zone"
	RightZoneID = "right-walkable-zone"
)

// Spawn fallbacks used when a side has no polygon at all.
var (
	DefaultLeftSpawn  = core.Vector{X: 100, Y: 500}
	DefaultRightSpawn = core.Vector{X: 700, Y: 500}
)

const (
	minSpawnOffset   = 20.0
	spawnOffsetRatio = 0.12
)

// Sides holds the walkable polygons for each half of an arena.
type Sides struct {
	Main  []core.Vector
	Left  []core.Vector
	Right []core.Vector
}

// Polygons resolves the left and right walkable zones by id, falling back to
// the first and second zones in declaration order.
func Polygons(a core.Arena) Sides {
	var left, right *core.Zone
	for i := range a.WalkableZones {
		switch a.WalkableZones[i].ID {
		case LeftZoneID:
			if left == nil {
				left = &a.WalkableZones[i]
			}
		case RightZoneID:
			if right == nil {
				right = &a.WalkableZones[i]
			}
		}
	}
	if left == nil && len(a.WalkableZones) > 0 {
		left = &a.WalkableZones[0]
	}
	if right == nil && len(a.WalkableZones) > 1 {
		right = &a.WalkableZones[1]
	}

	var s Sides
	if left != nil {
		s.Left = left.Polygon
		s.Main = left.Polygon
	}
	if right != nil {
		s.Right = right.Polygon
	}
	return s
}

// FindSpawnPositionsForSides picks a spawn point for each player.
//
// Explicit arena spawns win when both are present, pulled into their polygon
// when one exists. Otherwise each side spawns at max(20, 12% of the box width)
// in from its outer edge, at the vertical box center.
func FindSpawnPositionsForSides(a core.Arena, left, right []core.Vector) (player1, player2 core.Vector) {
	if sp := a.SpawnPositions; sp != nil && sp.Player1 != nil && sp.Player2 != nil {
		player1, player2 = *sp.Player1, *sp.Player2
		if len(left) > 0 {
			player1 = AdjustIntoPolygon(player1, left, PolygonCentroid(left))
		}
		if len(right) > 0 {
			player2 = AdjustIntoPolygon(player2, right, PolygonCentroid(right))
		}
		return player1, player2
	}

	player1 = DefaultLeftSpawn
	if len(left) > 0 {
		box := BoundingBox(left)
		target := core.Vector{X: box.MinX + spawnOffset(box), Y: (box.MinY + box.MaxY) * 0.5}
		player1 = AdjustIntoPolygon(target, left, PolygonCentroid(left))
	}

	player2 = DefaultRightSpawn
	if len(right) > 0 {
		box := BoundingBox(right)
		target := core.Vector{X: box.MaxX - spawnOffset(box), Y: (box.MinY + box.MaxY) * 0.5}
		player2 = AdjustIntoPolygon(target, right, PolygonCentroid(right))
	}

	return player1, player2
}

func spawnOffset(b Box) float64 {
	return math.Max(minSpawnOffset, b.Width()*spawnOffsetRatio)
}
