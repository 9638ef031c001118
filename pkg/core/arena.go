// pkg/core/arena.go
package core

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Zone is a named walkable polygon. The vertex list is implicitly closed.
type Zone struct {
	ID      string   `json:"id"`
	Polygon []Vector `json:"polygon"`
}

// Spawns holds explicit per-player spawn points.
type Spawns struct {
	Player1 *Vector `json:"player1,omitempty"`
	Player2 *Vector `json:"player2,omitempty"`
}

// Arena is the static definition of a map.
type Arena struct {
	ID             string  `json:"id,omitempty"`
	WorldBounds    Bounds  `json:"worldBounds"`
	WalkableZones  []Zone  `json:"walkableZones"`
	SpawnPositions *Spawns `json:"spawnPositions,omitempty"`
}
