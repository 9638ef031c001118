// Package geo converts arena and trajectory values into simplefeatures
// geometries for validation and WKT persistence.
package geo

import (
	"errors"
	"fmt"

	"github.com/battlearena/combat-engine/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrInvalidPolygon is returned when a zone cannot form a closed ring
var ErrInvalidPolygon = errors.New("invalid polygon provided")

// ZonePolygon builds a closed polygon from a walkable zone's vertex list.
// The ring is closed automatically and validated.
func ZonePolygon(zone core.Zone) (geom.Polygon, error) {
	if len(zone.Polygon) < 3 {
		return geom.Polygon{}, fmt.Errorf("zone %q has %d vertices: %w", zone.ID, len(zone.Polygon), ErrInvalidPolygon)
	}

	flat := make([]float64, 0, (len(zone.Polygon)+1)*2)
	for _, p := range zone.Polygon {
		flat = append(flat, p.X, p.Y)
	}
	first, last := zone.Polygon[0], zone.Polygon[len(zone.Polygon)-1]
	if first != last {
		flat = append(flat, first.X, first.Y)
	}

	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ring})
	if err := poly.Validate(); err != nil {
		return geom.Polygon{}, fmt.Errorf("zone %q: %w: %v", zone.ID, ErrInvalidPolygon, err)
	}
	return poly, nil
}

// ZoneWKT renders a zone as WKT, or "" if the zone is degenerate.
func ZoneWKT(zone core.Zone) string {
	poly, err := ZonePolygon(zone)
	if err != nil {
		return ""
	}
	return poly.AsText()
}

// TrajectoryLineString converts a trajectory's sampled path into a line string.
// Paths with fewer than two samples yield an empty line string.
func TrajectoryLineString(t *core.Trajectory) geom.LineString {
	if t == nil || len(t.Path) < 2 {
		return geom.LineString{}
	}
	flat := make([]float64, 0, len(t.Path)*2)
	for _, p := range t.Path {
		flat = append(flat, p.X, p.Y)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}
