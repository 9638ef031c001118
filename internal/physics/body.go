// Package physics owns a per-match simulation world: projectile bodies,
// static terrain and player bodies, integration and contact events.
package physics

import (
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/jakecoffman/cp"
)

// Category is a collision filter bit.
type Category uint16

const (
	CategoryTerrain    Category = 0x0001
	CategoryProjectile Category = 0x0002
	CategoryPlayer     Category = 0x0004
)

// Shape of a body.
type Shape int

const (
	// ShapeCircle is a disc of Radius around Position.
	ShapeCircle Shape = iota
	// ShapeGround is a half-plane: everything with y >= Position.Y.
	ShapeGround
)

// BodyDef describes a body to create.
type BodyDef struct {
	Label       string
	Shape       Shape
	Position    core.Vector
	Velocity    core.Vector
	Radius      float64
	Static      bool
	Category    Category
	Mask        Category
	AirFriction float64
	Restitution float64
}

// Body is a handle to a body living in a world.
type Body struct {
	id    uint64
	def   BodyDef
	body  *cp.Body
	shape *cp.Shape
}

// ID is unique within the world that created the body.
func (b *Body) ID() uint64 { return b.id }

// Label is the caller-supplied tag.
func (b *Body) Label() string { return b.def.Label }

// Position is the current center (circles) or surface point (ground).
func (b *Body) Position() core.Vector {
	if b.body == nil || b.def.Shape == ShapeGround {
		return b.def.Position
	}
	p := b.body.Position()
	return core.Vector{X: p.X, Y: p.Y}
}

// Velocity in units per millisecond.
func (b *Body) Velocity() core.Vector {
	if b.body == nil || b.def.Static {
		return core.Vector{}
	}
	v := b.body.Velocity()
	return core.Vector{X: v.X, Y: v.Y}
}

// Speed is the magnitude of the velocity vector.
func (b *Body) Speed() float64 { return b.Velocity().Len() }

// Radius of a circle body.
func (b *Body) Radius() float64 { return b.def.Radius }

// Category returns the body's collision category.
func (b *Body) Category() Category { return b.def.Category }

// Static bodies never move.
func (b *Body) Static() bool { return b.def.Static }

func filter(category, mask Category) cp.ShapeFilter {
	return cp.ShapeFilter{Categories: uint(category), Mask: uint(mask)}
}
