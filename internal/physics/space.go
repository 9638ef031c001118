package physics

import (
	"math"

	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/jakecoffman/cp"
)

// BaseDeltaMs is the step length air friction is expressed against (60 Hz).
const BaseDeltaMs = 1000.0 / 60.0

// slabSize is the depth of the static boxes standing in for the ground
// half-plane and the side walls.
const slabSize = 1e5

const projectileType cp.CollisionType = 1

// ContactFunc receives each newly touching pair once, lower body id first.
type ContactFunc func(a, b *Body)

// Backend is the integration engine behind an Adapter.
type Backend interface {
	CreateBody(def BodyDef) *Body
	Step(dtMs float64)
	RemoveBody(b *Body)
	OnContact(fn ContactFunc)
	BodyCount() int
}

// Space is a Backend over a chipmunk space. Time is in milliseconds. Side
// walls bounce projectiles with their restitution; every other projectile
// contact is reported and then ignored by the solver, so shots fly through
// terrain and heroes until the collision detector ends the flight.
type Space struct {
	space    *cp.Space
	bodies   map[uint64]*Body
	nextID   uint64
	handlers []ContactFunc
}

// NewSpace creates an empty space. A bounds with positive size adds walls
// along its left and right edges.
func NewSpace(gravity core.Vector, bounds core.Bounds) *Space {
	s := &Space{
		space:  cp.NewSpace(),
		bodies: make(map[uint64]*Body),
	}
	s.space.SetGravity(cp.Vector{X: gravity.X, Y: gravity.Y})

	if bounds.Width > 0 && bounds.Height > 0 {
		s.addWall(bounds.X-slabSize/2, bounds)
		s.addWall(bounds.X+bounds.Width+slabSize/2, bounds)
	}

	handler := s.space.NewWildcardCollisionHandler(projectileType)
	handler.BeginFunc = s.begin
	return s
}

func (s *Space) addWall(centerX float64, bounds core.Bounds) {
	body := cp.NewStaticBody()
	body.SetPosition(cp.Vector{X: centerX, Y: bounds.Y + bounds.Height/2})
	s.space.AddBody(body)

	shape := cp.NewBox(body, slabSize, bounds.Height+2*slabSize, 0)
	shape.SetElasticity(1)
	shape.SetFilter(filter(CategoryTerrain, CategoryProjectile))
	s.space.AddShape(shape)
}

func (s *Space) begin(arb *cp.Arbiter, _ *cp.Space, _ interface{}) bool {
	sa, sb := arb.Shapes()
	a, okA := sa.UserData.(*Body)
	b, okB := sb.UserData.(*Body)
	if !okA || !okB {
		return true
	}
	if a.id > b.id {
		a, b = b, a
	}
	for _, fn := range s.handlers {
		fn(a, b)
	}
	return false
}

// CreateBody adds a body built from def. Dynamic bodies carry the world's
// air friction; the last one created sets it for all of them.
func (s *Space) CreateBody(def BodyDef) *Body {
	s.nextID++
	b := &Body{id: s.nextID, def: def}

	if def.Static {
		b.body = cp.NewStaticBody()
	} else {
		b.body = cp.NewBody(1, math.Inf(1))
	}

	center := cp.Vector{X: def.Position.X, Y: def.Position.Y}
	if def.Shape == ShapeGround {
		center.Y += slabSize / 2
	}
	b.body.SetPosition(center)
	s.space.AddBody(b.body)
	if !def.Static {
		b.body.SetVelocity(def.Velocity.X, def.Velocity.Y)
	}

	if def.Shape == ShapeGround {
		b.shape = cp.NewBox(b.body, 4*slabSize, slabSize, 0)
	} else {
		b.shape = cp.NewCircle(b.body, def.Radius, cp.Vector{})
	}
	b.shape.SetFilter(filter(def.Category, def.Mask))
	b.shape.UserData = b
	if !def.Static {
		b.shape.SetElasticity(def.Restitution)
		b.shape.SetCollisionType(projectileType)
		if air := def.AirFriction; air > 0 && air < 1 {
			s.space.SetDamping(math.Pow(1-air, 1/BaseDeltaMs))
		}
	}
	s.space.AddShape(b.shape)

	s.bodies[b.id] = b
	return b
}

// RemoveBody detaches b. Bodies from another space and nil are ignored.
func (s *Space) RemoveBody(b *Body) {
	if b == nil || s.bodies[b.id] != b {
		return
	}
	delete(s.bodies, b.id)
	s.space.RemoveShape(b.shape)
	s.space.RemoveBody(b.body)
}

// OnContact subscribes to contact-begin notifications.
func (s *Space) OnContact(fn ContactFunc) {
	if fn != nil {
		s.handlers = append(s.handlers, fn)
	}
}

// BodyCount is the number of bodies created and not removed. Walls are not counted.
func (s *Space) BodyCount() int {
	return len(s.bodies)
}

// Step advances the space by dtMs.
func (s *Space) Step(dtMs float64) {
	if dtMs <= 0 {
		return
	}
	s.space.Step(dtMs)
}
