package physics

import (
	"errors"
	"fmt"

	"github.com/battlearena/combat-engine/pkg/core"
)

// Defaults for projectile bodies.
const (
	DefaultGravity       = 0.001
	DefaultAirResistance = 0.01
	DefaultRestitution   = 0.5
	DefaultBodyRadius    = 5.0
)

// ErrNotInitialized is returned when the adapter is used before Initialize or after Close.
var ErrNotInitialized = errors.New("physics world not initialized")

// Config holds world and projectile coefficients.
type Config struct {
	Gravity       float64
	AirResistance float64
	Restitution   float64
	BodyRadius    float64
	// Bounds of the simulated world. Bodies that leave through the bottom are out of bounds.
	Bounds core.Bounds
	// NewBackend builds the integration engine. Defaults to NewSpace.
	NewBackend func(gravity core.Vector, bounds core.Bounds) Backend
}

// WithDefaults fills unset coefficients.
func (c Config) WithDefaults() Config {
	if c.Gravity == 0 {
		c.Gravity = DefaultGravity
	}
	if c.AirResistance == 0 {
		c.AirResistance = DefaultAirResistance
	}
	if c.Restitution == 0 {
		c.Restitution = DefaultRestitution
	}
	if c.BodyRadius == 0 {
		c.BodyRadius = DefaultBodyRadius
	}
	if c.NewBackend == nil {
		c.NewBackend = func(gravity core.Vector, bounds core.Bounds) Backend {
			return NewSpace(gravity, bounds)
		}
	}
	return c
}

// Adapter owns one match's simulation world and its id-to-body map.
// It is not safe for concurrent use; the owning match serializes access.
type Adapter struct {
	cfg     Config
	backend Backend
	bodies  map[string]*Body
}

// NewAdapter creates an adapter. Call Initialize before creating bodies.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		cfg:    cfg.WithDefaults(),
		bodies: make(map[string]*Body),
	}
}

// Initialize creates a fresh world with horizontal gravity 0 and the given
// vertical gravity; zero uses the configured value.
func (a *Adapter) Initialize(gravityY float64) {
	if gravityY == 0 {
		gravityY = a.cfg.Gravity
	}
	a.backend = a.cfg.NewBackend(core.Vector{X: 0, Y: gravityY}, a.cfg.Bounds)
	a.bodies = make(map[string]*Body)
}

// CreateProjectileBody adds a small dynamic circle that only collides with
// terrain and players.
func (a *Adapter) CreateProjectileBody(position, velocity core.Vector) (*Body, error) {
	if a.backend == nil {
		return nil, ErrNotInitialized
	}
	if !position.IsFinite() || !velocity.IsFinite() {
		return nil, fmt.Errorf("projectile at %v with velocity %v: %w", position, velocity, core.ErrInvalidBody)
	}
	return a.backend.CreateBody(BodyDef{
		Label:       "projectile",
		Shape:       ShapeCircle,
		Position:    position,
		Velocity:    velocity,
		Radius:      a.cfg.BodyRadius,
		Category:    CategoryProjectile,
		Mask:        CategoryTerrain | CategoryPlayer,
		AirFriction: a.cfg.AirResistance,
		Restitution: a.cfg.Restitution,
	}), nil
}

// CreatePlayerBody adds a static circle for a hero.
func (a *Adapter) CreatePlayerBody(playerID string, position core.Vector, radius float64) (*Body, error) {
	if a.backend == nil {
		return nil, ErrNotInitialized
	}
	if !position.IsFinite() || radius <= 0 {
		return nil, fmt.Errorf("player %s at %v radius %v: %w", playerID, position, radius, core.ErrInvalidBody)
	}
	return a.backend.CreateBody(BodyDef{
		Label:    playerID,
		Shape:    ShapeCircle,
		Position: position,
		Radius:   radius,
		Static:   true,
		Category: CategoryPlayer,
		Mask:     CategoryProjectile,
	}), nil
}

// CreateTerrain adds a static ground half-plane at groundY.
func (a *Adapter) CreateTerrain(groundY float64) (*Body, error) {
	if a.backend == nil {
		return nil, ErrNotInitialized
	}
	return a.backend.CreateBody(BodyDef{
		Label:    "terrain",
		Shape:    ShapeGround,
		Position: core.Vector{X: 0, Y: groundY},
		Static:   true,
		Category: CategoryTerrain,
		Mask:     CategoryProjectile,
	}), nil
}

// AddBody maps id to body, replacing any previous mapping.
func (a *Adapter) AddBody(id string, body *Body) {
	a.bodies[id] = body
}

// GetBody returns the body mapped to id.
func (a *Adapter) GetBody(id string) (*Body, bool) {
	b, ok := a.bodies[id]
	return b, ok
}

// RemoveBody forgets id and detaches its body from the world.
func (a *Adapter) RemoveBody(id string) {
	b, ok := a.bodies[id]
	if !ok {
		return
	}
	delete(a.bodies, id)
	if a.backend != nil {
		a.backend.RemoveBody(b)
	}
}

// Update advances the world by deltaTimeMs.
func (a *Adapter) Update(deltaTimeMs float64) {
	if a.backend != nil {
		a.backend.Step(deltaTimeMs)
	}
}

// DetectCollisions subscribes cb to contact-begin events. The same pair may be
// reported again after it separates; deduplication is up to the caller.
func (a *Adapter) DetectCollisions(cb ContactFunc) {
	if a.backend != nil {
		a.backend.OnContact(cb)
	}
}

// OutOfBounds reports whether body has left the world through a side or the bottom.
// The top is open so lobbed shots can come back down.
func (a *Adapter) OutOfBounds(body *Body) bool {
	b := a.cfg.Bounds
	if b.Width <= 0 || b.Height <= 0 {
		return false
	}
	p := body.Position()
	return p.X < b.X || p.X > b.X+b.Width || p.Y > b.Y+b.Height
}

// BodyCount is the number of bodies in the world, mapped or not.
func (a *Adapter) BodyCount() int {
	if a.backend == nil {
		return 0
	}
	return a.backend.BodyCount()
}

// Close removes every mapped body and releases the world.
func (a *Adapter) Close() {
	for id := range a.bodies {
		a.RemoveBody(id)
	}
	a.backend = nil
}
