// Package firing holds the live projectile entity and the pure conversions of
// the fire pipeline: launch velocity and trajectory sampling.
package firing

import (
	"math"
	"time"

	"github.com/battlearena/combat-engine/internal/physics"
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/google/uuid"
)

// DefaultMaxSamples caps the replay path length.
const DefaultMaxSamples = 100

// Projectile is a launched projectile bound to its physics body.
type Projectile struct {
	core.Projectile
	Body *physics.Body
}

// NewProjectile creates a projectile with a fresh unique id.
func NewProjectile(playerID, weaponID string, start core.Vector, body *physics.Body, now time.Time) *Projectile {
	return &Projectile{
		Projectile: core.Projectile{
			ID:            uuid.NewString(),
			WeaponID:      weaponID,
			PlayerID:      playerID,
			StartPosition: start,
			StartTime:     now,
		},
		Body: body,
	}
}

// Snapshot returns the serializable view.
func (p *Projectile) Snapshot() *core.Projectile {
	s := p.Projectile
	return &s
}

// LaunchVelocity converts an angle in degrees and a 0-100 power into a
// velocity vector. Y is negated because screen Y grows downward.
func LaunchVelocity(angleDeg, power, maxVelocity float64) core.Vector {
	rad := angleDeg * math.Pi / 180
	speed := power / 100 * maxVelocity
	return core.Vector{X: math.Cos(rad) * speed, Y: -math.Sin(rad) * speed}
}

// Recorder accumulates a body's positions during simulation and produces the
// replay trajectory.
type Recorder struct {
	req        core.FireRequest
	start      core.Vector
	velocity   core.Vector
	maxSamples int
	samples    []core.PathPoint
	minY       float64
}

// NewRecorder starts a trajectory at start with the given launch velocity.
func NewRecorder(req core.FireRequest, start, velocity core.Vector, maxSamples int) *Recorder {
	if maxSamples < 2 {
		maxSamples = DefaultMaxSamples
	}
	return &Recorder{
		req:        req,
		start:      start,
		velocity:   velocity,
		maxSamples: maxSamples,
		samples:    []core.PathPoint{{X: start.X, Y: start.Y}},
		minY:       start.Y,
	}
}

// Sample records pos at elapsedMs after launch.
func (r *Recorder) Sample(pos core.Vector, elapsedMs float64) {
	r.samples = append(r.samples, core.PathPoint{X: pos.X, Y: pos.Y, ElapsedMs: elapsedMs})
	r.minY = math.Min(r.minY, pos.Y)
}

// Trajectory builds the final trajectory, evenly downsampling the path to at
// most maxSamples points while keeping the first and last.
func (r *Recorder) Trajectory() *core.Trajectory {
	last := r.samples[len(r.samples)-1]
	return &core.Trajectory{
		StartPosition:   r.start,
		EndPosition:     core.Vector{X: last.X, Y: last.Y},
		Path:            downsample(r.samples, r.maxSamples),
		FlightTimeMs:    last.ElapsedMs,
		ApexHeight:      r.start.Y - r.minY,
		InitialVelocity: r.velocity,
		Angle:           r.req.Angle,
		Power:           r.req.Power,
		WeaponID:        r.req.WeaponID,
	}
}

func downsample(points []core.PathPoint, limit int) []core.PathPoint {
	if len(points) <= limit {
		return append([]core.PathPoint(nil), points...)
	}
	out := make([]core.PathPoint, limit)
	stride := float64(len(points)-1) / float64(limit-1)
	for i := range out {
		out[i] = points[int(math.Round(float64(i)*stride))]
	}
	return out
}
