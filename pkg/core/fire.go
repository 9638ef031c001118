// pkg/core/fire.go
package core

import (
	"math"
	"time"
)

// Firing ranges accepted by FireRequest.Validate.
const (
	MinAngle = 0.0
	MaxAngle = 180.0
	MinPower = 0.0
	MaxPower = 100.0
)

// FireRequest is one player's intent to launch a projectile.
// Angle is in degrees from horizontal, power is a 0-100 launch-speed percentage.
type FireRequest struct {
	MatchID     string    `json:"matchId"`
	PlayerID    string    `json:"playerId"`
	Angle       float64   `json:"angle"`
	Power       float64   `json:"power"`
	WeaponID    string    `json:"weaponId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Validate checks identifiers and numeric ranges.
// It returns a *ValidationError naming the first offending field.
func (r FireRequest) Validate() error {
	switch {
	case r.MatchID == "":
		return &ValidationError{Field: "matchId", Message: "match id is required"}
	case r.PlayerID == "":
		return &ValidationError{Field: "playerId", Message: "player id is required"}
	case !inRange(r.Angle, MinAngle, MaxAngle):
		return &ValidationError{Field: "angle", Message: "angle must be between 0 and 180"}
	case !inRange(r.Power, MinPower, MaxPower):
		return &ValidationError{Field: "power", Message: "power must be between 0 and 100"}
	case r.WeaponID == "":
		return &ValidationError{Field: "weaponId", Message: "weapon id is required"}
	}
	return nil
}

// inRange is a closed-interval check; NaN is never in range.
func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// Weapon describes the damage and launch speed of a weapon type.
type Weapon struct {
	ID          string  `json:"id" mapstructure:"id"`
	BaseDamage  float64 `json:"baseDamage" mapstructure:"baseDamage"`
	MaxVelocity float64 `json:"maxVelocity" mapstructure:"maxVelocity"`
}

// Projectile is the serializable view of a launched projectile.
type Projectile struct {
	ID            string    `json:"id"`
	WeaponID      string    `json:"weaponId"`
	PlayerID      string    `json:"playerId"`
	StartPosition Vector    `json:"startPosition"`
	StartTime     time.Time `json:"startTime"`
}

// PathPoint is one sample of a projectile's flight.
type PathPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ElapsedMs float64 `json:"elapsedMs"`
}

// Trajectory is the replay path of a single fire.
type Trajectory struct {
	StartPosition   Vector      `json:"startPosition"`
	EndPosition     Vector      `json:"endPosition"`
	Path            []PathPoint `json:"path"`
	FlightTimeMs    float64     `json:"flightTimeMs"`
	ApexHeight      float64     `json:"apexHeight"`
	InitialVelocity Vector      `json:"initialVelocity"`
	Angle           float64     `json:"angle"`
	Power           float64     `json:"power"`
	WeaponID        string      `json:"weaponId"`
}

// ContactType distinguishes what a projectile struck.
type ContactType string

const (
	ContactTerrain ContactType = "terrain"
	ContactPlayer  ContactType = "player"
)

// CollisionResult is one detected contact between a projectile and terrain or a player.
type CollisionResult struct {
	ProjectileID   string      `json:"projectileId"`
	WeaponID       string      `json:"weaponId"`
	TargetPlayerID string      `json:"targetPlayerId,omitempty"`
	Type           ContactType `json:"type"`
	ImpactPosition Vector      `json:"impactPosition"`
	TargetPosition *Vector     `json:"targetPosition,omitempty"`
	Distance       float64     `json:"distance"`
	HitAccuracy    int         `json:"hitAccuracy"`
	ImpactSpeed    float64     `json:"impactSpeed"`
	DetectedAt     time.Time   `json:"detectedAt"`
}

// HealthUpdate is the outcome of applying damage to a player.
type HealthUpdate struct {
	PlayerID       string `json:"playerId"`
	PreviousHealth int    `json:"previousHealth"`
	Damage         int    `json:"damage"`
	NewHealth      int    `json:"newHealth"`
	IsDead         bool   `json:"isDead"`
}

// SynergyEffect is the bonus triggered by firing a matching weapon pair in sequence.
type SynergyEffect struct {
	Applied          bool    `json:"applied"`
	DamageMultiplier float64 `json:"damageMultiplier"`
	Effect           string  `json:"effect,omitempty"`
	VisualEffect     string  `json:"visualEffect"`
	PreviousWeapon   string  `json:"previousWeapon,omitempty"`
	CurrentWeapon    string  `json:"currentWeapon"`
}

// FireResult aggregates everything one fire produced.
type FireResult struct {
	Success      bool             `json:"success"`
	Projectile   *Projectile      `json:"projectile,omitempty"`
	Trajectory   *Trajectory      `json:"trajectory,omitempty"`
	Collision    *CollisionResult `json:"collision"`
	HealthUpdate *HealthUpdate    `json:"healthUpdate"`
	ScoreGained  int              `json:"scoreGained"`
	Synergy      *SynergyEffect   `json:"synergy"`
	GameState    *GameState       `json:"gameState,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Outbound notification names, in the order a transport layer broadcasts them.
const (
	EventProjectileFired = "projectile-fired"
	EventProjectileHit   = "projectile-hit"
	EventDamageApplied   = "damage-applied"
	EventSynergy         = "weapon-synergy-activated"
	EventScoreUpdated    = "score-updated"
	EventGameStateUpdate = "game-state-update"
	EventMatchEnded      = "match-ended"
	EventFireRejected    = "fire-rejected"
)

// Events lists the notifications this result drives, in broadcast order.
func (r *FireResult) Events() []string {
	if !r.Success {
		return []string{EventFireRejected}
	}
	events := []string{EventProjectileFired}
	if r.Collision != nil {
		events = append(events, EventProjectileHit)
	}
	if r.HealthUpdate != nil {
		events = append(events, EventDamageApplied)
	}
	if r.Synergy != nil && r.Synergy.Applied {
		events = append(events, EventSynergy)
	}
	if r.ScoreGained > 0 {
		events = append(events, EventScoreUpdated)
	}
	events = append(events, EventGameStateUpdate)
	if r.GameState != nil && r.GameState.Status == StatusEnded {
		events = append(events, EventMatchEnded)
	}
	return events
}
