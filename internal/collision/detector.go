// Package collision turns projectile and player positions into terrain and
// player hits with accuracy scoring.
package collision

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/battlearena/combat-engine/internal/firing"
	"github.com/battlearena/combat-engine/pkg/core"
)

// Defaults for detection.
const (
	DefaultHitRadius        = 50.0
	DefaultHeroRadius       = 25.0
	DefaultTerrainThreshold = 500.0
)

// Config holds detection radii and the ground line.
type Config struct {
	// HitRadius is the distance below which a projectile hits a player.
	HitRadius float64
	// HeroRadius scales accuracy: 100 at the center, 0 at twice this radius.
	HeroRadius float64
	// TerrainThreshold is the ground line; projectiles below it hit terrain.
	TerrainThreshold float64
	TerrainEnabled   bool
}

// DefaultConfig returns the standard radii with terrain enabled.
func DefaultConfig() Config {
	return Config{
		HitRadius:        DefaultHitRadius,
		HeroRadius:       DefaultHeroRadius,
		TerrainThreshold: DefaultTerrainThreshold,
		TerrainEnabled:   true,
	}
}

// Target is a player that can be hit.
type Target struct {
	PlayerID string
	Position core.Vector
}

// Handler receives detected collisions by kind.
type Handler interface {
	OnTerrainHit(c core.CollisionResult)
	OnPlayerHit(c core.CollisionResult)
}

// Detector evaluates collisions and caches the latest results per match.
type Detector struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	cache    map[string][]core.CollisionResult
	handlers []Handler
}

// NewDetector creates a detector. A nil logger uses slog.Default.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string][]core.CollisionResult),
	}
}

// Register adds a handler. Handlers run in registration order.
func (d *Detector) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// DetectCollisions checks each projectile against terrain first, then each
// player in order, and reports at most one collision per projectile.
func (d *Detector) DetectCollisions(matchID string, projectiles []*firing.Projectile, players []Target) []core.CollisionResult {
	var results []core.CollisionResult

	for _, p := range projectiles {
		if p == nil || p.Body == nil {
			continue
		}
		if c, ok := d.check(p, players); ok {
			results = append(results, c)
		}
	}

	if len(results) == 0 {
		return nil
	}

	d.mu.Lock()
	d.cache[matchID] = results
	handlers := append([]Handler(nil), d.handlers...)
	d.mu.Unlock()

	for _, c := range results {
		for _, h := range handlers {
			d.notify(h, c)
		}
	}

	return results
}

func (d *Detector) check(p *firing.Projectile, players []Target) (core.CollisionResult, bool) {
	pos := p.Body.Position()
	base := core.CollisionResult{
		ProjectileID:   p.ID,
		WeaponID:       p.WeaponID,
		ImpactPosition: pos,
		ImpactSpeed:    p.Body.Speed(),
		DetectedAt:     d.now(),
	}

	if d.cfg.TerrainEnabled && pos.Y > d.cfg.TerrainThreshold {
		base.Type = core.ContactTerrain
		return base, true
	}

	for _, t := range players {
		dist := core.Distance(pos, t.Position)
		if dist >= d.cfg.HitRadius {
			continue
		}
		target := t.Position
		base.Type = core.ContactPlayer
		base.TargetPlayerID = t.PlayerID
		base.TargetPosition = &target
		base.Distance = dist
		base.HitAccuracy = CalculateHitAccuracy(pos, t.Position, d.cfg.HeroRadius)
		return base, true
	}

	return core.CollisionResult{}, false
}

func (d *Detector) notify(h Handler, c core.CollisionResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Collision handler failed",
				"projectileId", c.ProjectileID,
				"type", c.Type,
				"error", fmt.Sprint(r))
		}
	}()

	switch c.Type {
	case core.ContactTerrain:
		h.OnTerrainHit(c)
	case core.ContactPlayer:
		h.OnPlayerHit(c)
	}
}

// Collisions returns the cached results of the last pass that found any.
func (d *Detector) Collisions(matchID string) []core.CollisionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.CollisionResult(nil), d.cache[matchID]...)
}

// ClearCollisions drops the cache for a match. Safe to call repeatedly.
func (d *Detector) ClearCollisions(matchID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, matchID)
}

// CalculateHitAccuracy is linear in distance: 100 at the center, 0 at twice
// the radius, rounded to the nearest integer. A non-positive radius only
// scores at distance zero.
func CalculateHitAccuracy(impact, center core.Vector, radius float64) int {
	dist := core.Distance(impact, center)
	if radius <= 0 {
		if dist == 0 {
			return 100
		}
		return 0
	}
	acc := 100 - dist/(2*radius)*100
	return int(math.Round(math.Max(0, math.Min(100, acc))))
}
