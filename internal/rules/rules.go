// Package rules holds the pluggable damage, synergy and scoring rules applied
// when a fire resolves.
package rules

import (
	"math"

	"github.com/battlearena/combat-engine/pkg/core"
)

// DefaultBaseDamage is used for weapons that do not configure one.
const DefaultBaseDamage = 10

// DamageStrategy turns a player hit into raw damage before synergy.
type DamageStrategy interface {
	Damage(weapon core.Weapon, hit core.CollisionResult) int
}

// AccuracyDamage scales the weapon's base damage by hit accuracy.
type AccuracyDamage struct{}

func (AccuracyDamage) Damage(weapon core.Weapon, hit core.CollisionResult) int {
	base := weapon.BaseDamage
	if base <= 0 {
		base = DefaultBaseDamage
	}
	return int(math.Round(base * float64(hit.HitAccuracy) / 100))
}

// ApplyDamage subtracts damage from health, clamping at zero.
func ApplyDamage(playerID string, health, damage int) core.HealthUpdate {
	if damage < 0 {
		damage = 0
	}
	next := max(health-damage, 0)
	return core.HealthUpdate{
		PlayerID:       playerID,
		PreviousHealth: health,
		Damage:         damage,
		NewHealth:      next,
		IsDead:         next == 0,
	}
}

// Visual effects for known synergy effects.
const (
	EffectBurn   = "burn"
	EffectFreeze = "freeze"
	EffectBlast  = "blast"

	VisualDefault = "default_explosion"
)

var visualEffects = map[string]string{
	EffectBurn:   "fire_explosion",
	EffectFreeze: "ice_shatter",
	EffectBlast:  "rock_explosion",
}

// VisualEffect maps an effect name to its visual, falling back to the default explosion.
func VisualEffect(effect string) string {
	if v, ok := visualEffects[effect]; ok {
		return v
	}
	return VisualDefault
}

// SynergyRule triggers when the two weapons are fired back to back in either order.
type SynergyRule struct {
	First        string  `json:"first" mapstructure:"first"`
	Second       string  `json:"second" mapstructure:"second"`
	Multiplier   float64 `json:"multiplier" mapstructure:"multiplier"`
	Effect       string  `json:"effect" mapstructure:"effect"`
	VisualEffect string  `json:"visualEffect" mapstructure:"visualEffect"`
}

// SynergyTable looks up rules by unordered weapon pair.
type SynergyTable struct {
	rules map[string]SynergyRule
}

// NewSynergyTable indexes rules. Later rules for the same pair win; rules
// missing a weapon or with a non-positive multiplier are skipped.
func NewSynergyTable(rules []SynergyRule) *SynergyTable {
	t := &SynergyTable{rules: make(map[string]SynergyRule, len(rules))}
	for _, r := range rules {
		if r.First == "" || r.Second == "" || r.Multiplier <= 0 {
			continue
		}
		if r.VisualEffect == "" {
			r.VisualEffect = VisualEffect(r.Effect)
		}
		t.rules[pairKey(r.First, r.Second)] = r
	}
	return t
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Len is the number of indexed pairs.
func (t *SynergyTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Evaluate returns the synergy for firing current right after previous, or
// nil when no rule matches. An empty previous weapon never matches.
func (t *SynergyTable) Evaluate(previous, current string) *core.SynergyEffect {
	if t == nil || previous == "" || current == "" {
		return nil
	}
	r, ok := t.rules[pairKey(previous, current)]
	if !ok {
		return nil
	}
	return &core.SynergyEffect{
		Applied:          true,
		DamageMultiplier: r.Multiplier,
		Effect:           r.Effect,
		VisualEffect:     r.VisualEffect,
		PreviousWeapon:   previous,
		CurrentWeapon:    current,
	}
}

// ApplySynergy multiplies damage by the effect's multiplier, rounding to the nearest integer.
func ApplySynergy(damage int, effect *core.SynergyEffect) int {
	if effect == nil || !effect.Applied {
		return damage
	}
	return int(math.Round(float64(damage) * effect.DamageMultiplier))
}

// ScoringStrategy computes the score gained by a player hit. streak is the
// number of consecutive player hits the shooter landed before this one.
type ScoringStrategy interface {
	Score(hit core.CollisionResult, damage, streak int) int
}

// DefaultBonusPerHit is the back-to-back hit bonus.
const DefaultBonusPerHit = 50

// AccuracyScoring awards the hit accuracy plus a bonus per prior consecutive hit.
type AccuracyScoring struct {
	BonusPerHit int
}

func (s AccuracyScoring) Score(hit core.CollisionResult, _ int, streak int) int {
	return max(hit.HitAccuracy, 0) + max(streak, 0)*s.BonusPerHit
}
