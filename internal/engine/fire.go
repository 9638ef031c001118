package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/battlearena/combat-engine/internal/collision"
	"github.com/battlearena/combat-engine/internal/firing"
	"github.com/battlearena/combat-engine/internal/rules"
	"github.com/battlearena/combat-engine/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Last actions recorded on the game state.
const (
	ActionFire    = "fire"
	ActionMove    = "move"
	ActionEnd     = "end"
	ActionTimeout = "timeout"
)

// HandlePlayerFire runs one fire through validation, simulation and
// resolution. Rejections return (nil, err) and change nothing. Failures
// during simulation or resolution return a non-success result and also leave
// the match untouched.
func (e *Engine) HandlePlayerFire(ctx context.Context, matchID, playerID string, angle, power float64, weaponID string) (*core.FireResult, error) {
	start := time.Now()
	req := core.FireRequest{
		MatchID:     matchID,
		PlayerID:    playerID,
		Angle:       angle,
		Power:       power,
		WeaponID:    weaponID,
		RequestedAt: e.deps.Now(),
	}

	result, rec, err := e.fire(req)
	if err != nil {
		e.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))
		e.deps.Logger.Warn("Fire rejected",
			"matchId", matchID,
			"playerId", playerID,
			"error", err)
		return nil, err
	}

	e.metrics.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000)

	if !result.Success {
		e.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "simulation")))
		e.deps.Logger.Error("Fire failed", "matchId", matchID, "playerId", playerID, "error", result.Error)
		return result, nil
	}

	e.metrics.resolved.Add(ctx, 1)
	if result.Collision != nil {
		e.metrics.collisions.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(result.Collision.Type))))
	}

	e.persistFire(ctx, rec, result.GameState)
	return result, nil
}

func rejectReason(err error) string {
	switch {
	case core.IsValidationError(err):
		return "validation"
	case errors.Is(err, core.ErrMatchNotFound):
		return "match_not_found"
	case errors.Is(err, core.ErrMatchEnded):
		return "match_ended"
	case errors.Is(err, core.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, core.ErrNotYourTurn):
		return "not_your_turn"
	default:
		return "other"
	}
}

// fire holds the match lock from validation through commit.
func (e *Engine) fire(req core.FireRequest) (*core.FireResult, *core.FireRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	m, err := e.lookup(req.MatchID)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTurn(req.PlayerID, req.RequestedAt); err != nil {
		return nil, nil, err
	}

	weapon := e.weapon(m, req.WeaponID)
	fl, err := e.simulate(m, req, weapon)
	if err != nil {
		return e.failed(m, err), nil, nil
	}

	out, err := e.resolve(m, req, weapon, fl)
	if err != nil {
		m.detector.ClearCollisions(m.id)
		return e.failed(m, err), nil, nil
	}

	e.commit(m, req, out)

	if out.result.HealthUpdate != nil && out.result.HealthUpdate.IsDead {
		e.deps.Logger.Info("Opponent eliminated",
			"matchId", m.id,
			"winner", out.state.Winner,
			"loser", out.state.Loser)
	}
	return out.result, e.fireRecord(req, out), nil
}

func (e *Engine) failed(m *match, err error) *core.FireResult {
	return &core.FireResult{
		Success:   false,
		GameState: m.snapshot(e.deps.Now()),
		Error:     err.Error(),
	}
}

// weapon resolves a weapon id against the room, then the engine config,
// then the defaults.
func (e *Engine) weapon(m *match, id string) core.Weapon {
	w, ok := m.weapons[id]
	if !ok {
		w, ok = e.weapons[id]
	}
	if !ok {
		w = core.Weapon{ID: id}
	}
	if w.BaseDamage <= 0 {
		w.BaseDamage = rules.DefaultBaseDamage
	}
	if w.MaxVelocity <= 0 {
		w.MaxVelocity = e.cfg.MaxVelocity
	}
	return w
}

type flight struct {
	projectile *core.Projectile
	trajectory *core.Trajectory
	collision  *core.CollisionResult
}

// simulate steps a projectile until it collides, leaves the world or runs
// out of flight time. The projectile body is always removed.
func (e *Engine) simulate(m *match, req core.FireRequest, weapon core.Weapon) (fl *flight, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.SimulationError{Stage: "simulate", Err: fmt.Errorf("%v", r)}
		}
	}()

	shooter := m.state.Players[req.PlayerID]
	start := shooter.Position
	velocity := firing.LaunchVelocity(req.Angle, req.Power, weapon.MaxVelocity)

	body, err := m.world.CreateProjectileBody(start, velocity)
	if err != nil {
		return nil, &core.SimulationError{Stage: "launch", Err: err}
	}
	p := firing.NewProjectile(req.PlayerID, weapon.ID, start, body, e.deps.Now())
	m.world.AddBody(p.ID, body)
	defer m.world.RemoveBody(p.ID)

	targets := make([]collision.Target, 0, len(m.state.PlayerOrder))
	for _, id := range m.state.PlayerOrder {
		pl := m.state.Players[id]
		if id == req.PlayerID || !pl.Alive {
			continue
		}
		targets = append(targets, collision.Target{PlayerID: id, Position: pl.Position})
	}

	rec := firing.NewRecorder(req, start, velocity, e.cfg.MaxSamples)
	projectiles := []*firing.Projectile{p}
	fl = &flight{projectile: p.Snapshot()}

	for elapsed := 0.0; elapsed < e.cfg.MaxFlightMs; {
		m.world.Update(e.cfg.StepMs)
		elapsed += e.cfg.StepMs
		rec.Sample(body.Position(), elapsed)

		if hits := m.detector.DetectCollisions(m.id, projectiles, targets); len(hits) > 0 {
			hit := hits[0]
			fl.collision = &hit
			break
		}
		if m.world.OutOfBounds(body) {
			break
		}
	}

	fl.trajectory = rec.Trajectory()
	return fl, nil
}

type resolution struct {
	result     *core.FireResult
	state      *core.GameState
	turn       int
	streak     int
	hitWeapon  string
	turnPassed bool
}

// resolve applies the flight's outcome to a copy of the match state.
func (e *Engine) resolve(m *match, req core.FireRequest, weapon core.Weapon, fl *flight) (out *resolution, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.SimulationError{Stage: "resolve", Err: fmt.Errorf("%v", r)}
		}
	}()

	now := e.deps.Now()
	next := m.state.Clone()
	shooter := next.Players[req.PlayerID]
	out = &resolution{
		state: next,
		turn:  next.TurnNumber,
		result: &core.FireResult{
			Success:    true,
			Projectile: fl.projectile,
			Trajectory: fl.trajectory,
			Collision:  fl.collision,
		},
	}

	if c := fl.collision; c != nil && c.Type == core.ContactPlayer {
		target, ok := next.Players[c.TargetPlayerID]
		if !ok {
			return nil, &core.SimulationError{Stage: "resolve", Err: fmt.Errorf("hit unknown player %q", c.TargetPlayerID)}
		}

		damage := e.deps.Damage.Damage(weapon, *c)
		synergy := e.synergies.Evaluate(m.lastWeapon[req.PlayerID], req.WeaponID)
		damage = rules.ApplySynergy(damage, synergy)

		hu := rules.ApplyDamage(target.ID, target.Health, damage)
		target.Health = hu.NewHealth
		target.Alive = !hu.IsDead

		streak := m.streaks[req.PlayerID]
		score := e.deps.Scoring.Score(*c, hu.Damage, streak)
		shooter.Score += score

		out.result.HealthUpdate = &hu
		out.result.Synergy = synergy
		out.result.ScoreGained = score
		out.streak = streak + 1
		out.hitWeapon = req.WeaponID

		if target.Health <= 0 {
			next.Status = core.StatusEnded
			next.Winner = shooter.ID
			next.Loser = target.ID
			next.Reason = core.ReasonOpponentEliminated
		}
	}

	next.LastAction = ActionFire
	next.UpdatedAt = now

	if next.Status != core.StatusEnded {
		opponent := next.Opponent(req.PlayerID)
		next.CurrentTurn = opponent
		next.TurnNumber++
		next.TurnTimeRemainingMs = e.cfg.TurnDurationMs
		if o, ok := next.Players[opponent]; ok {
			o.MovesRemaining = e.cfg.DefaultMovesRemaining
		}
		out.turnPassed = true
	} else {
		next.TurnTimeRemainingMs = 0
	}

	out.result.GameState = next.Clone()
	return out, nil
}

// commit swaps in the resolved state. Nothing here can fail.
func (e *Engine) commit(m *match, req core.FireRequest, out *resolution) {
	m.state = out.state
	if out.hitWeapon != "" {
		m.lastWeapon[req.PlayerID] = out.hitWeapon
	}
	m.streaks[req.PlayerID] = out.streak
	if out.turnPassed {
		m.turnStart = out.state.UpdatedAt
	}
}

func (e *Engine) fireRecord(req core.FireRequest, out *resolution) *core.FireRecord {
	r := out.result
	rec := &core.FireRecord{
		MatchID:     req.MatchID,
		PlayerID:    req.PlayerID,
		WeaponID:    req.WeaponID,
		Angle:       req.Angle,
		Power:       req.Power,
		Success:     r.Success,
		Trajectory:  r.Trajectory,
		TurnNumber:  out.turn,
		ScoreGained: r.ScoreGained,
		FiredAt:     req.RequestedAt,
	}

	if r.Projectile != nil {
		rec.ProjectileID = r.Projectile.ID
	}
	if c := r.Collision; c != nil {
		rec.ContactType = string(c.Type)
		rec.TargetPlayerID = c.TargetPlayerID
		rec.HitAccuracy = c.HitAccuracy
	}
	if r.HealthUpdate != nil {
		rec.Damage = r.HealthUpdate.Damage
	}
	if r.Synergy != nil {
		rec.SynergyEffect = r.Synergy.Effect
	}
	return rec
}

func (e *Engine) persistFire(ctx context.Context, rec *core.FireRecord, state *core.GameState) {
	if rec == nil {
		return
	}
	if err := e.deps.Storage.RecordFire(rec); err != nil {
		e.deps.Logger.Error("Failed to persist fire", "matchId", rec.MatchID, "error", err)
	}
	if err := e.deps.Storage.RecordState(state); err != nil {
		e.deps.Logger.Error("Failed to persist game state", "matchId", rec.MatchID, "error", err)
	}
	if e.deps.Fires != nil {
		if err := e.deps.Fires.WriteFire(ctx, rec); err != nil {
			e.deps.Logger.Error("Failed to write fire metrics", "matchId", rec.MatchID, "error", err)
		}
	}
}
