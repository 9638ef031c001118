package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/battlearena/combat-engine/internal/arena"
	"github.com/battlearena/combat-engine/pkg/core"
)

// End reasons for externally signaled conditions.
const (
	ReasonForfeit    = "forfeit"
	ReasonDisconnect = "disconnect"
)

// MovePlayer moves the current player by (dx, dy), capped by the movement
// speed over elapsedMs and kept inside the player's walkable zone by sliding
// along its edges. A move that cannot be placed leaves the position unchanged
// but still costs a move.
func (e *Engine) MovePlayer(ctx context.Context, matchID, playerID string, dx, dy, elapsedMs float64) (*core.GameState, error) {
	if !(core.Vector{X: dx, Y: dy}).IsFinite() {
		return nil, &core.ValidationError{Field: "displacement", Message: "displacement must be finite"}
	}
	if math.IsNaN(elapsedMs) || elapsedMs < 0 {
		return nil, &core.ValidationError{Field: "elapsedMs", Message: "elapsed time must not be negative"}
	}

	m, err := e.lookup(matchID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if err := m.checkTurn(playerID, e.deps.Now()); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	p := m.state.Players[playerID]
	if p.MovesRemaining <= 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("player %s in match %s: %w", playerID, matchID, core.ErrNoMovesLeft)
	}

	move := capDisplacement(core.Vector{X: dx, Y: dy}, e.cfg.MoveSpeedPerMs*elapsedMs)
	dest, moved := m.place(p.Position, move, playerID)
	if moved {
		if err := m.moveBody(playerID, dest, e.cfg.Collision.HeroRadius); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("moving %s: %w", playerID, err)
		}
	}

	p.Position = dest
	p.MovesRemaining--
	m.state.LastAction = ActionMove
	m.state.UpdatedAt = e.deps.Now()
	snapshot := m.snapshot(m.state.UpdatedAt)
	m.mu.Unlock()

	e.deps.Logger.Debug("Player moved",
		"matchId", matchID,
		"playerId", playerID,
		"x", dest.X,
		"y", dest.Y,
		"movesRemaining", snapshot.Players[playerID].MovesRemaining)

	if err := e.deps.Storage.RecordState(snapshot); err != nil {
		e.deps.Logger.Error("Failed to persist game state", "matchId", matchID, "error", err)
	}
	return snapshot, nil
}

func capDisplacement(v core.Vector, limit float64) core.Vector {
	l := v.Len()
	if limit <= 0 {
		return core.Vector{}
	}
	if l <= limit {
		return v
	}
	return v.Scale(limit / l)
}

// place resolves a destination. With a walkable zone it slides along the
// zone; without one it clamps to the world bounds.
func (m *match) place(from, move core.Vector, playerID string) (core.Vector, bool) {
	if move == (core.Vector{}) {
		return from, false
	}
	if zone := m.zone(playerID); len(zone) >= 3 {
		to, ok := arena.SlideWithinPolygon(from, move.X, move.Y, zone)
		if !ok {
			return from, false
		}
		return to, true
	}

	to := from.Add(move)
	if b := m.arena.WorldBounds; b.Width > 0 && b.Height > 0 {
		to.X = math.Min(math.Max(to.X, b.X), b.X+b.Width)
		to.Y = math.Min(math.Max(to.Y, b.Y), b.Y+b.Height)
	}
	return to, true
}

// moveBody replaces a player's static body at its new position.
func (m *match) moveBody(playerID string, pos core.Vector, radius float64) error {
	body, err := m.world.CreatePlayerBody(playerID, pos, radius)
	if err != nil {
		return err
	}
	m.world.RemoveBody(playerBodyID(playerID))
	m.world.AddBody(playerBodyID(playerID), body)
	return nil
}

// SignalEnd ends a match on an external condition such as a forfeit or a
// disconnect. winnerID must be a player of the match.
func (e *Engine) SignalEnd(ctx context.Context, matchID, winnerID, reason string) (*core.GameState, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	switch {
	case m.closed:
		err = fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
	case m.state.Status == core.StatusEnded:
		err = fmt.Errorf("match %s: %w", matchID, core.ErrMatchEnded)
	default:
		if _, ok := m.state.Players[winnerID]; !ok {
			err = fmt.Errorf("player %s in match %s: %w", winnerID, matchID, core.ErrUnknownPlayer)
		}
	}
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	if reason == "" {
		reason = ReasonForfeit
	}
	m.state.Status = core.StatusEnded
	m.state.Winner = winnerID
	m.state.Loser = m.state.Opponent(winnerID)
	m.state.Reason = reason
	m.state.LastAction = ActionEnd
	m.state.TurnTimeRemainingMs = 0
	m.state.UpdatedAt = e.deps.Now()
	snapshot := m.snapshot(m.state.UpdatedAt)
	m.mu.Unlock()

	e.deps.Logger.Info("Match end signaled",
		"matchId", matchID,
		"winner", snapshot.Winner,
		"reason", reason)

	if err := e.deps.Storage.RecordState(snapshot); err != nil {
		e.deps.Logger.Error("Failed to persist game state", "matchId", matchID, "error", err)
	}
	return snapshot, nil
}
