package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/battlearena/combat-engine/internal/arena"
	"github.com/battlearena/combat-engine/internal/collision"
	"github.com/battlearena/combat-engine/internal/physics"
	"github.com/battlearena/combat-engine/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const terrainBodyID = "terrain"

func playerBodyID(playerID string) string { return "player:" + playerID }

// match is one match's context. Every field is guarded by mu; a fire, move or
// end signal holds it from validation through commit.
type match struct {
	mu sync.Mutex

	id        string
	arena     core.Arena
	sides     arena.Sides
	state     *core.GameState
	weapons   map[string]core.Weapon
	world     *physics.Adapter
	detector  *collision.Detector
	startedAt time.Time
	turnStart time.Time
	closed    bool
	logger    *slog.Logger

	turnDurationMs int64
	movesPerTurn   int

	// lastWeapon is the weapon of each player's last hit; streaks count consecutive player hits.
	lastWeapon map[string]string
	streaks    map[string]int
}

func (e *Engine) newMatch(matchID string, a core.Arena, rc RoomConfig) (*match, error) {
	now := e.deps.Now()
	sides := arena.Polygons(a)
	p1, p2 := arena.FindSpawnPositionsForSides(a, sides.Left, sides.Right)

	pcfg := e.cfg.Physics
	pcfg.Bounds = a.WorldBounds
	world := physics.NewAdapter(pcfg)
	world.Initialize(pcfg.Gravity)

	logger := e.deps.Logger.With("matchId", matchID)
	world.DetectCollisions(func(x, y *physics.Body) {
		e.metrics.contacts.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("a", x.Label()),
			attribute.String("b", y.Label())))
		logger.Debug("Physics contact", "a", x.Label(), "b", y.Label())
	})

	if e.cfg.Collision.TerrainEnabled {
		ground, err := world.CreateTerrain(e.cfg.Collision.TerrainThreshold)
		if err != nil {
			return nil, err
		}
		world.AddBody(terrainBodyID, ground)
	}

	state := &core.GameState{
		MatchID:             matchID,
		ArenaID:             a.ID,
		Status:              e.cfg.ActiveStatus,
		Players:             make(map[string]*core.PlayerState, 2),
		PlayerOrder:         append([]string(nil), rc.Players...),
		CurrentTurn:         rc.Players[0],
		TurnNumber:          e.cfg.TurnNumber,
		TurnTimeRemainingMs: e.cfg.TurnDurationMs,
		UpdatedAt:           now,
	}
	for i, pos := range []core.Vector{p1, p2} {
		id := rc.Players[i]
		state.Players[id] = &core.PlayerState{
			ID:             id,
			Position:       pos,
			Health:         e.cfg.DefaultHealth,
			MaxHealth:      e.cfg.DefaultMaxHealth,
			Score:          e.cfg.DefaultScore,
			MovesRemaining: e.cfg.DefaultMovesRemaining,
			Alive:          e.cfg.DefaultHealth > 0,
		}
		body, err := world.CreatePlayerBody(id, pos, e.cfg.Collision.HeroRadius)
		if err != nil {
			world.Close()
			return nil, err
		}
		world.AddBody(playerBodyID(id), body)
	}

	weapons := make(map[string]core.Weapon, len(rc.Weapons))
	for _, w := range rc.Weapons {
		if w.ID != "" {
			weapons[w.ID] = w
		}
	}

	return &match{
		id:             matchID,
		arena:          a,
		sides:          sides,
		state:          state,
		weapons:        weapons,
		world:          world,
		detector:       collision.NewDetector(e.cfg.Collision, logger),
		startedAt:      now,
		turnStart:      now,
		logger:         logger,
		turnDurationMs: e.cfg.TurnDurationMs,
		movesPerTurn:   e.cfg.DefaultMovesRemaining,
		lastWeapon:     make(map[string]string, 2),
		streaks:        make(map[string]int, 2),
	}, nil
}

// expireTurns hands the turn over once for every full turn duration elapsed
// since the current turn started. It returns the number of handovers.
func (m *match) expireTurns(now time.Time) int {
	if m.closed || m.turnDurationMs <= 0 || m.state.Status == core.StatusEnded {
		return 0
	}
	d := time.Duration(m.turnDurationMs) * time.Millisecond
	n := int(now.Sub(m.turnStart) / d)
	if n <= 0 {
		return 0
	}

	from := m.state.CurrentTurn
	if n%2 == 1 {
		if next := m.state.Opponent(from); next != "" {
			m.state.CurrentTurn = next
		}
	}
	m.turnStart = m.turnStart.Add(time.Duration(n) * d)
	m.state.TurnNumber += n
	m.state.TurnTimeRemainingMs = m.turnDurationMs
	m.state.LastAction = ActionTimeout
	m.state.UpdatedAt = m.turnStart
	if p, ok := m.state.Players[m.state.CurrentTurn]; ok {
		p.MovesRemaining = m.movesPerTurn
	}

	m.logger.Info("Turn timed out",
		"from", from,
		"currentTurn", m.state.CurrentTurn,
		"turnNumber", m.state.TurnNumber,
		"expired", n)
	return n
}

// snapshot copies the state with the turn clock brought up to now.
func (m *match) snapshot(now time.Time) *core.GameState {
	m.expireTurns(now)
	s := m.state.Clone()
	if s.Status != core.StatusEnded {
		elapsed := now.Sub(m.turnStart).Milliseconds()
		s.TurnTimeRemainingMs = max(s.TurnTimeRemainingMs-elapsed, 0)
	}
	return s
}

func (m *match) summary(now time.Time) *core.MatchSummary {
	scores := make(map[string]int, len(m.state.Players))
	for id, p := range m.state.Players {
		scores[id] = p.Score
	}
	return &core.MatchSummary{
		MatchID:   m.id,
		ArenaID:   m.arena.ID,
		Status:    m.state.Status,
		Winner:    m.state.Winner,
		Loser:     m.state.Loser,
		Reason:    m.state.Reason,
		Turns:     m.state.TurnNumber,
		Scores:    scores,
		StartedAt: m.startedAt,
		EndedAt:   now,
	}
}

// zone returns the walkable polygon of a player's side, or nil.
func (m *match) zone(playerID string) []core.Vector {
	if len(m.state.PlayerOrder) > 1 && m.state.PlayerOrder[1] == playerID && len(m.sides.Right) > 0 {
		return m.sides.Right
	}
	if len(m.state.PlayerOrder) > 0 && m.state.PlayerOrder[0] == playerID && len(m.sides.Left) > 0 {
		return m.sides.Left
	}
	return m.sides.Main
}

// checkTurn expires overdue turns and then validates that playerID may act at now.
func (m *match) checkTurn(playerID string, now time.Time) error {
	if m.closed {
		return fmt.Errorf("match %s: %w", m.id, core.ErrMatchNotFound)
	}
	m.expireTurns(now)
	if m.state.Status == core.StatusEnded {
		return fmt.Errorf("match %s: %w", m.id, core.ErrMatchEnded)
	}
	if _, ok := m.state.Players[playerID]; !ok {
		return fmt.Errorf("player %s in match %s: %w", playerID, m.id, core.ErrUnknownPlayer)
	}
	if m.state.CurrentTurn != playerID {
		return fmt.Errorf("player %s in match %s: %w", playerID, m.id, core.ErrNotYourTurn)
	}
	return nil
}

func (m *match) close() {
	if m.closed {
		return
	}
	m.detector.ClearCollisions(m.id)
	m.world.Close()
	m.closed = true
}
