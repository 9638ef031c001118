// Package engine is the authoritative per-match state machine: it owns every
// match's simulation world, resolves fires and decides match outcomes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/battlearena/combat-engine/internal/arena"
	"github.com/battlearena/combat-engine/internal/collision"
	"github.com/battlearena/combat-engine/internal/firing"
	"github.com/battlearena/combat-engine/internal/physics"
	"github.com/battlearena/combat-engine/internal/rules"
	"github.com/battlearena/combat-engine/internal/storage"
	"github.com/battlearena/combat-engine/pkg/core"
)

// Config holds the tunables of every match the engine creates.
type Config struct {
	DefaultHealth         int
	DefaultMaxHealth      int
	DefaultMovesRemaining int
	DefaultScore          int
	MoveSpeedPerMs        float64

	TurnDurationMs int64
	TurnNumber     int
	ActiveStatus   string

	Physics     physics.Config
	MaxVelocity float64
	StepMs      float64
	MaxFlightMs float64

	Collision  collision.Config
	MaxSamples int

	Weapons   []core.Weapon
	Synergies []rules.SynergyRule
}

// DefaultConfig returns the standard match tunables.
func DefaultConfig() Config {
	return Config{
		DefaultHealth:         100,
		DefaultMaxHealth:      100,
		DefaultMovesRemaining: 4,
		MoveSpeedPerMs:        0.25,
		TurnDurationMs:        15000,
		TurnNumber:            1,
		ActiveStatus:          core.StatusActive,
		Physics:               physics.Config{}.WithDefaults(),
		MaxVelocity:           1.0,
		StepMs:                physics.BaseDeltaMs,
		MaxFlightMs:           10000,
		Collision:             collision.DefaultConfig(),
		MaxSamples:            firing.DefaultMaxSamples,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultMaxHealth <= 0 {
		c.DefaultMaxHealth = d.DefaultMaxHealth
	}
	if c.DefaultHealth <= 0 {
		c.DefaultHealth = c.DefaultMaxHealth
	}
	if c.TurnNumber <= 0 {
		c.TurnNumber = d.TurnNumber
	}
	if c.ActiveStatus == "" {
		c.ActiveStatus = d.ActiveStatus
	}
	if c.MaxVelocity <= 0 {
		c.MaxVelocity = d.MaxVelocity
	}
	if c.StepMs <= 0 {
		c.StepMs = d.StepMs
	}
	if c.MaxFlightMs <= 0 {
		c.MaxFlightMs = d.MaxFlightMs
	}
	if c.Collision.HitRadius <= 0 {
		c.Collision.HitRadius = d.Collision.HitRadius
	}
	if c.Collision.HeroRadius <= 0 {
		c.Collision.HeroRadius = d.Collision.HeroRadius
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = d.MaxSamples
	}
	return c
}

// ArenaLoader resolves arena definitions. *arena.Loader implements it.
type ArenaLoader interface {
	Load(arenaID string) core.Arena
}

// FireSink receives a record of every resolved fire, after commit.
type FireSink interface {
	WriteFire(ctx context.Context, rec *core.FireRecord) error
}

// Dependencies are the collaborators of an Engine. Nil fields get defaults.
type Dependencies struct {
	Arenas  ArenaLoader
	Storage storage.Backend
	Fires   FireSink
	Damage  rules.DamageStrategy
	Scoring rules.ScoringStrategy
	Logger  *slog.Logger
	Now     func() time.Time
}

// RoomConfig describes a new match.
type RoomConfig struct {
	Players []string      `json:"players"`
	ArenaID string        `json:"arenaId"`
	Weapons []core.Weapon `json:"weapons,omitempty"`
}

// Engine owns the registry of live matches.
type Engine struct {
	cfg       Config
	deps      Dependencies
	weapons   map[string]core.Weapon
	synergies *rules.SynergyTable
	metrics   *instruments

	mu      sync.RWMutex
	matches map[string]*match
}

// New creates an engine.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Arenas == nil {
		deps.Arenas = arena.NewLoader("", 0, 0, deps.Logger)
	}
	if deps.Storage == nil {
		deps.Storage = storage.Noop{}
	}
	if deps.Damage == nil {
		deps.Damage = rules.AccuracyDamage{}
	}
	if deps.Scoring == nil {
		deps.Scoring = rules.AccuracyScoring{BonusPerHit: rules.DefaultBonusPerHit}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ins, err := newInstruments()
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		deps:      deps,
		weapons:   indexWeapons(cfg.Weapons),
		synergies: rules.NewSynergyTable(cfg.Synergies),
		metrics:   ins,
		matches:   make(map[string]*match),
	}, nil
}

func indexWeapons(ws []core.Weapon) map[string]core.Weapon {
	out := make(map[string]core.Weapon, len(ws))
	for _, w := range ws {
		if w.ID != "" {
			out[w.ID] = w
		}
	}
	return out
}

// CreateGameRoom sets up a two-player match: arena, spawns, heroes and the
// match's own physics world. The first listed player takes the first turn.
func (e *Engine) CreateGameRoom(ctx context.Context, matchID string, rc RoomConfig) (*core.GameState, error) {
	if matchID == "" {
		return nil, &core.ValidationError{Field: "matchId", Message: "match id is required"}
	}
	if len(rc.Players) != 2 {
		return nil, &core.ValidationError{Field: "players", Message: "exactly two players are required"}
	}
	if rc.Players[0] == "" || rc.Players[1] == "" || rc.Players[0] == rc.Players[1] {
		return nil, &core.ValidationError{Field: "players", Message: "players must be distinct and non-empty"}
	}

	e.mu.RLock()
	_, exists := e.matches[matchID]
	e.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("create %s: %w", matchID, core.ErrMatchExists)
	}

	a := e.deps.Arenas.Load(rc.ArenaID)
	m, err := e.newMatch(matchID, a, rc)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", matchID, err)
	}

	e.mu.Lock()
	if _, exists := e.matches[matchID]; exists {
		e.mu.Unlock()
		m.close()
		return nil, fmt.Errorf("create %s: %w", matchID, core.ErrMatchExists)
	}
	e.matches[matchID] = m
	e.mu.Unlock()

	snapshot := m.snapshot(e.deps.Now())
	e.deps.Logger.Info("Match created",
		"matchId", matchID,
		"arenaId", a.ID,
		"players", rc.Players,
		"zones", len(a.WalkableZones))

	if err := e.deps.Storage.StartMatch(&core.MatchInfo{
		MatchID:   matchID,
		ArenaID:   a.ID,
		Players:   append([]string(nil), rc.Players...),
		StartedAt: m.startedAt,
		Arena:     &a,
	}); err != nil {
		e.deps.Logger.Error("Failed to persist match start", "matchId", matchID, "error", err)
	}

	return snapshot, nil
}

func (e *Engine) lookup(matchID string) (*match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
	}
	return m, nil
}

// GameState returns a snapshot of a match.
func (e *Engine) GameState(matchID string) (*core.GameState, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
	}
	return m.snapshot(e.deps.Now()), nil
}

// ActiveMatches lists registered match ids in sorted order.
func (e *Engine) ActiveMatches() []string {
	e.mu.RLock()
	ids := make([]string, 0, len(e.matches))
	for id := range e.matches {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// MatchCount is the number of registered matches.
func (e *Engine) MatchCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.matches)
}

// EndMatch tears a match down: collision cache, physics world and registry
// entry. The final summary is persisted afterwards.
func (e *Engine) EndMatch(ctx context.Context, matchID string) error {
	e.mu.Lock()
	m, ok := e.matches[matchID]
	if ok {
		delete(e.matches, matchID)
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("end %s: %w", matchID, core.ErrMatchNotFound)
	}

	m.mu.Lock()
	now := e.deps.Now()
	summary := m.summary(now)
	m.close()
	m.mu.Unlock()

	e.deps.Logger.Info("Match ended",
		"matchId", matchID,
		"status", summary.Status,
		"winner", summary.Winner,
		"turns", summary.Turns)

	if err := e.deps.Storage.EndMatch(summary); err != nil {
		e.deps.Logger.Error("Failed to persist match summary", "matchId", matchID, "error", err)
	}
	return nil
}

// Close ends every registered match.
func (e *Engine) Close(ctx context.Context) {
	for _, id := range e.ActiveMatches() {
		if err := e.EndMatch(ctx, id); err != nil {
			e.deps.Logger.Debug("Match already gone at shutdown", "matchId", id)
		}
	}
}
