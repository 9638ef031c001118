package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/battlearena/combat-engine/internal/command"
	"github.com/battlearena/combat-engine/internal/dispatcher"
	"github.com/battlearena/combat-engine/internal/engine"
	"github.com/battlearena/combat-engine/internal/model"
	"github.com/battlearena/combat-engine/internal/storage"
	"github.com/battlearena/combat-engine/internal/util"
	"github.com/battlearena/combat-engine/pkg/core"
)

// Commands served by the handler service.
const (
	CmdRoomCreate   = ":ROOM:CREATE:"
	CmdFire         = ":FIRE:"
	CmdMove         = ":MOVE:"
	CmdMatchEnd     = ":MATCH:END:"
	CmdMatchForfeit = ":MATCH:FORFEIT:"
	CmdState        = ":STATE:"
	CmdMatches      = ":MATCHES:"
	CmdSummary      = ":SUMMARY:"
	CmdFires        = ":FIRES:"
	CmdZones        = ":ZONES:"
)

// ErrNoHistory is returned by history commands the storage backend cannot serve.
var ErrNoHistory = errors.New("storage backend keeps no history")

// Optional read-back capabilities of a storage backend.
type (
	StateReader interface {
		LatestState(ctx context.Context, matchID string) (*core.GameState, error)
	}
	SummaryReader interface {
		Summary(ctx context.Context, matchID string) (*core.MatchSummary, error)
	}
	FireReader interface {
		Fires(ctx context.Context, matchID string) ([]*core.FireRecord, error)
	}
	ZoneReader interface {
		Zones(ctx context.Context, matchID string) ([]model.ArenaZone, error)
	}
)

// Engine is the part of the combat engine the handlers drive.
type Engine interface {
	command.Firer
	CreateGameRoom(ctx context.Context, matchID string, rc engine.RoomConfig) (*core.GameState, error)
	MovePlayer(ctx context.Context, matchID, playerID string, dx, dy, elapsedMs float64) (*core.GameState, error)
	SignalEnd(ctx context.Context, matchID, winnerID, reason string) (*core.GameState, error)
	EndMatch(ctx context.Context, matchID string) error
	GameState(matchID string) (*core.GameState, error)
	ActiveMatches() []string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Engine Engine
	Logger *slog.Logger
	// Store serves :STATE: for matches the engine no longer holds and the
	// history commands. Optional.
	Store storage.Backend

	// FireLimit caps concurrent fire resolutions across all matches. Zero
	// leaves fires unlimited.
	FireLimit int
}

// Service turns inbound string commands into engine calls.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// Register wires every command into d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	var fireOpts []dispatcher.Option
	if s.deps.FireLimit > 0 {
		fireOpts = append(fireOpts, dispatcher.Limited(s.deps.FireLimit))
	}

	d.Register(CmdRoomCreate, s.event(s.CreateRoom), dispatcher.Logged())
	d.Register(CmdFire, s.event(s.Fire), append(fireOpts, dispatcher.Logged())...)
	d.Register(CmdMove, s.event(s.Move))
	d.Register(CmdMatchEnd, s.event(s.EndMatch), dispatcher.Logged())
	d.Register(CmdMatchForfeit, s.event(s.Forfeit), dispatcher.Logged())
	d.Register(CmdState, s.event(s.State))
	d.Register(CmdMatches, func(context.Context, dispatcher.Event) (any, error) {
		return s.deps.Engine.ActiveMatches(), nil
	})
	d.Register(CmdSummary, s.event(s.Summary))
	d.Register(CmdFires, s.event(s.Fires))
	d.Register(CmdZones, s.event(s.Zones))
}

func (s *Service) event(h func(context.Context, []string) (any, error)) dispatcher.HandlerFunc {
	return func(ctx context.Context, e dispatcher.Event) (any, error) {
		return h(ctx, util.CleanArgs(e.Args))
	}
}

func need(cmd string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s: expected %d args, got %d", cmd, n, len(args))
	}
	return nil
}

// CreateRoom handles [matchId, roomJSON] where roomJSON decodes into an
// engine.RoomConfig.
func (s *Service) CreateRoom(ctx context.Context, data []string) (any, error) {
	if err := need(CmdRoomCreate, data, 2); err != nil {
		return nil, err
	}

	var rc engine.RoomConfig
	if err := json.Unmarshal([]byte(data[1]), &rc); err != nil {
		s.deps.Logger.Error("Error unmarshalling room config", "matchId", data[0], "error", err)
		return nil, fmt.Errorf("%s: room config: %w", CmdRoomCreate, err)
	}
	return s.deps.Engine.CreateGameRoom(ctx, data[0], rc)
}

// Fire handles [matchId, playerId, angle, power, weaponId].
func (s *Service) Fire(ctx context.Context, data []string) (any, error) {
	if err := need(CmdFire, data, 5); err != nil {
		return nil, err
	}

	angle, err := util.ParseFloat("angle", data[2])
	if err != nil {
		return nil, &core.ValidationError{Field: "angle", Message: err.Error()}
	}
	power, err := util.ParseFloat("power", data[3])
	if err != nil {
		return nil, &core.ValidationError{Field: "power", Message: err.Error()}
	}

	cmd := command.NewFire(data[0], data[1], angle, power, data[4], s.deps.Logger)
	return cmd.Execute(ctx, s.deps.Engine)
}

// Move handles [matchId, playerId, dx, dy, elapsedMs].
func (s *Service) Move(ctx context.Context, data []string) (any, error) {
	if err := need(CmdMove, data, 5); err != nil {
		return nil, err
	}

	var v [3]float64
	for i, field := range []string{"dx", "dy", "elapsedMs"} {
		f, err := util.ParseFloat(field, data[2+i])
		if err != nil {
			return nil, &core.ValidationError{Field: field, Message: err.Error()}
		}
		v[i] = f
	}
	return s.deps.Engine.MovePlayer(ctx, data[0], data[1], v[0], v[1], v[2])
}

// EndMatch handles [matchId] and tears the match down.
func (s *Service) EndMatch(ctx context.Context, data []string) (any, error) {
	if err := need(CmdMatchEnd, data, 1); err != nil {
		return nil, err
	}
	if err := s.deps.Engine.EndMatch(ctx, data[0]); err != nil {
		return nil, err
	}
	return "ok", nil
}

// Forfeit handles [matchId, winnerId, reason?]. The reason defaults to a
// forfeit.
func (s *Service) Forfeit(ctx context.Context, data []string) (any, error) {
	if err := need(CmdMatchForfeit, data, 2); err != nil {
		return nil, err
	}
	reason := engine.ReasonForfeit
	if len(data) > 2 && data[2] != "" {
		reason = data[2]
	}
	return s.deps.Engine.SignalEnd(ctx, data[0], data[1], reason)
}

// State handles [matchId]. A match the engine no longer holds is answered
// with the last state the storage backend recorded, when it can read one.
func (s *Service) State(ctx context.Context, data []string) (any, error) {
	if err := need(CmdState, data, 1); err != nil {
		return nil, err
	}
	st, err := s.deps.Engine.GameState(data[0])
	if err == nil {
		return st, nil
	}
	r, ok := s.deps.Store.(StateReader)
	if !errors.Is(err, core.ErrMatchNotFound) || !ok {
		return nil, err
	}

	stored, rerr := r.LatestState(ctx, data[0])
	if rerr != nil {
		if !errors.Is(rerr, core.ErrMatchNotFound) {
			s.deps.Logger.Warn("Failed to read stored state", "matchId", data[0], "error", rerr)
		}
		return nil, err
	}
	return stored, nil
}

// Summary handles [matchId].
func (s *Service) Summary(ctx context.Context, data []string) (any, error) {
	if err := need(CmdSummary, data, 1); err != nil {
		return nil, err
	}
	r, ok := s.deps.Store.(SummaryReader)
	if !ok {
		return nil, fmt.Errorf("%s: %w", CmdSummary, ErrNoHistory)
	}
	return r.Summary(ctx, data[0])
}

// Fires handles [matchId].
func (s *Service) Fires(ctx context.Context, data []string) (any, error) {
	if err := need(CmdFires, data, 1); err != nil {
		return nil, err
	}
	r, ok := s.deps.Store.(FireReader)
	if !ok {
		return nil, fmt.Errorf("%s: %w", CmdFires, ErrNoHistory)
	}
	return r.Fires(ctx, data[0])
}

// Zones handles [matchId].
func (s *Service) Zones(ctx context.Context, data []string) (any, error) {
	if err := need(CmdZones, data, 1); err != nil {
		return nil, err
	}
	r, ok := s.deps.Store.(ZoneReader)
	if !ok {
		return nil, fmt.Errorf("%s: %w", CmdZones, ErrNoHistory)
	}
	return r.Zones(ctx, data[0])
}
