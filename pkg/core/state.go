// pkg/core/state.go
package core

import "time"

// Default match status labels. Waiting and active labels can be overridden by configuration.
const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

// ReasonOpponentEliminated is the end reason when a defender's health reaches zero.
const ReasonOpponentEliminated = "opponent_eliminated"

// PlayerState is a hero's authoritative per-match state.
type PlayerState struct {
	ID             string `json:"id"`
	Position       Vector `json:"position"`
	Health         int    `json:"health"`
	MaxHealth      int    `json:"maxHealth"`
	Score          int    `json:"score"`
	MovesRemaining int    `json:"movesRemaining"`
	Alive          bool   `json:"alive"`
}

// GameState is the authoritative snapshot of one match.
type GameState struct {
	MatchID             string                  `json:"matchId"`
	ArenaID             string                  `json:"arenaId"`
	Status              string                  `json:"status"`
	Players             map[string]*PlayerState `json:"players"`
	PlayerOrder         []string                `json:"playerOrder"`
	CurrentTurn         string                  `json:"currentTurn"`
	TurnNumber          int                     `json:"turnNumber"`
	TurnTimeRemainingMs int64                   `json:"turnTimeRemainingMs"`
	Winner              string                  `json:"winner,omitempty"`
	Loser               string                  `json:"loser,omitempty"`
	Reason              string                  `json:"reason,omitempty"`
	LastAction          string                  `json:"lastAction,omitempty"`
	UpdatedAt           time.Time               `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share maps or pointers with the engine.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = make(map[string]*PlayerState, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		out.Players[id] = &cp
	}
	out.PlayerOrder = append([]string(nil), s.PlayerOrder...)
	return &out
}

// Opponent returns the other player's id in a two-player match.
func (s *GameState) Opponent(playerID string) string {
	for _, id := range s.PlayerOrder {
		if id != playerID {
			return id
		}
	}
	return ""
}

// FireRecord is the flattened, storage-friendly record of a resolved fire.
type FireRecord struct {
	MatchID        string
	ProjectileID   string
	PlayerID       string
	WeaponID       string
	Angle          float64
	Power          float64
	Success        bool
	ContactType    string
	TargetPlayerID string
	HitAccuracy    int
	Damage         int
	ScoreGained    int
	SynergyEffect  string
	Trajectory     *Trajectory
	TurnNumber     int
	FiredAt        time.Time
	Error          string
}

// MatchSummary is written when a match is torn down.
type MatchSummary struct {
	MatchID   string
	ArenaID   string
	Status    string
	Winner    string
	Loser     string
	Reason    string
	Turns     int
	Scores    map[string]int
	StartedAt time.Time
	EndedAt   time.Time
}

// MatchInfo is written when a match is created.
type MatchInfo struct {
	MatchID   string
	ArenaID   string
	Players   []string
	StartedAt time.Time
	Arena     *Arena
}
