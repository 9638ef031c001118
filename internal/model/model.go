package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&EngineInfo{},
	&Match{},
	&ArenaZone{},
	&Fire{},
	&StateSnapshot{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// EngineInfo records which engine build created the schema.
type EngineInfo struct {
	ID            uint      `gorm:"primarykey"`
	Service       string    `json:"service" gorm:"size:64"`
	SchemaVersion int       `json:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (*EngineInfo) TableName() string {
	return "engine_infos"
}

////////////////////////
// MATCH MODELS
////////////////////////

// Match is one duel from creation to teardown.
type Match struct {
	ID        uint           `gorm:"primarykey"`
	MatchID   string         `json:"matchId" gorm:"size:64;uniqueIndex"`
	ArenaID   string         `json:"arenaId" gorm:"size:64"`
	Players   datatypes.JSON `json:"players"`
	Status    string         `json:"status" gorm:"size:32"`
	Winner    string         `json:"winner" gorm:"size:64"`
	Loser     string         `json:"loser" gorm:"size:64"`
	Reason    string         `json:"reason" gorm:"size:64"`
	Turns     int            `json:"turns"`
	Scores    datatypes.JSON `json:"scores"`
	StartedAt time.Time      `json:"startedAt" gorm:"index"`
	EndedAt   sql.NullTime   `json:"endedAt"`
	Zones     []ArenaZone    `json:"zones" gorm:"foreignKey:MatchRef;references:MatchID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Match) TableName() string {
	return "matches"
}

// ArenaZone is a walkable zone of the match's arena, stored as WKT.
type ArenaZone struct {
	ID       uint   `gorm:"primarykey"`
	MatchRef string `json:"matchId" gorm:"size:64;index"`
	ZoneID   string `json:"zoneId" gorm:"size:64"`
	Boundary string `json:"boundary"` // WKT polygon
}

func (*ArenaZone) TableName() string {
	return "arena_zones"
}

// Fire is one resolved fire.
type Fire struct {
	ID             uint           `gorm:"primarykey"`
	MatchID        string         `json:"matchId" gorm:"size:64;index:idx_fire_match_turn"`
	TurnNumber     int            `json:"turnNumber" gorm:"index:idx_fire_match_turn"`
	ProjectileID   string         `json:"projectileId" gorm:"size:64"`
	PlayerID       string         `json:"playerId" gorm:"size:64"`
	WeaponID       string         `json:"weaponId" gorm:"size:64"`
	Angle          float64        `json:"angle"`
	Power          float64        `json:"power"`
	Success        bool           `json:"success"`
	ContactType    string         `json:"contactType" gorm:"size:16"`
	TargetPlayerID string         `json:"targetPlayerId" gorm:"size:64"`
	HitAccuracy    int            `json:"hitAccuracy"`
	Damage         int            `json:"damage"`
	ScoreGained    int            `json:"scoreGained"`
	SynergyEffect  string         `json:"synergyEffect" gorm:"size:32"`
	Trajectory     datatypes.JSON `json:"trajectory"`
	Path           string         `json:"path"` // WKT line string of the sampled path
	Error          string         `json:"error"`
	FiredAt        time.Time      `json:"firedAt" gorm:"index"`
}

func (*Fire) TableName() string {
	return "fires"
}

// StateSnapshot is a full game state captured after a committed action.
type StateSnapshot struct {
	ID          uint           `gorm:"primarykey"`
	MatchID     string         `json:"matchId" gorm:"size:64;index:idx_state_match_turn"`
	TurnNumber  int            `json:"turnNumber" gorm:"index:idx_state_match_turn"`
	Status      string         `json:"status" gorm:"size:32"`
	CurrentTurn string         `json:"currentTurn" gorm:"size:64"`
	LastAction  string         `json:"lastAction" gorm:"size:16"`
	State       datatypes.JSON `json:"state"`
	RecordedAt  time.Time      `json:"recordedAt"`
}

func (*StateSnapshot) TableName() string {
	return "state_snapshots"
}
