// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/battlearena/combat-engine/internal/geo"
	"github.com/battlearena/combat-engine/internal/model"
	"github.com/battlearena/combat-engine/pkg/core"
	"gorm.io/datatypes"
)

// toJSON marshals v, falling back to empty.
func toJSON(v any, empty string) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON(empty), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// CoreToMatch converts a match start into a GORM Match with its arena zones.
// Degenerate zones are skipped.
func CoreToMatch(info *core.MatchInfo) (model.Match, error) {
	players, err := toJSON(info.Players, "[]")
	if err != nil {
		return model.Match{}, fmt.Errorf("players: %w", err)
	}

	m := model.Match{
		MatchID:   info.MatchID,
		ArenaID:   info.ArenaID,
		Players:   players,
		Status:    core.StatusActive,
		Scores:    datatypes.JSON("{}"),
		StartedAt: info.StartedAt,
	}
	if info.Arena != nil {
		for _, z := range info.Arena.WalkableZones {
			wkt := geo.ZoneWKT(z)
			if wkt == "" {
				continue
			}
			m.Zones = append(m.Zones, model.ArenaZone{
				MatchRef: info.MatchID,
				ZoneID:   z.ID,
				Boundary: wkt,
			})
		}
	}
	return m, nil
}

// ApplySummary copies a match's final outcome onto its GORM row.
func ApplySummary(m *model.Match, s *core.MatchSummary) error {
	scores, err := toJSON(s.Scores, "{}")
	if err != nil {
		return fmt.Errorf("scores: %w", err)
	}
	m.Status = s.Status
	m.Winner = s.Winner
	m.Loser = s.Loser
	m.Reason = s.Reason
	m.Turns = s.Turns
	m.Scores = scores
	m.EndedAt = sql.NullTime{Time: s.EndedAt, Valid: !s.EndedAt.IsZero()}
	return nil
}

// CoreToFire converts a fire record to a GORM Fire. The sampled path is also
// stored as WKT.
func CoreToFire(rec *core.FireRecord) (model.Fire, error) {
	f := model.Fire{
		MatchID:        rec.MatchID,
		TurnNumber:     rec.TurnNumber,
		ProjectileID:   rec.ProjectileID,
		PlayerID:       rec.PlayerID,
		WeaponID:       rec.WeaponID,
		Angle:          rec.Angle,
		Power:          rec.Power,
		Success:        rec.Success,
		ContactType:    rec.ContactType,
		TargetPlayerID: rec.TargetPlayerID,
		HitAccuracy:    rec.HitAccuracy,
		Damage:         rec.Damage,
		ScoreGained:    rec.ScoreGained,
		SynergyEffect:  rec.SynergyEffect,
		Error:          rec.Error,
		FiredAt:        rec.FiredAt,
		Trajectory:     datatypes.JSON("null"),
	}

	if rec.Trajectory != nil {
		traj, err := json.Marshal(rec.Trajectory)
		if err != nil {
			return model.Fire{}, fmt.Errorf("trajectory: %w", err)
		}
		f.Trajectory = datatypes.JSON(traj)
		if ls := geo.TrajectoryLineString(rec.Trajectory); !ls.IsEmpty() {
			f.Path = ls.AsText()
		}
	}
	return f, nil
}

// CoreToSnapshot converts a game state to a GORM StateSnapshot.
func CoreToSnapshot(st *core.GameState) (model.StateSnapshot, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return model.StateSnapshot{}, fmt.Errorf("state: %w", err)
	}
	return model.StateSnapshot{
		MatchID:     st.MatchID,
		TurnNumber:  st.TurnNumber,
		Status:      st.Status,
		CurrentTurn: st.CurrentTurn,
		LastAction:  st.LastAction,
		State:       datatypes.JSON(data),
		RecordedAt:  st.UpdatedAt,
	}, nil
}
