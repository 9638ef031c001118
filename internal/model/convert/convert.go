package convert

import (
	"encoding/json"
	"fmt"

	"github.com/battlearena/combat-engine/internal/model"
	"github.com/battlearena/combat-engine/pkg/core"
)

// FireToCore converts a GORM Fire back to a fire record.
func FireToCore(f model.Fire) (*core.FireRecord, error) {
	rec := &core.FireRecord{
		MatchID:        f.MatchID,
		ProjectileID:   f.ProjectileID,
		PlayerID:       f.PlayerID,
		WeaponID:       f.WeaponID,
		Angle:          f.Angle,
		Power:          f.Power,
		Success:        f.Success,
		ContactType:    f.ContactType,
		TargetPlayerID: f.TargetPlayerID,
		HitAccuracy:    f.HitAccuracy,
		Damage:         f.Damage,
		ScoreGained:    f.ScoreGained,
		SynergyEffect:  f.SynergyEffect,
		TurnNumber:     f.TurnNumber,
		FiredAt:        f.FiredAt,
		Error:          f.Error,
	}
	if len(f.Trajectory) > 0 && string(f.Trajectory) != "null" {
		var t core.Trajectory
		if err := json.Unmarshal(f.Trajectory, &t); err != nil {
			return nil, fmt.Errorf("fire %d trajectory: %w", f.ID, err)
		}
		rec.Trajectory = &t
	}
	return rec, nil
}

// SnapshotToCore decodes the game state held by a snapshot.
func SnapshotToCore(s model.StateSnapshot) (*core.GameState, error) {
	var st core.GameState
	if err := json.Unmarshal(s.State, &st); err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", s.ID, err)
	}
	return &st, nil
}

// MatchToSummary converts a GORM Match to a match summary.
func MatchToSummary(m model.Match) (*core.MatchSummary, error) {
	s := &core.MatchSummary{
		MatchID:   m.MatchID,
		ArenaID:   m.ArenaID,
		Status:    m.Status,
		Winner:    m.Winner,
		Loser:     m.Loser,
		Reason:    m.Reason,
		Turns:     m.Turns,
		StartedAt: m.StartedAt,
	}
	if m.EndedAt.Valid {
		s.EndedAt = m.EndedAt.Time
	}
	if len(m.Scores) > 0 {
		if err := json.Unmarshal(m.Scores, &s.Scores); err != nil {
			return nil, fmt.Errorf("match %s scores: %w", m.MatchID, err)
		}
	}
	return s, nil
}
