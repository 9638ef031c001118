// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/battlearena/combat-engine/pkg/core"
)

// MatchExport is the root JSON structure of an exported match
type MatchExport struct {
	MatchID   string            `json:"matchId"`
	ArenaID   string            `json:"arenaId"`
	Players   []string          `json:"players"`
	Arena     *core.Arena       `json:"arena,omitempty"`
	Status    string            `json:"status"`
	Winner    string            `json:"winner,omitempty"`
	Loser     string            `json:"loser,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Turns     int               `json:"turns"`
	Scores    map[string]int    `json:"scores"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`
	Fires     []FireJSON        `json:"fires"`
	States    []*core.GameState `json:"states"`
}

// FireJSON is one fire in an export.
type FireJSON struct {
	TurnNumber     int              `json:"turnNumber"`
	ProjectileID   string           `json:"projectileId"`
	PlayerID       string           `json:"playerId"`
	WeaponID       string           `json:"weaponId"`
	Angle          float64          `json:"angle"`
	Power          float64          `json:"power"`
	Success        bool             `json:"success"`
	ContactType    string           `json:"contactType,omitempty"`
	TargetPlayerID string           `json:"targetPlayerId,omitempty"`
	HitAccuracy    int              `json:"hitAccuracy"`
	Damage         int              `json:"damage"`
	ScoreGained    int              `json:"scoreGained"`
	SynergyEffect  string           `json:"synergyEffect,omitempty"`
	Trajectory     *core.Trajectory `json:"trajectory,omitempty"`
	FiredAt        time.Time        `json:"firedAt"`
}

// fileSafe replaces characters that are awkward in file names.
func fileSafe(s string) string {
	return strings.NewReplacer(" ", "_", ":", "_", "/", "_", `\`, "_").Replace(s)
}

// exportJSON writes the match to a JSON file, gzipped when configured.
func (b *Backend) exportJSON(rec *MatchRecord) error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	export := buildExport(rec)

	timestamp := rec.Info.StartedAt.UTC().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.json", fileSafe(rec.Info.MatchID), timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.exported[rec.Info.MatchID] = outputPath
	return nil
}

func buildExport(rec *MatchRecord) MatchExport {
	export := MatchExport{
		MatchID:   rec.Info.MatchID,
		ArenaID:   rec.Info.ArenaID,
		Players:   rec.Info.Players,
		Arena:     rec.Info.Arena,
		Status:    core.StatusActive,
		Scores:    map[string]int{},
		StartedAt: rec.Info.StartedAt,
		Fires:     make([]FireJSON, 0, len(rec.Fires)),
		States:    rec.States,
	}
	if export.States == nil {
		export.States = []*core.GameState{}
	}

	if s := rec.Summary; s != nil {
		export.Status = s.Status
		export.Winner = s.Winner
		export.Loser = s.Loser
		export.Reason = s.Reason
		export.Turns = s.Turns
		if s.Scores != nil {
			export.Scores = s.Scores
		}
		if !s.EndedAt.IsZero() {
			ended := s.EndedAt
			export.EndedAt = &ended
		}
	}

	for _, f := range rec.Fires {
		export.Fires = append(export.Fires, FireJSON{
			TurnNumber:     f.TurnNumber,
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
			Trajectory:     f.Trajectory,
			FiredAt:        f.FiredAt,
		})
	}

	return export
}

func writeJSON(path string, data MatchExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data MatchExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
