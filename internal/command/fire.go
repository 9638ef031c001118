// Package command wraps player intents as executable, auditable actions.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/battlearena/combat-engine/pkg/core"
)

// Firer resolves fire requests. The engine implements it.
type Firer interface {
	HandlePlayerFire(ctx context.Context, matchID, playerID string, angle, power float64, weaponID string) (*core.FireResult, error)
}

// Outcomes recorded in Details.
const (
	OutcomePending  = "pending"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeResolved = "resolved"
)

// Details is the audit record of an executed fire.
type Details struct {
	MatchID    string        `json:"matchId"`
	PlayerID   string        `json:"playerId"`
	WeaponID   string        `json:"weaponId"`
	Angle      float64       `json:"angle"`
	Power      float64       `json:"power"`
	Outcome    string        `json:"outcome"`
	Hit        string        `json:"hit,omitempty"`
	Score      int           `json:"score"`
	Error      string        `json:"error,omitempty"`
	ExecutedAt time.Time     `json:"executedAt"`
	Duration   time.Duration `json:"duration"`
}

// Fire is a single fire intent.
type Fire struct {
	Request    core.FireRequest
	ExecutedAt time.Time

	logger  *slog.Logger
	details Details
}

// NewFire builds a fire command stamped with the current time.
func NewFire(matchID, playerID string, angle, power float64, weaponID string, logger *slog.Logger) *Fire {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fire{
		Request: core.FireRequest{
			MatchID:     matchID,
			PlayerID:    playerID,
			Angle:       angle,
			Power:       power,
			WeaponID:    weaponID,
			RequestedAt: time.Now(),
		},
		logger: logger,
		details: Details{
			MatchID:  matchID,
			PlayerID: playerID,
			WeaponID: weaponID,
			Angle:    angle,
			Power:    power,
			Outcome:  OutcomePending,
		},
	}
}

// Validate checks the request fields.
func (f *Fire) Validate() error {
	return f.Request.Validate()
}

// Execute validates the request and hands it to the firer. Validation
// failures never reach the firer.
func (f *Fire) Execute(ctx context.Context, firer Firer) (*core.FireResult, error) {
	f.ExecutedAt = time.Now()
	f.details.ExecutedAt = f.ExecutedAt

	if err := f.Validate(); err != nil {
		f.finish(OutcomeRejected, nil, err)
		return nil, err
	}

	r := f.Request
	result, err := firer.HandlePlayerFire(ctx, r.MatchID, r.PlayerID, r.Angle, r.Power, r.WeaponID)
	switch {
	case err != nil:
		f.finish(OutcomeRejected, nil, err)
	case result == nil || !result.Success:
		f.finish(OutcomeFailed, result, nil)
	default:
		f.finish(OutcomeResolved, result, nil)
	}
	return result, err
}

func (f *Fire) finish(outcome string, result *core.FireResult, err error) {
	d := &f.details
	d.Outcome = outcome
	d.Duration = time.Since(f.ExecutedAt)
	if err != nil {
		d.Error = err.Error()
	}
	if result != nil {
		if result.Error != "" {
			d.Error = result.Error
		}
		d.Score = result.ScoreGained
		if result.Collision != nil {
			d.Hit = string(result.Collision.Type)
		}
	}

	attrs := []any{
		"matchId", d.MatchID,
		"playerId", d.PlayerID,
		"weaponId", d.WeaponID,
		"angle", d.Angle,
		"power", d.Power,
		"outcome", d.Outcome,
		"duration", d.Duration,
	}
	if d.Hit != "" {
		attrs = append(attrs, "hit", d.Hit, "score", d.Score)
	}
	if d.Error != "" {
		f.logger.Warn("Fire command not resolved", append(attrs, "error", d.Error)...)
		return
	}
	f.logger.Info("Fire command executed", attrs...)
}

// Details returns the audit record. Before Execute the outcome is pending.
func (f *Fire) Details() Details {
	return f.details
}
