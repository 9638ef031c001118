package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit() *core.FireRecord {
	return &core.FireRecord{
		MatchID:        "m1",
		PlayerID:       "p1",
		WeaponID:       "torch",
		Angle:          45,
		Power:          80,
		Success:        true,
		ContactType:    string(core.ContactPlayer),
		TargetPlayerID: "p2",
		HitAccuracy:    60,
		Damage:         6,
		ScoreGained:    60,
		SynergyEffect:  "burn",
		TurnNumber:     3,
		FiredAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Trajectory:     &core.Trajectory{FlightTimeMs: 900, ApexHeight: 120},
	}
}

func TestFirePoint(t *testing.T) {
	line := influxdb2_write.PointToLineProtocol(FirePoint(hit()), time.Nanosecond)

	assert.True(t, strings.HasPrefix(line, "fire,"))
	for _, want := range []string{
		"match_id=m1",
		"player_id=p1",
		"weapon_id=torch",
		"contact=player",
		"synergy=burn",
		"target_id=p2",
		"damage=6i",
		"hit_accuracy=60i",
		"turn=3i",
		"success=true",
		"flight_ms=900",
	} {
		assert.Contains(t, line, want)
	}
}

func TestFirePoint_MissOmitsOptionalTags(t *testing.T) {
	rec := &core.FireRecord{MatchID: "m1", PlayerID: "p1", WeaponID: "stone", Success: true}
	line := influxdb2_write.PointToLineProtocol(FirePoint(rec), time.Nanosecond)

	assert.NotContains(t, line, "contact=")
	assert.NotContains(t, line, "synergy=")
	assert.NotContains(t, line, "flight_ms=")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWriteFire_WithoutConnection(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.Error(t, m.WriteFire(context.Background(), hit()))
}

func TestConnect_UnreachableWritesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fires.lp.gz")
	m := NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "combat-metrics",
		Bucket:   "fires",
	}, zerolog.Nop(), path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	require.NoError(t, m.WriteFire(ctx, hit()))
	require.NoError(t, m.WriteFire(ctx, hit()))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "fire,"))
}

func TestURL(t *testing.T) {
	m := NewManager(config.InfluxConfig{Protocol: "https", Host: "metrics", Port: "8086"}, zerolog.Nop(), "")
	assert.Equal(t, "https://metrics:8086", m.URL())
}
