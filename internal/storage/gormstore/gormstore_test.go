package gormstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/battlearena/combat-engine/internal/database"
	"github.com/battlearena/combat-engine/internal/queue"
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var startedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBackend(t *testing.T, deps Dependencies) *Backend {
	t.Helper()
	mgr := database.NewManager(zerolog.Nop())
	require.NoError(t, mgr.ConnectSQLite(filepath.Join(t.TempDir(), "combat.db")))
	t.Cleanup(func() { _ = mgr.Close() })

	deps.DB = mgr.DB
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if deps.FlushInterval == 0 {
		deps.FlushInterval = time.Hour
	}
	b := New(deps)
	require.NoError(t, b.Init())
	return b
}

func startInfo(id string) *core.MatchInfo {
	return &core.MatchInfo{
		MatchID:   id,
		ArenaID:   "canyon",
		Players:   []string{"p1", "p2"},
		StartedAt: startedAt,
		Arena: &core.Arena{
			ID:          "canyon",
			WorldBounds: core.Bounds{Width: 800, Height: 600},
			WalkableZones: []core.Zone{
				{ID: "left", Polygon: []core.Vector{{X: 0, Y: 400}, {X: 300, Y: 400}, {X: 300, Y: 500}, {X: 0, Y: 500}}},
				{ID: "broken", Polygon: []core.Vector{{X: 0, Y: 0}}},
			},
		},
	}
}

func fireRecord(id string, turn int) *core.FireRecord {
	return &core.FireRecord{
		MatchID:        id,
		ProjectileID:   "proj",
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
		TurnNumber:     turn,
		FiredAt:        startedAt.Add(time.Duration(turn) * time.Second),
		Trajectory: &core.Trajectory{
			Path: []core.PathPoint{{X: 100, Y: 400}, {X: 300, Y: 400, ElapsedMs: 200}},
		},
	}
}

func gameState(id string, turn int) *core.GameState {
	return &core.GameState{
		MatchID:     id,
		Status:      core.StatusActive,
		CurrentTurn: "p2",
		TurnNumber:  turn,
		PlayerOrder: []string{"p1", "p2"},
		Players: map[string]*core.PlayerState{
			"p1": {ID: "p1", Health: 100, MaxHealth: 100, Alive: true},
			"p2": {ID: "p2", Health: 94, MaxHealth: 100, Alive: true},
		},
		LastAction: "fire",
		UpdatedAt:  startedAt,
	}
}

func TestInitRequiresDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
}

func TestStartMatch_StoresZones(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	defer b.Close()

	require.NoError(t, b.StartMatch(startInfo("m1")))

	zones, err := b.Zones(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, zones, 1, "degenerate zones are skipped")
	assert.Equal(t, "left", zones[0].ZoneID)
	assert.Contains(t, zones[0].Boundary, "POLYGON")

	s, err := b.Summary(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, s.Status)
	assert.True(t, s.EndedAt.IsZero())
}

func TestRecord_QueuedUntilFlush(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	defer b.Close()

	require.NoError(t, b.StartMatch(startInfo("m1")))
	require.NoError(t, b.RecordFire(fireRecord("m1", 1)))
	require.NoError(t, b.RecordState(gameState("m1", 2)))
	assert.Equal(t, 2, b.Pending())

	fires, err := b.Fires(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, fires)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())

	fires, err = b.Fires(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, fires, 1)
	assert.Equal(t, "p2", fires[0].TargetPlayerID)
	assert.Equal(t, 6, fires[0].Damage)
	require.NotNil(t, fires[0].Trajectory)
	assert.Len(t, fires[0].Trajectory.Path, 2)

	st, err := b.LatestState(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.TurnNumber)
	assert.Equal(t, 94, st.Players["p2"].Health)
}

func TestFires_TurnOrder(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	defer b.Close()

	require.NoError(t, b.StartMatch(startInfo("m1")))
	for _, turn := range []int{3, 1, 2} {
		require.NoError(t, b.RecordFire(fireRecord("m1", turn)))
	}
	require.NoError(t, b.Flush())

	fires, err := b.Fires(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, fires, 3)
	for i, f := range fires {
		assert.Equal(t, i+1, f.TurnNumber)
	}
}

func TestEndMatch_FlushesAndStoresSummary(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	defer b.Close()

	require.NoError(t, b.StartMatch(startInfo("m1")))
	require.NoError(t, b.RecordFire(fireRecord("m1", 1)))

	err := b.EndMatch(&core.MatchSummary{
		MatchID:   "m1",
		ArenaID:   "canyon",
		Status:    core.StatusEnded,
		Winner:    "p1",
		Loser:     "p2",
		Reason:    core.ReasonOpponentEliminated,
		Turns:     7,
		Scores:    map[string]int{"p1": 300, "p2": 40},
		StartedAt: startedAt,
		EndedAt:   startedAt.Add(5 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Pending())

	s, err := b.Summary(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusEnded, s.Status)
	assert.Equal(t, "p1", s.Winner)
	assert.Equal(t, 7, s.Turns)
	assert.Equal(t, 300, s.Scores["p1"])
	assert.False(t, s.EndedAt.IsZero())

	fires, err := b.Fires(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, fires, 1)
}

func TestEndMatch_UnknownMatch(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	defer b.Close()

	err := b.EndMatch(&core.MatchSummary{MatchID: "ghost"})
	assert.ErrorIs(t, err, core.ErrMatchNotFound)
}

func TestStartMatch_RestartReplaces(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	defer b.Close()

	require.NoError(t, b.StartMatch(startInfo("m1")))
	require.NoError(t, b.RecordFire(fireRecord("m1", 1)))
	require.NoError(t, b.Flush())

	require.NoError(t, b.StartMatch(startInfo("m1")))

	fires, err := b.Fires(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, fires)

	zones, err := b.Zones(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, zones, 1)
}

func TestLatestState_UnknownMatch(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	defer b.Close()

	_, err := b.LatestState(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrMatchNotFound)
}

func TestWriteLoop_FlushesOnTick(t *testing.T) {
	b := newTestBackend(t, Dependencies{FlushInterval: 10 * time.Millisecond})
	defer b.Close()

	require.NoError(t, b.StartMatch(startInfo("m1")))
	require.NoError(t, b.RecordFire(fireRecord("m1", 1)))

	assert.Eventually(t, func() bool {
		fires, err := b.Fires(context.Background(), "m1")
		return err == nil && len(fires) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_FlushesAndDumps(t *testing.T) {
	dumps := 0
	b := newTestBackend(t, Dependencies{Dump: func() error {
		dumps++
		return nil
	}})

	require.NoError(t, b.StartMatch(startInfo("m1")))
	require.NoError(t, b.RecordState(gameState("m1", 1)))
	require.NoError(t, b.Close())

	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 1, dumps)

	require.NoError(t, b.Close(), "second close is a no-op")
	assert.Equal(t, 1, dumps)
}

func TestClose_ReportsDumpError(t *testing.T) {
	b := newTestBackend(t, Dependencies{Dump: func() error { return errors.New("disk full") }})
	err := b.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestDumpLoop_WritesSnapshotFile(t *testing.T) {
	mgr := database.NewManager(zerolog.Nop())
	require.NoError(t, mgr.ConnectSQLite(filepath.Join(t.TempDir(), "live.db")))
	t.Cleanup(func() { _ = mgr.Close() })
	mgr.SqliteFilePath = filepath.Join(t.TempDir(), "dump.db")

	b := New(Dependencies{
		DB:            mgr.DB,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		FlushInterval: time.Hour,
		Dump:          mgr.DumpMemoryToDisk,
		DumpInterval:  10 * time.Millisecond,
	})
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		paths, err := database.GetBackupDBPaths(filepath.Dir(mgr.SqliteFilePath))
		return err == nil && len(paths) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWriteQueue_RequeuesWhenBeginFails(t *testing.T) {
	mgr := database.NewManager(zerolog.Nop())
	require.NoError(t, mgr.ConnectSQLite(filepath.Join(t.TempDir(), "closed.db")))
	db := mgr.DB
	require.NoError(t, mgr.Close())

	q := queue.New[int]()
	q.Push(1, 2)

	err := writeQueue(db, q, "fires", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beginning fires")
	assert.Equal(t, []int{1, 2}, q.Drain())
}
