package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/internal/dispatcher"
	"github.com/battlearena/combat-engine/internal/engine"
	"github.com/battlearena/combat-engine/internal/handlers"
	"github.com/battlearena/combat-engine/internal/logging"
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponses(t *testing.T, out *bytes.Buffer) []response {
	t.Helper()
	var resps []response
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var r response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		resps = append(resps, r)
	}
	return resps
}

func testDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(logging.NewZerologAdapter(zerolog.Nop()))
	require.NoError(t, err)
	registerLifecycleHandlers(d)
	d.Register(":FAIL:", func(context.Context, dispatcher.Event) (any, error) {
		return nil, fmt.Errorf("wrapped: %w", core.ErrNotYourTurn)
	})
	d.Register(":ECHO:", func(_ context.Context, e dispatcher.Event) (any, error) {
		return e.Args, nil
	})
	return d
}

func TestServe_OneResponsePerLine(t *testing.T) {
	d := testDispatcher(t)
	in := strings.NewReader(strings.Join([]string{
		`{"id":"1","command":":PING:"}`,
		``,
		`{"id":"2","command":":FAIL:"}`,
		`not json`,
		`{"id":"3","command":":NOPE:"}`,
		`{"id":"4","command":":ECHO:","args":["a",45.5,{"players":["p1"]},true]}`,
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, serve(context.Background(), in, &out, d, slog.New(slog.NewTextHandler(io.Discard, nil))))

	resps := decodeResponses(t, &out)
	require.Len(t, resps, 5)

	assert.Equal(t, "1", resps[0].ID)
	assert.True(t, resps[0].OK)
	assert.Equal(t, "pong", resps[0].Result)

	assert.False(t, resps[1].OK)
	assert.Equal(t, "not_your_turn", resps[1].Kind)

	assert.False(t, resps[2].OK)
	assert.Equal(t, "request", resps[2].Kind)

	assert.False(t, resps[3].OK)
	assert.Contains(t, resps[3].Error, "unknown command")

	assert.True(t, resps[4].OK)
	assert.Equal(t, []any{"a", "45.5", `{"players":["p1"]}`, "true"}, resps[4].Result)
}

func TestServe_GeneratesMissingIDs(t *testing.T) {
	d := testDispatcher(t)
	var out bytes.Buffer
	require.NoError(t, serve(context.Background(), strings.NewReader(`{"command":":PING:"}`), &out, d, slog.Default()))

	resps := decodeResponses(t, &out)
	require.Len(t, resps, 1)
	assert.Len(t, resps[0].ID, 36)
}

func TestServe_StopsOnCancel(t *testing.T) {
	d := testDispatcher(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, pr, io.Discard, d, slog.Default()) }()

	cancel()
	assert.NoError(t, <-done)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&core.ValidationError{Field: "angle", Message: "bad"}, "validation"},
		{&core.SimulationError{Stage: "resolve", Err: errors.New("boom")}, "simulation"},
		{fmt.Errorf("x: %w", core.ErrMatchNotFound), "match_not_found"},
		{core.ErrMatchExists, "match_exists"},
		{core.ErrMatchEnded, "match_ended"},
		{core.ErrUnknownPlayer, "unknown_player"},
		{core.ErrNoMovesLeft, "no_moves_left"},
		{fmt.Errorf(":ZONES: %w", handlers.ErrNoHistory), "unsupported"},
		{dispatcher.ErrClosed, "closed"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorKind(tt.err), tt.err.Error())
	}
}

func TestArgString(t *testing.T) {
	assert.Equal(t, "m1", argString(json.RawMessage(`"m1"`)))
	assert.Equal(t, "12", argString(json.RawMessage(`12`)))
	assert.Equal(t, `{"a":1}`, argString(json.RawMessage(` {"a":1} `)))
}

func TestEngineConfig_FromDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	_ = config.Load(t.TempDir())

	cfg, err := engineConfig(config.GetGameConfig())
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.DefaultHealth)
	assert.Equal(t, 4, cfg.DefaultMovesRemaining)
	assert.Equal(t, int64(15000), cfg.TurnDurationMs)
	assert.Equal(t, 50.0, cfg.Collision.HitRadius)
	assert.True(t, cfg.Collision.TerrainEnabled)
	assert.Equal(t, 0.001, cfg.Physics.Gravity)
	assert.Empty(t, cfg.Weapons)
}

func TestRun_Session(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	recDir := filepath.Join(dir, "rec")

	cfg := map[string]any{
		"logLevel": "error",
		"logsDir":  filepath.Join(dir, "logs"),
		"arena":    map[string]any{"dir": filepath.Join(dir, "arenas")},
		"storage": map[string]any{
			"type":   "memory",
			"memory": map[string]any{"outputDir": recDir, "compressOutput": false},
		},
		"collision": map[string]any{"terrainEnabled": false},
		"weapons": []map[string]any{
			{"id": "torch", "baseDamage": 12},
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), data, 0644))

	in := strings.NewReader(strings.Join([]string{
		`{"id":"create","command":":ROOM:CREATE:","args":["m1",{"players":["p1","p2"],"arenaId":"flat"}]}`,
		`{"id":"wrong-turn","command":":FIRE:","args":["m1","p2",45,50,"torch"]}`,
		`{"id":"fire","command":":FIRE:","args":["m1","p1",45,50,"torch"]}`,
		`{"id":"state","command":":STATE:","args":["m1"]}`,
		`{"id":"matches","command":":MATCHES:"}`,
		`{"id":"fires","command":":FIRES:","args":["m1"]}`,
		`{"id":"end","command":":MATCH:END:","args":["m1"]}`,
		`{"id":"version","command":":VERSION:"}`,
	}, "\n"))
	var out, errOut bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"--config-dir", dir}, in, &out, &errOut))

	resps := decodeResponses(t, &out)
	require.Len(t, resps, 8)
	byID := make(map[string]response, len(resps))
	for _, r := range resps {
		byID[r.ID] = r
	}

	assert.True(t, byID["create"].OK, byID["create"].Error)
	assert.Equal(t, "not_your_turn", byID["wrong-turn"].Kind)
	assert.True(t, byID["fire"].OK, byID["fire"].Error)
	assert.True(t, byID["end"].OK, byID["end"].Error)
	assert.Equal(t, []any{"m1"}, byID["matches"].Result)
	assert.True(t, byID["fires"].OK, byID["fires"].Error)
	assert.Len(t, byID["fires"].Result, 1)

	state, ok := byID["state"].Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "p2", state["currentTurn"])
	assert.EqualValues(t, 2, state["turnNumber"])

	files, err := filepath.Glob(filepath.Join(recDir, "m1_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	logs, err := filepath.Glob(filepath.Join(dir, "logs", ServiceName+".*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRun_UnknownStorage(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(`{"logsDir":""}`), 0644))

	err := run(context.Background(), []string{"--config-dir", dir, "--storage", "tape"}, strings.NewReader(""), io.Discard, io.Discard)
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestEngineConfig_ShippedConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, config.Load(filepath.Join("..", "..", "configs")))

	cfg, err := engineConfig(config.GetGameConfig())
	require.NoError(t, err)
	assert.Len(t, cfg.Weapons, 6)
	require.Len(t, cfg.Synergies, 3)
	assert.Equal(t, "burn", cfg.Synergies[0].Effect)
	assert.Equal(t, "sqlite", config.GetStorageConfig().Type)
}

type pendingBackend struct{ n int }

func (p pendingBackend) Pending() int { return p.n }

func TestNewMonitor(t *testing.T) {
	eng, err := engine.New(engine.DefaultConfig(), engine.Dependencies{})
	require.NoError(t, err)
	defer eng.Close(context.Background())

	assert.Nil(t, newMonitor(config.MonitorConfig{}, eng, pendingBackend{}, nil, slog.Default()))

	mon := newMonitor(config.MonitorConfig{Enabled: true}, eng, pendingBackend{n: 3}, nil, slog.Default())
	require.NotNil(t, mon)
	st := mon.Snapshot()
	assert.Equal(t, 3, st.PendingWrites)
	assert.Zero(t, st.ActiveMatches)
}
