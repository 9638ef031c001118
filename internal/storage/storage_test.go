// internal/storage/storage_test.go
package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/internal/storage"
	"github.com/battlearena/combat-engine/internal/storage/gormstore"
	"github.com/battlearena/combat-engine/internal/storage/memory"
	"github.com/battlearena/combat-engine/internal/storage/natskv"
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend    = storage.Noop{}
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Exportable = (*memory.Backend)(nil)
	_ storage.Backend    = (*gormstore.Backend)(nil)
	_ storage.Backend    = (*natskv.Backend)(nil)
)

func TestNoop(t *testing.T) {
	var b storage.Backend = storage.Noop{}
	require.NoError(t, b.Init())
	assert.NoError(t, b.StartMatch(&core.MatchInfo{MatchID: "m1"}))
	assert.NoError(t, b.RecordFire(&core.FireRecord{MatchID: "m1"}))
	assert.NoError(t, b.RecordState(&core.GameState{MatchID: "m1"}))
	assert.NoError(t, b.EndMatch(&core.MatchSummary{MatchID: "m1"}))
	assert.NoError(t, b.Close())
}

func TestNewBackend_Types(t *testing.T) {
	ctx := context.Background()

	b, err := storage.NewBackend(ctx, config.StorageConfig{Type: storage.TypeMemory}, storage.Options{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = storage.NewBackend(ctx, config.StorageConfig{}, storage.Options{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b, "empty type defaults to memory")

	b, err = storage.NewBackend(ctx, config.StorageConfig{Type: storage.TypeNone}, storage.Options{})
	require.NoError(t, err)
	assert.Equal(t, storage.Noop{}, b)

	_, err = storage.NewBackend(ctx, config.StorageConfig{Type: "cassette"}, storage.Options{})
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestNewBackend_SQLiteDumpsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combat.db")
	cfg := config.StorageConfig{
		Type:   storage.TypeSQLite,
		SQLite: config.SQLiteConfig{Path: path, DumpInterval: time.Hour},
	}

	b, err := storage.NewBackend(context.Background(), cfg, storage.Options{DBLogger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartMatch(&core.MatchInfo{MatchID: "m1", Players: []string{"p1", "p2"}}))
	require.NoError(t, b.RecordFire(&core.FireRecord{MatchID: "m1", TurnNumber: 1}))
	require.NoError(t, b.EndMatch(&core.MatchSummary{MatchID: "m1", Status: core.StatusEnded, Winner: "p1"}))
	require.NoError(t, b.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
