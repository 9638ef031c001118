package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/internal/influx"
	"github.com/battlearena/combat-engine/internal/storage"
	"github.com/rs/zerolog"
)

// newStorage creates and initializes the configured backend.
func newStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger, zlog zerolog.Logger) (storage.Backend, error) {
	backend, err := storage.NewBackend(ctx, cfg, storage.Options{
		Logger:   logger,
		DBLogger: zlog,
	})
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("initializing %s backend: %w", cfg.Type, err)
	}
	logger.Info("Storage backend initialized", "type", cfg.Type)
	return backend, nil
}

// newFireSink connects the InfluxDB fire writer. It returns nil when influx
// is disabled or cannot be used at all.
func newFireSink(ctx context.Context, cfg config.InfluxConfig, logsDir string, start time.Time, zlog zerolog.Logger) *influx.Manager {
	if !cfg.Enabled {
		return nil
	}

	backupPath := ""
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err == nil {
			backupPath = filepath.Join(logsDir, fmt.Sprintf("%s_fires_%s.lp.gz", ServiceName, start.Format("20060102_150405")))
		}
	}

	m := influx.NewManager(cfg, zlog, backupPath)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			zlog.Error().Err(err).Msg("Fire metrics disabled")
		}
		return nil
	}
	return m
}
