// internal/storage/factory.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/internal/database"
	"github.com/battlearena/combat-engine/internal/storage/gormstore"
	"github.com/battlearena/combat-engine/internal/storage/memory"
	"github.com/battlearena/combat-engine/internal/storage/natskv"
	"github.com/rs/zerolog"
)

// Storage types accepted in storage.type.
const (
	TypeNone     = "none"
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeNATS     = "nats"
)

// Options carries what the factory needs besides configuration.
type Options struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
}

// NewBackend creates a storage backend based on configuration. The backend
// is returned uninitialized.
func NewBackend(ctx context.Context, cfg config.StorageConfig, opts Options) (Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch cfg.Type {
	case TypeNone:
		return Noop{}, nil
	case TypeMemory, "":
		return memory.New(cfg.Memory), nil
	case TypeSQLite:
		mgr := database.NewManager(opts.DBLogger)
		mgr.SqliteFilePath = cfg.SQLite.Path
		if err := mgr.ConnectSQLite(""); err != nil {
			return nil, err
		}
		return newDBBackend(mgr, cfg, opts)
	case TypePostgres:
		mgr := database.NewManager(opts.DBLogger)
		if err := mgr.Connect(cfg.DB, cfg.SQLite.Path); err != nil {
			return nil, err
		}
		return newDBBackend(mgr, cfg, opts)
	case TypeNATS:
		return natskv.Connect(ctx, cfg.NATS, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// dbBackend owns the database connection of a gorm backend.
type dbBackend struct {
	*gormstore.Backend
	mgr *database.Manager
}

func newDBBackend(mgr *database.Manager, cfg config.StorageConfig, opts Options) (*dbBackend, error) {
	if err := mgr.Setup(); err != nil {
		_ = mgr.Close()
		return nil, err
	}

	deps := gormstore.Dependencies{
		DB:     mgr.DB,
		Logger: opts.Logger,
	}
	// in-memory SQLite reaches disk through periodic dumps
	if mgr.ShouldSaveLocal && cfg.SQLite.Path != "" {
		deps.Dump = mgr.DumpMemoryToDisk
		deps.DumpInterval = cfg.SQLite.DumpInterval
	}
	return &dbBackend{Backend: gormstore.New(deps), mgr: mgr}, nil
}

// Close stops the gorm backend, then closes the connection.
func (b *dbBackend) Close() error {
	return errors.Join(b.Backend.Close(), b.mgr.Close())
}
