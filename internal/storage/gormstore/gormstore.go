// Package gormstore implements the storage.Backend interface on GORM
// (SQLite or PostgreSQL) with internal queues and a background writer.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/battlearena/combat-engine/internal/model"
	"github.com/battlearena/combat-engine/internal/model/convert"
	"github.com/battlearena/combat-engine/internal/queue"
	"github.com/battlearena/combat-engine/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued rows are written when none is configured.
const DefaultFlushInterval = 2 * time.Second

// DefaultMaxPending bounds each write queue when no limit is configured.
const DefaultMaxPending = 100_000

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger

	FlushInterval time.Duration
	// MaxPending bounds each write queue; the oldest rows are dropped
	// while the database is unreachable.
	MaxPending int

	// Dump, when set, is called every DumpInterval and once on Close.
	// It is how an in-memory SQLite database reaches disk.
	Dump         func() error
	DumpInterval time.Duration
}

// queues holds the write queues for batch insertion.
type queues struct {
	Fires  *queue.Queue[model.Fire]
	States *queue.Queue[model.StateSnapshot]
}

func newQueues(limit int) *queues {
	return &queues{
		Fires:  queue.NewBounded[model.Fire](limit),
		States: queue.NewBounded[model.StateSnapshot](limit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
// Match rows are written synchronously; fires and snapshots are batched.
type Backend struct {
	deps   Dependencies
	log    *slog.Logger
	queues *queues

	flushMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.MaxPending <= 0 {
		deps.MaxPending = DefaultMaxPending
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:     deps,
		log:      log.With("storage", "gorm"),
		queues:   newQueues(deps.MaxPending),
		stopChan: make(chan struct{}),
	}
}

// Init migrates the schema if needed and starts the writer goroutines.
func (b *Backend) Init() error {
	db := b.deps.DB
	if db == nil {
		return fmt.Errorf("gormstore: no database")
	}

	if !db.Migrator().HasTable(&model.Match{}) {
		b.log.Info("Migrating schema")
		if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	b.wg.Add(1)
	go b.writeLoop()

	if b.deps.Dump != nil && b.deps.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the background goroutines, writes what is still queued and
// runs a last dump.
func (b *Backend) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stopChan)
		b.wg.Wait()

		err = b.Flush()
		if b.deps.Dump != nil {
			if dumpErr := b.deps.Dump(); dumpErr != nil {
				err = errors.Join(err, fmt.Errorf("final dump: %w", dumpErr))
			}
		}
	})
	return err
}

// StartMatch writes the match row and its arena zones. Starting a match id
// that already exists replaces everything recorded under it.
func (b *Backend) StartMatch(info *core.MatchInfo) error {
	m, err := convert.CoreToMatch(info)
	if err != nil {
		return fmt.Errorf("match %s: %w", info.MatchID, err)
	}

	return b.deps.DB.Transaction(func(tx *gorm.DB) error {
		for _, table := range []any{&model.ArenaZone{}, &model.Fire{}, &model.StateSnapshot{}} {
			col := "match_id"
			if _, ok := table.(*model.ArenaZone); ok {
				col = "match_ref"
			}
			if err := tx.Where(col+" = ?", info.MatchID).Delete(table).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("match_id = ?", info.MatchID).Delete(&model.Match{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("creating match %s: %w", info.MatchID, err)
		}
		return nil
	})
}

// EndMatch writes pending rows, then stores the summary on the match row.
func (b *Backend) EndMatch(s *core.MatchSummary) error {
	if err := b.Flush(); err != nil {
		b.log.Warn("Flush before match end failed", "matchId", s.MatchID, "error", err)
	}

	var m model.Match
	err := b.deps.DB.Where("match_id = ?", s.MatchID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("match %s: %w", s.MatchID, core.ErrMatchNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading match %s: %w", s.MatchID, err)
	}

	if err := convert.ApplySummary(&m, s); err != nil {
		return fmt.Errorf("match %s: %w", s.MatchID, err)
	}
	return b.deps.DB.Model(&m).Select("status", "winner", "loser", "reason", "turns", "scores", "ended_at").Updates(&m).Error
}

// RecordFire converts and queues a fire.
func (b *Backend) RecordFire(rec *core.FireRecord) error {
	f, err := convert.CoreToFire(rec)
	if err != nil {
		return fmt.Errorf("fire in match %s: %w", rec.MatchID, err)
	}
	b.queues.Fires.Push(f)
	return nil
}

// RecordState converts and queues a state snapshot.
func (b *Backend) RecordState(st *core.GameState) error {
	s, err := convert.CoreToSnapshot(st)
	if err != nil {
		return fmt.Errorf("state of match %s: %w", st.MatchID, err)
	}
	b.queues.States.Push(s)
	return nil
}

// Pending returns how many rows are waiting to be written.
func (b *Backend) Pending() int {
	return b.queues.Fires.Len() + b.queues.States.Len()
}

// Flush writes every queued row now.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Fires, "fires", b.log),
		writeQueue(b.deps.DB, b.queues.States, "state snapshots", b.log),
	)
}

// writeQueue writes all items from a queue in one transaction. On failure
// the items go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	tx := db.Begin()
	if err := tx.Error; err != nil {
		log.Error("Error starting transaction for "+name, "count", len(items), "error", err)
		requeue(q, items, name, log)
		return fmt.Errorf("beginning %s: %w", name, err)
	}
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error writing "+name, "count", len(items), "error", err)
		tx.Rollback()
		requeue(q, items, name, log)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		requeue(q, items, name, log)
		return fmt.Errorf("committing %s: %w", name, err)
	}

	log.Debug("Wrote "+name, "count", len(items))
	return nil
}

func requeue[T any](q *queue.Queue[T], items []T, name string, log *slog.Logger) {
	if dropped := q.Requeue(items...); dropped > 0 {
		log.Warn("Dropped queued "+name, "count", dropped)
	}
}

func (b *Backend) writeLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged by writeQueue and retried next tick
			_ = b.Flush()
		}
	}
}

// dumpLoop periodically calls Dump. VACUUM INTO takes a point-in-time
// snapshot, so writes continue meanwhile.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.deps.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			} else {
				b.log.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}

// Fires returns the written fires of a match in turn order.
func (b *Backend) Fires(ctx context.Context, matchID string) ([]*core.FireRecord, error) {
	var rows []model.Fire
	if err := b.deps.DB.WithContext(ctx).Where("match_id = ?", matchID).Order("turn_number, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*core.FireRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := convert.FireToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// LatestState returns the most recent written snapshot of a match.
func (b *Backend) LatestState(ctx context.Context, matchID string) (*core.GameState, error) {
	var row model.StateSnapshot
	err := b.deps.DB.WithContext(ctx).Where("match_id = ?", matchID).Order("id desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
	}
	if err != nil {
		return nil, err
	}
	return convert.SnapshotToCore(row)
}

// Summary returns a match row as a summary. A match that has not ended has
// a zero EndedAt.
func (b *Backend) Summary(ctx context.Context, matchID string) (*core.MatchSummary, error) {
	var m model.Match
	err := b.deps.DB.WithContext(ctx).Where("match_id = ?", matchID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
	}
	if err != nil {
		return nil, err
	}
	return convert.MatchToSummary(m)
}

// Zones returns the stored arena zones of a match.
func (b *Backend) Zones(ctx context.Context, matchID string) ([]model.ArenaZone, error) {
	var zones []model.ArenaZone
	err := b.deps.DB.WithContext(ctx).Where("match_ref = ?", matchID).Order("id").Find(&zones).Error
	return zones, err
}
