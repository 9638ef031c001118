// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/pkg/core"
)

// MatchRecord groups a match with everything recorded for it
type MatchRecord struct {
	Info    core.MatchInfo
	Fires   []core.FireRecord
	States  []*core.GameState
	Summary *core.MatchSummary
}

// Backend keeps match data in memory and exports each match to JSON when it
// ends. With no output directory configured nothing is written to disk.
type Backend struct {
	cfg config.MemoryConfig

	matches  map[string]*MatchRecord
	exported map[string]string // matchID -> file path

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		matches:  make(map[string]*MatchRecord),
		exported: make(map[string]string),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports any match that never received an end summary.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for id, rec := range b.matches {
		if err := b.exportJSON(rec); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.matches, id)
	}
	return firstErr
}

// StartMatch begins recording a match. Restarting a known match id resets it.
func (b *Backend) StartMatch(info *core.MatchInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.matches[info.MatchID] = &MatchRecord{Info: *info}
	delete(b.exported, info.MatchID)
	return nil
}

// EndMatch attaches the summary, exports the match and drops it from memory.
func (b *Backend) EndMatch(summary *core.MatchSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.matches[summary.MatchID]
	if !ok {
		return fmt.Errorf("match %s not recorded", summary.MatchID)
	}
	s := *summary
	rec.Summary = &s

	err := b.exportJSON(rec)
	delete(b.matches, summary.MatchID)
	return err
}

// RecordFire appends a fire to its match.
func (b *Backend) RecordFire(f *core.FireRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.matches[f.MatchID]
	if !ok {
		return fmt.Errorf("match %s not recorded", f.MatchID)
	}
	rec.Fires = append(rec.Fires, *f)
	return nil
}

// RecordState appends a state snapshot to its match.
func (b *Backend) RecordState(st *core.GameState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.matches[st.MatchID]
	if !ok {
		return fmt.Errorf("match %s not recorded", st.MatchID)
	}
	rec.States = append(rec.States, st.Clone())
	return nil
}

// Match returns a copy of what has been recorded for a live match.
func (b *Backend) Match(matchID string) (MatchRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.matches[matchID]
	if !ok {
		return MatchRecord{}, false
	}
	out := *rec
	out.Fires = append([]core.FireRecord(nil), rec.Fires...)
	out.States = append([]*core.GameState(nil), rec.States...)
	return out, true
}

// LatestState returns the last state recorded for a live match.
func (b *Backend) LatestState(_ context.Context, matchID string) (*core.GameState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.matches[matchID]
	if !ok || len(rec.States) == 0 {
		return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
	}
	return rec.States[len(rec.States)-1].Clone(), nil
}

// Fires returns the fires recorded for a live match.
func (b *Backend) Fires(_ context.Context, matchID string) ([]*core.FireRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, core.ErrMatchNotFound)
	}
	out := make([]*core.FireRecord, len(rec.Fires))
	for i := range rec.Fires {
		f := rec.Fires[i]
		out[i] = &f
	}
	return out, nil
}

// ExportedFilePath returns the path of the last export of a match, or "".
func (b *Backend) ExportedFilePath(matchID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exported[matchID]
}
