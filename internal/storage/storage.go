// internal/storage/storage.go
package storage

import "github.com/battlearena/combat-engine/pkg/core"

// Backend is the interface all storage implementations must satisfy.
// The engine calls it only after a change has been committed.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Match management
	StartMatch(info *core.MatchInfo) error
	EndMatch(summary *core.MatchSummary) error

	// Recording
	RecordFire(rec *core.FireRecord) error
	RecordState(state *core.GameState) error
}

// Exportable is an optional interface for backends that write a file per match.
type Exportable interface {
	ExportedFilePath(matchID string) string
}

// Noop discards everything. It is the backend used when none is configured.
type Noop struct{}

func (Noop) Init() error                       { return nil }
func (Noop) Close() error                      { return nil }
func (Noop) StartMatch(*core.MatchInfo) error  { return nil }
func (Noop) EndMatch(*core.MatchSummary) error { return nil }
func (Noop) RecordFire(*core.FireRecord) error { return nil }
func (Noop) RecordState(*core.GameState) error { return nil }
