package arena

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/battlearena/combat-engine/internal/geo"
	"github.com/battlearena/combat-engine/pkg/core"
)

// Default world size used when an arena file cannot be read.
const (
	DefaultWidth  = 800.0
	DefaultHeight = 600.0
)

// Loader reads arena definitions from <Dir>/<arenaID>.json.
// Files are re-read on every call so edits apply without a restart.
type Loader struct {
	Dir    string
	Width  float64
	Height float64
	Logger *slog.Logger
}

// NewLoader creates a loader rooted at dir with the given fallback bounds.
// Zero dimensions fall back to 800x600.
func NewLoader(dir string, width, height float64, logger *slog.Logger) *Loader {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Dir: dir, Width: width, Height: height, Logger: logger}
}

// Default returns the fallback arena: configured bounds and no walkable zones.
func (l *Loader) Default(arenaID string) core.Arena {
	return core.Arena{
		ID:            arenaID,
		WorldBounds:   core.Bounds{Width: l.Width, Height: l.Height},
		WalkableZones: []core.Zone{},
	}
}

// Load never fails: missing or malformed files resolve to Default.
func (l *Loader) Load(arenaID string) core.Arena {
	a, err := l.read(arenaID)
	if err != nil {
		l.Logger.Warn("Failed to load arena definition; using defaults", "arenaId", arenaID, "error", err)
		return l.Default(arenaID)
	}
	return a
}

func (l *Loader) read(arenaID string) (core.Arena, error) {
	if arenaID == "" {
		return core.Arena{}, fmt.Errorf("empty arena id")
	}

	path := filepath.Join(l.Dir, filepath.Base(arenaID)+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return core.Arena{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var a core.Arena
	if err := json.Unmarshal(raw, &a); err != nil {
		return core.Arena{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if a.ID == "" {
		a.ID = arenaID
	}
	if a.WorldBounds.Width <= 0 || a.WorldBounds.Height <= 0 {
		a.WorldBounds.Width, a.WorldBounds.Height = l.Width, l.Height
	}
	if a.WalkableZones == nil {
		a.WalkableZones = []core.Zone{}
	}

	for _, z := range a.WalkableZones {
		if _, err := geo.ZonePolygon(z); err != nil {
			l.Logger.Warn("Arena zone failed validation", "arenaId", arenaID, "zone", z.ID, "error", err)
		}
	}

	return a, nil
}
