package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, serviceName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", serviceName, sessionStart.Format("20060102_150405")),
	)
}

// MatchCount returns a ContextProvider that stamps each record with the
// number of live matches.
func MatchCount(count func() int) ContextProvider {
	return func() []slog.Attr {
		return []slog.Attr{slog.Int("activeMatches", count())}
	}
}
