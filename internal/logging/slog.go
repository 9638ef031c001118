package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName identifies this process in exported logs.
const ServiceName = "combat-engine"

// SlogManager manages slog-based logging with optional GELF and OTel sinks.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// Option adds an extra sink or decoration to Setup.
type Option func(*setup)

type setup struct {
	console io.Writer
	gelf    io.Writer
	context []ContextProvider
}

// WithConsole overrides where console output goes when no file is given.
func WithConsole(w io.Writer) Option {
	return func(s *setup) { s.console = w }
}

// WithGELF also ships every record as JSON to w, typically a *gelf.Writer.
func WithGELF(w io.Writer) Option {
	return func(s *setup) { s.gelf = w }
}

// WithContext injects dynamic attributes into every record. It may be
// given more than once.
func WithContext(p ContextProvider) Option {
	return func(s *setup) { s.context = append(s.context, p) }
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. Records go to file when given,
// otherwise to the console (stderr, since stdout carries responses).
// If provider is nil, OTel logging is disabled.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Option) {
	s := setup{console: os.Stderr}
	for _, opt := range opts {
		opt(&s)
	}

	lvl := parseLevel(level)
	m.logProvider = provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else if s.console != nil {
		handlers = append(handlers, slog.NewTextHandler(s.console, handlerOpts))
	}

	if s.gelf != nil {
		handlers = append(handlers, slog.NewJSONHandler(s.gelf, handlerOpts))
	}

	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = NewFanout(handlers...)
	if len(s.context) > 0 {
		h = NewContextHandler(h, s.context...)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
