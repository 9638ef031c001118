package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/battlearena/combat-engine/internal/arena"
	"github.com/battlearena/combat-engine/internal/collision"
	"github.com/battlearena/combat-engine/internal/config"
	"github.com/battlearena/combat-engine/internal/dispatcher"
	"github.com/battlearena/combat-engine/internal/engine"
	"github.com/battlearena/combat-engine/internal/handlers"
	"github.com/battlearena/combat-engine/internal/influx"
	"github.com/battlearena/combat-engine/internal/logging"
	"github.com/battlearena/combat-engine/internal/monitor"
	intOtel "github.com/battlearena/combat-engine/internal/otel"
	"github.com/battlearena/combat-engine/internal/physics"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion = "0.1.0"
	BuildDate      = "unknown"

	ServiceName = "combat_engine"
)

const (
	CmdVersion = ":VERSION:"
	CmdPing    = ":PING:"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires every component, then serves newline-delimited JSON commands
// from in until it is exhausted or ctx is cancelled.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	sessionStart := time.Now()
	sessionID := uuid.NewString()

	flags := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	flags.SetOutput(errOut)
	configDir := flags.String("config-dir", ".", "directory holding "+config.FileName)
	flags.String("log-level", "", "overrides logLevel")
	flags.String("storage", "", "overrides storage.type")
	if err := flags.Parse(args); err != nil {
		return err
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil, logging.WithConsole(errOut))
	logger := slogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config", "dir", *configDir)
	}
	bindFlag(flags, "log-level", "logLevel")
	bindFlag(flags, "storage", "storage.type")

	logLevel := viper.GetString("logLevel")
	logFile, logPath := openLogFile(viper.GetString("logsDir"), sessionStart, logger)
	if logFile != nil {
		defer logFile.Close()
	}

	var otelProvider *intOtel.Provider
	if otelCfg := config.GetOTelConfig(); otelCfg.Enabled {
		oc := intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			SessionID:      sessionID,
			BatchTimeout:   otelCfg.BatchTimeout,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		}
		if logFile != nil {
			oc.LogWriter = logFile
		}
		p, err := intOtel.New(ctx, oc)
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			otelProvider = p
			logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var live atomic.Pointer[engine.Engine]
	opts := []logging.Option{
		logging.WithConsole(errOut),
		logging.WithContext(logging.MatchCount(func() int {
			if e := live.Load(); e != nil {
				return e.MatchCount()
			}
			return 0
		})),
		logging.WithContext(logging.Static(slog.String("session", sessionID))),
	}
	if viper.GetBool("graylog.enabled") {
		addr := viper.GetString("graylog.address")
		gw, err := gelf.NewWriter(addr)
		if err != nil {
			logger.Error("Failed to create GELF writer", "address", addr, "error", err)
		} else {
			defer gw.Close()
			opts = append(opts, logging.WithGELF(gw))
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if otelProvider != nil {
		otelLogProvider = otelProvider.LoggerProvider()
	}
	var fileOut io.Writer
	if logFile != nil {
		fileOut = logFile
	}
	slogManager.Setup(fileOut, logLevel, otelLogProvider, opts...)
	logger = slogManager.Logger()
	logger.Info("Starting up", "version", CurrentVersion, "build", BuildDate, "logFile", logPath, "cpus", runtime.NumCPU())

	zlogOut := errOut
	if logFile != nil {
		zlogOut = logFile
	}
	zlog := logging.NewZerolog(zlogOut, logLevel)

	engCfg, err := engineConfig(config.GetGameConfig())
	if err != nil {
		return err
	}

	backend, err := newStorage(ctx, config.GetStorageConfig(), logger, zlog)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	fires := newFireSink(ctx, config.GetInfluxConfig(), viper.GetString("logsDir"), sessionStart, zlog)
	deps := engine.Dependencies{
		Arenas:  arena.NewLoader(viper.GetString("arena.dir"), viper.GetFloat64("arena.defaultWidth"), viper.GetFloat64("arena.defaultHeight"), logger),
		Storage: backend,
		Logger:  logger,
	}
	if fires != nil {
		deps.Fires = fires
	}
	eng, err := engine.New(engCfg, deps)
	if err == nil {
		live.Store(eng)
	}
	var d *dispatcher.Dispatcher
	if err == nil {
		d, err = dispatcher.New(logging.NewZerologAdapter(zlog))
	}
	if err != nil {
		_ = backend.Close()
		if fires != nil {
			_ = fires.Close()
		}
		return fmt.Errorf("startup: %w", err)
	}
	handlers.NewService(handlers.Dependencies{
		Engine:    eng,
		Logger:    logger,
		FireLimit: runtime.NumCPU(),
		Store:     backend,
	}).Register(d)
	registerLifecycleHandlers(d)
	logger.Info("Dispatcher ready", "commands", len(d.Commands()))

	mon := newMonitor(config.GetMonitorConfig(), eng, backend, fires, logger)
	if mon != nil {
		_ = mon.Start()
	}

	serveErr := serve(ctx, in, out, d, logger)

	if mon != nil {
		mon.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Shutting down", "activeMatches", eng.MatchCount())
	var errs []error
	errs = append(errs, d.Close(shutdownCtx))
	eng.Close(shutdownCtx)
	errs = append(errs, backend.Close())
	if fires != nil {
		errs = append(errs, fires.Close())
	}
	if otelProvider != nil {
		errs = append(errs, otelProvider.Shutdown(shutdownCtx))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("Shutdown incomplete", "error", err)
	}
	return serveErr
}

func bindFlag(flags *pflag.FlagSet, name, key string) {
	if f := flags.Lookup(name); f != nil && f.Changed {
		viper.Set(key, f.Value.String())
	}
}

// openLogFile creates the session log file, moving an existing one aside.
// It returns a nil file when the logs directory is unusable.
func openLogFile(dir string, start time.Time, logger *slog.Logger) (*os.File, string) {
	if dir == "" {
		return nil, ""
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("Failed to create logs directory", "path", dir, "error", err)
		return nil, ""
	}

	path := logging.LogFilePath(dir, ServiceName, start)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		logger.Error("Failed to create/open log file!", "error", err, "path", path)
		return nil, ""
	}
	abs, _ := filepath.Abs(path)
	return f, abs
}

// engineConfig maps the configured tunables and tables onto an engine config.
func engineConfig(gc config.GameConfig) (engine.Config, error) {
	weapons, err := config.GetWeapons()
	if err != nil {
		return engine.Config{}, err
	}
	synergies, err := config.GetSynergyRules()
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		DefaultHealth:         gc.DefaultHealth,
		DefaultMaxHealth:      gc.DefaultMaxHealth,
		DefaultMovesRemaining: gc.DefaultMovesRemaining,
		DefaultScore:          gc.DefaultScore,
		MoveSpeedPerMs:        gc.MoveSpeedPerMs,
		TurnDurationMs:        gc.TurnDurationMs,
		TurnNumber:            gc.TurnNumber,
		ActiveStatus:          gc.ActiveStatus,
		Physics: physics.Config{
			Gravity:       gc.Gravity,
			AirResistance: gc.AirResistance,
			Restitution:   gc.Restitution,
			BodyRadius:    gc.BodyRadius,
		}.WithDefaults(),
		MaxVelocity: gc.MaxVelocity,
		StepMs:      gc.StepMs,
		MaxFlightMs: gc.MaxFlightMs,
		Collision: collision.Config{
			HitRadius:        gc.HitRadius,
			HeroRadius:       gc.HeroRadius,
			TerrainThreshold: gc.TerrainThreshold,
			TerrainEnabled:   gc.TerrainEnabled,
		},
		MaxSamples: gc.MaxSamples,
		Weapons:    weapons,
		Synergies:  synergies,
	}, nil
}

// newMonitor builds the status monitor when it is enabled. Pending writes are
// reported for backends that queue them.
func newMonitor(cfg config.MonitorConfig, eng *engine.Engine, backend any, fires *influx.Manager, logger *slog.Logger) *monitor.Service {
	if !cfg.Enabled {
		return nil
	}
	deps := monitor.Dependencies{
		Matches:    eng.ActiveMatches,
		Logger:     logger,
		StatusFile: cfg.StatusFile,
		Interval:   cfg.Interval,
	}
	if p, ok := backend.(interface{ Pending() int }); ok {
		deps.Pending = p.Pending
	}
	if fires != nil {
		deps.Points = fires
	}
	return monitor.NewService(deps)
}

func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdVersion, func(context.Context, dispatcher.Event) (any, error) {
		return []string{CurrentVersion, BuildDate}, nil
	})
	d.Register(CmdPing, func(context.Context, dispatcher.Event) (any, error) {
		return "pong", nil
	})
}
