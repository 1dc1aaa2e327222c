package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ecsact-dev/ecsact-unreal/internal/catalog"
	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/core/event"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/module"
	"github.com/ecsact-dev/ecsact-unreal/internal/persist"
	"github.com/ecsact-dev/ecsact-unreal/internal/runner"
	"github.com/ecsact-dev/ecsact-unreal/internal/scripting"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem/journal"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem/mirror"
)

const defaultConfigPath = "config/ecsbridge.toml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "config file (default $ECSBRIDGE_CONFIG or "+defaultConfigPath+")")
	prof := flag.String("profile", "", "write a cpu or mem profile to the working directory")
	flag.Parse()

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		return fmt.Errorf("unknown profile %q", *prof)
	}

	// 1. Config
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Component catalog
	cat, err := catalog.Load(cfg.Runtime.Catalog)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	components, actions := cat.Count()
	log.Info("catalog loaded",
		zap.String("path", cfg.Runtime.Catalog),
		zap.Int("components", components),
		zap.Int("actions", actions),
	)

	// 4. Subsystems
	subs := subsystem.NewCatalog()
	subs.Register(mirror.Name, mirror.Factory(cat, mirror.LogEvents()))

	if cfg.Journal.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()

		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		subs.Register(journal.Name, journal.Factory(persist.NewJournalRepo(db), cat, cfg.Journal))
		if len(cfg.Runtime.Subsystems) > 0 && !slices.Contains(cfg.Runtime.Subsystems, journal.Name) {
			cfg.Runtime.Subsystems = append(cfg.Runtime.Subsystems, journal.Name)
		}
	}

	// 5. Runtime module
	bus := event.NewBus()
	mod := module.New(module.Options{
		Source:     module.SourceFor(cfg.Runtime, cat, log),
		Runtime:    cfg.Runtime,
		Async:      cfg.Async,
		Bus:        bus,
		Subsystems: subs,
		Customs: runner.CustomCatalog{
			scripting.RunnerName: scripting.Factory(cfg.Scripting.Dir, cat),
		},
	}, log)
	if err := mod.Load(); err != nil {
		return fmt.Errorf("load runtime: %w", err)
	}
	defer mod.Shutdown()

	// 6. Host engine
	engine := host.NewEngine(bus, log)
	subscribeHostEvents(bus, log)
	detach := mod.Attach(engine)
	defer detach()

	for _, wc := range cfg.Host.Worlds {
		t, err := host.ParseWorldType(wc.Type)
		if err != nil {
			return fmt.Errorf("world %s: %w", wc.Name, err)
		}
		engine.AddWorld(wc.Name, t)
	}

	// 7. Run until interrupted; SIGHUP reloads the runtime library.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			engine.Post(func() { reload(mod, log) })
		}
	}()

	log.Info("engine running",
		zap.Duration("tick_rate", cfg.Host.TickRate),
		zap.String("runner", string(cfg.Runtime.Runner)),
		zap.Int("worlds", len(engine.Worlds())),
	)
	if err := engine.Run(ctx, cfg.Host.TickRate); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutting down", zap.Uint64("frames", engine.Frame()))
	engine.Shutdown()
	return mod.Shutdown()
}

// loadConfig reads the flag path, then $ECSBRIDGE_CONFIG, then the default
// path. Only a missing default file falls back to built-in settings.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("ECSBRIDGE_CONFIG")
	}
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(defaultConfigPath)
}

func reload(mod *module.Module, log *zap.Logger) {
	changed, err := mod.Reload()
	switch {
	case err != nil:
		log.Error("runtime reload failed", zap.Error(err))
	case !changed:
		log.Info("runtime unchanged, reload skipped")
	default:
		log.Info("runtime reloaded", zap.Int("runners", len(mod.Runners())))
	}
}

func subscribeHostEvents(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(e event.RunnerStarted) {
		log.Info("runner started",
			zap.String("kind", e.Kind),
			zap.String("runner", e.Runner.String()),
			zap.String("world", e.World.String()),
		)
	})
	event.Subscribe(bus, func(e event.RunnerStopped) {
		log.Info("runner stopped", zap.String("runner", e.Runner.String()))
	})
	event.Subscribe(bus, func(e event.SessionChanged) {
		log.Info("async session",
			zap.String("runner", e.Runner.String()),
			zap.Int32("session", int32(e.Session)),
			zap.Stringer("event", e.Event),
		)
	})
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
