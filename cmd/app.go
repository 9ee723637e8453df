package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/google/uuid"

	cliplugins "zmesh/internal/cli_plugins"
	"zmesh/internal/config"
	"zmesh/internal/confwatch"
	"zmesh/internal/scout"
	"zmesh/internal/session"
	"zmesh/internal/storage/hellocache"
	"zmesh/internal/storage/peerregistry"
	"zmesh/internal/transport"
	"zmesh/internal/util/logger/handlers/slogpretty"
	"zmesh/internal/util/logger/sl"
	"zmesh/pkg/cli"
	"zmesh/pkg/migrator"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	localZID := uuid.NewString()

	log.Info("starting application",
		slog.String("mode", cfg.Mode),
		slog.String("zid", localZID),
		slog.Int("port", cfg.ListenPort),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChanel := make(chan os.Signal, 1)
	signal.Notify(signalChanel, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signalChanel
		log.Info("Shutdown signal received", slog.Any("signal", sig))
		cancel()
	}()

	cache, err := hellocache.New(hellocache.Config{Path: cfg.Storage.HelloCachePath})
	if err != nil {
		log.Error("Failed to open hello cache", sl.Err(err))
	} else {
		defer cache.Close()
	}

	if err := migrateRegistry(cfg, log); err != nil {
		log.Error("Failed to migrate peer registry", sl.Err(err))
	}

	registry, err := peerregistry.New(peerregistry.Config{
		DBPath:            cfg.Storage.RegistryPath,
		MigrationsPath:    cfg.Storage.MigrationsPath,
		ConnectionTimeout: 5 * time.Second,
	}, log)
	if err != nil {
		log.Error("Failed to open peer registry", sl.Err(err))
	} else {
		defer registry.Close()
	}

	scouter := transport.NewMulticastScouter(transport.MulticastConfig{
		Group:     cfg.Scouting.Group,
		LocalZID:  localZID,
		LocalWhat: cfg.Mode,
		LocalPort: cfg.ListenPort,
		Interval:  cfg.Scouting.Interval,
	}, log)

	controller := scout.NewController(ctx, scouter, scout.Config{
		ScanTimeout: cfg.Scouting.Timeout,
	}, log)
	defer controller.Close()

	dialer := transport.NewTCPDialer(10*time.Second, log)

	manager := session.NewManager(ctx, dialer, log)
	defer manager.Close()

	// reopen the session with a freshly built config whenever the
	// config file changes on disk
	configPath := os.Getenv("CONFIG_PATH")
	if configPath != "" {
		watcher, err := confwatch.New(configPath, func() {
			reopenFromConfig(ctx, configPath, manager, log)
		}, confwatch.Config{}, log)
		if err != nil {
			log.Error("Failed to start config watcher", sl.Err(err))
		} else {
			defer watcher.Close()
		}
	}

	app := cli.NewCLI()
	app.RegisterPlugin(cliplugins.NewScoutCommand(controller, cache, registry))
	app.RegisterPlugin(cliplugins.NewOpenCommand(manager))
	app.RegisterPlugin(cliplugins.NewCloseCommand(manager))
	app.RegisterPlugin(cliplugins.NewStatusCommand(manager))
	app.RegisterPlugin(cliplugins.NewPeersCommand(registry))

	if err := app.Run(ctx, flag.Args()); err != nil {
		log.Error("Command failed", sl.Err(err))
		os.Exit(1)
	}

	// an open session keeps the process alive until a signal arrives,
	// so the config watcher can keep it in sync with the file
	if manager.Status().State == session.StateOpen {
		<-ctx.Done()
	}

	log.Info("Application shutting down gracefully")
}

func reopenFromConfig(
	ctx context.Context,
	configPath string,
	manager *session.Manager,
	log *slog.Logger,
) {
	if manager.Status().State != session.StateOpen {
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("Failed to reload config, keeping current session", sl.Err(err))
		return
	}

	sessionCfg, err := session.NewBuilder().
		SetMode(session.Mode(cfg.Mode)).
		SetEndpoints(cfg.Connect).
		SetMulticastScouting(cfg.Scouting.Multicast).
		SetGossipScouting(cfg.Scouting.Gossip).
		Build()
	if err != nil {
		log.Error("Reloaded config is invalid, keeping current session", sl.Err(err))
		return
	}

	log.Info("Config changed, reopening session")
	if _, err := manager.Open(ctx, sessionCfg); err != nil {
		log.Error("Failed to reopen session", sl.Err(err))
	}
}

// migrateRegistry brings the registry schema up to date on startup.
func migrateRegistry(cfg *config.Config, log *slog.Logger) error {
	db, err := sql.Open("sqlite", cfg.Storage.RegistryPath)
	if err != nil {
		return err
	}
	defer db.Close()

	m := migrator.NewMigrator(db, migrator.Config{
		MigrationsPath: cfg.Storage.MigrationsPath,
	}, log)
	return m.MigrateUp()
}

func setupLogger(env string) *slog.Logger {

	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
