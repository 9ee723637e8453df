package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"

	"zmesh/internal/util/logger/sl"
	"zmesh/pkg/migrator"
)

func main() {
	migrationDir := flag.String("path", "migrations", "Path to the migrations directory")
	dbPath := flag.String("db", "registry.sqlite", "Path to the SQLite database file")
	direction := flag.String("direction", "up", "Migration direction: up, down, version, or rollback")
	steps := flag.Int("steps", 1, "Number of steps to roll back")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		logger.Error("Failed to open database", sl.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("Failed to connect to database", sl.Err(err))
	}

	config := migrator.Config{
		MigrationsPath: *migrationDir,
	}

	m := migrator.NewMigrator(db, config, logger)

	switch *direction {
	case "up":
		if err := m.MigrateUp(); err != nil {
			logger.Error("Migration up failed", sl.Err(err))
			os.Exit(1)
		}
	case "down":
		if err := m.MigrateDown(); err != nil {
			logger.Error("Migration down failed", sl.Err(err))
			os.Exit(1)
		}
	case "version":
		version, dirty, err := m.GetMigrationVersion()
		if err != nil {
			logger.Error("Failed to get migration version", sl.Err(err))
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", version, dirty)
	case "rollback":
		if err := m.MigrateDownN(*steps); err != nil {
			logger.Error("Rollback failed", sl.Err(err))
			os.Exit(1)
		}
	default:
		logger.Error("Unknown migration direction", slog.String("direction", *direction))
		os.Exit(1)
	}

	logger.Info("Migration completed successfully")
}
