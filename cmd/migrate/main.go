package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/popsynth/popsynth/internal/logger"
)

// Usage:
//
//	migrate [-database URL] [-path DIR] up
//	migrate [-database URL] [-path DIR] down
//	migrate [-database URL] [-path DIR] version
//	migrate [-database URL] [-path DIR] force <version>
func main() {
	var databaseURL string
	var migrationsPath string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required, use -database flag or DATABASE_URL environment variable")
	}

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err.Error())
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to run migrations", "error", err.Error())
		}
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
		} else {
			logger.Info("migrations applied")
		}

	case "down":
		err = m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to roll back migrations", "error", err.Error())
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Fatal("failed to read version", "error", err.Error())
		}
		logger.Info("migration version", "version", version, "dirty", dirty)

	case "force":
		if flag.Arg(1) == "" {
			logger.Fatal("force requires a version number: migrate force <version>")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			logger.Fatal("invalid version number", "error", err.Error())
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("failed to force version", "error", err.Error())
		}
		logger.Info("forced migration version", "version", version)

	default:
		logger.Fatal("unknown command, use: up, down, version, force", "command", command)
	}
}
