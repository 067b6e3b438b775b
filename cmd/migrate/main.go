package main

import (
	"errors"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/wenliu-dev/coursehub/internal/config"
	"github.com/wenliu-dev/coursehub/internal/observability"
)

// Applies migrations/*.sql. Usage: migrate [up|down]
func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	src := os.Getenv("MIGRATIONS_PATH")
	if src == "" {
		src = "file://migrations"
	}

	// golang-migrate selects the driver from the URL scheme
	dbURL := strings.Replace(cfg.DBURL, "postgres://", "pgx5://", 1)

	m, err := migrate.New(src, dbURL)

	if err != nil {
		log.Error("migrate init failed", "err", err)
		os.Exit(1)
	}

	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		log.Error("unknown direction", "direction", direction)
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Error("migration failed", "direction", direction, "err", err)
		os.Exit(1)
	}

	log.Info("migration complete", "direction", direction)
}
