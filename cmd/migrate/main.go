package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/repository/postgres"
)

func main() {
	var (
		direction string
		dbURL     string
		steps     int
	)

	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down or version")
	flag.StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")
	flag.IntVar(&steps, "steps", 0, "Apply only this many migrations (0 means all)")
	flag.Parse()

	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		dbURL = cfg.Database.DatabaseURL()
	}

	m, err := postgres.NewMigrator(dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrate instance: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "Migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "Migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations rolled back successfully")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintf(os.Stderr, "Failed to read version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction: %s (use 'up', 'down' or 'version')\n", direction)
		os.Exit(1)
	}
}
