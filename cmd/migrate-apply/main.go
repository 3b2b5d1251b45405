package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/database"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const validArgsLen = 2

func main() {
	if len(os.Args) < validArgsLen {
		log.Fatal("usage: up | down")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dbURL := database.GetURL(cfg)

	projectRoot, err := filepath.Abs("migrations")
	if err != nil {
		log.Fatal(err)
	}

	migrationsPath := "file://" + filepath.ToSlash(projectRoot)

	migrator, err := migrate.New(
		migrationsPath,
		dbURL,
	)
	if err != nil {
		log.Fatal(err)
	}

	cmd := os.Args[1]

	switch cmd {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Steps(-1)
	default:
		log.Fatalf("unknown command %q, usage: up | down", cmd)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal(err)
	}

	version, dirty, _ := migrator.Version()
	log.Printf("migration complete. version=%d dirty=%v", version, dirty)
}
