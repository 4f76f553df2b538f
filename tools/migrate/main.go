package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/md-rashed-zaman/slotconfirm/libs/config"
	"github.com/md-rashed-zaman/slotconfirm/libs/runtime"
	"github.com/md-rashed-zaman/slotconfirm/migrations"
)

// Usage:
//
//	migrate            apply all pending migrations
//	migrate down       roll back one migration
//	migrate force N    set the schema version without running anything
func main() {
	flag.Parse()
	_ = config.LoadDotEnv()
	logger := runtime.NewLogger("migrate", config.String("LOG_LEVEL", "info"))

	if err := run(flag.Args()); err != nil {
		logger.Error("migration failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations complete")
}

func run(args []string) error {
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case len(args) == 0:
		err = m.Up()
	case args[0] == "down":
		err = m.Steps(-1)
	case args[0] == "force" && len(args) == 2:
		version, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("invalid version: %w", convErr)
		}
		return m.Force(version)
	default:
		return fmt.Errorf("unknown command %v", args)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
