package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	"github.com/wolfman30/medici-leads/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medici-leads/internal/config"
	"github.com/wolfman30/medici-leads/migrations"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

const migrationsTable = "medici_schema_migrations"

// migrator is the slice of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("migrate")
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, db, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	defer func() { _ = db.Close() }()

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		logger.Error("db driver", "error", err)
		os.Exit(1)
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("source driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("create migrator", "error", err)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	if err := runCommand(m, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

// runCommand executes one of: up (default), down <n>, steps <n>,
// force <version>, version.
func runCommand(m migrator, args []string, logger *logging.Logger) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down", "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		if cmd == "down" {
			n = -n
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate %s %d: %w", cmd, n, err)
		}
	case "force":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force version %d: %w", v, err)
		}
		logger.Info("forced schema version", "version", v)
		return nil
	case "version":
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read version: %w", err)
	}
	logger.Info("schema version", "command", cmd, "version", version, "dirty", dirty)
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a numeric argument", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s argument %q", args[0], args[1])
	}
	return n, nil
}
