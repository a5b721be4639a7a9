package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/db"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		gaps, err := migrate.SQLiteSchemaGaps(opts.dir)
		if err != nil {
			fail("sqlite schema check failed: %v", err)
		}
		if len(gaps) > 0 {
			fail("sqlite schema is missing tables: %s", strings.Join(gaps, ", "))
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    opts.cmd,
		"dir":    opts.dir,
		"sqlite": cfg.FeatureFlags.UseSQLite,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	logg.Info(ctx, "migrate ready")

	// goose migrations are postgres-only; sqlite gets the embedded schema.
	if cfg.FeatureFlags.UseSQLite {
		if opts.cmd != "up" {
			fail("-cmd=%s is not supported with sqlite", opts.cmd)
		}
		requireResource(ctx, logg, "sqlite schema", migrate.ApplySQLiteSchema(ctx, dbClient.DB()))
		logg.Info(ctx, "sqlite schema applied")
		return
	}

	sqlDB, err := dbClient.SQLDB()
	requireResource(ctx, logg, "sql database", err)
	if err := run(ctx, sqlDB, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate finished")
}

func run(ctx context.Context, sqlDB *sql.DB, opts options) error {
	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd, os.Stdout)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version, os.Stdout)
	default:
		return fmt.Errorf("unknown -cmd value: %s", opts.cmd)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
