package main

import (
	"context"
	"database/sql"
	"flag"
	"io/fs"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/db"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(migrationsFS(*dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	if err := run(ctx, logg, sqlDB, *cmd, *dir, *version); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command finished")
}

func run(ctx context.Context, logg *logger.Logger, sqlDB *sql.DB, cmd, dir, version string) error {
	m, err := migrate.NewMigrator(sqlDB, migrationsFS(dir))
	if err != nil {
		return err
	}

	var results []migrate.Result
	switch cmd {
	case "up":
		results, err = m.Up(ctx)
	case "down":
		results, err = m.Down(ctx)
	case "version":
		if version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		results, err = m.To(ctx, version)
	case "status":
		pending, err := m.Pending(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "pending", pending), "migration status")
		return nil
	default:
		return fmt.Errorf("unknown -cmd value %q", cmd)
	}
	for _, r := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     r.Version,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		}), "migration applied")
	}
	return err
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
