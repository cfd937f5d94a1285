// Package migrate owns the payments schema. Migrations are goose SQL files
// compiled into every binary so a deploy can never run against a stale
// migrations directory.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// SourceDir is where new migrations are written relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the schema files compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrator applies goose migrations from fsys against a Postgres database.
type Migrator struct {
	provider *goose.Provider
}

// NewMigrator builds a migrator. A nil fsys selects the embedded migrations.
func NewMigrator(db *sql.DB, fsys fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = Migrations()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Result summarises one applied or rolled back migration.
type Result struct {
	Version   int64
	Path      string
	Direction string
	Duration  time.Duration
}

func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}
	return toResults(res), nil
}

// Down rolls back the most recent migration only.
func (m *Migrator) Down(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return toResults([]*goose.MigrationResult{res}), nil
}

// To moves the schema up or down until it sits at the raw YYYYMMDDHHMMSS version.
func (m *Migrator) To(ctx context.Context, raw string) ([]Result, error) {
	target, err := ParseVersion(raw)
	if err != nil {
		return nil, err
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	var res []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		res, err = m.provider.UpTo(ctx, target)
	default:
		res, err = m.provider.DownTo(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return toResults(res), nil
}

// Pending lists migrations known to the binary but not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]int64, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	var pending []int64
	for _, st := range statuses {
		if st.State == goose.StatePending {
			pending = append(pending, st.Source.Version)
		}
	}
	return pending, nil
}

func toResults(in []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(in))
	for _, r := range in {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Duration:  r.Duration,
		})
	}
	return out
}

// ParseVersion validates a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	if _, err := time.Parse(versionLayout, raw); err != nil {
		return 0, fmt.Errorf("invalid version %q (want YYYYMMDDHHMMSS)", raw)
	}
	return strconv.ParseInt(raw, 10, 64)
}
