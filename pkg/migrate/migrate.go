package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Applied describes one migration that ran.
type Applied struct {
	Version   int64
	Path      string
	Direction string
	Duration  time.Duration
}

func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %s: %w", dir, err)
	}
	return provider, nil
}

func collect(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Applied{
			Version:   res.Source.Version,
			Path:      res.Source.Path,
			Direction: res.Direction,
			Duration:  res.Duration,
		})
	}
	return out
}

// Up applies every pending postgres migration in dir.
func Up(ctx context.Context, db *sql.DB, dir string) ([]Applied, error) {
	provider, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return collect(results), fmt.Errorf("goose up: %w", err)
	}
	return collect(results), nil
}

// Run executes up, down or status and writes a line per migration to out.
func Run(ctx context.Context, db *sql.DB, dir, command string, out io.Writer) error {
	switch command {
	case "up":
		applied, err := Up(ctx, db, dir)
		report(out, applied)
		return err
	case "down":
		provider, err := newProvider(db, dir)
		if err != nil {
			return err
		}
		res, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		report(out, collect([]*goose.MigrationResult{res}))
		return nil
	case "status":
		provider, err := newProvider(db, dir)
		if err != nil {
			return err
		}
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		for _, st := range statuses {
			applied := "pending"
			if st.State == goose.StateApplied {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-24s %s\n", applied, st.Source.Path)
		}
		return nil
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
}

// MigrateToVersion moves the schema up or down until it sits at targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, targetVersion string, out io.Writer) error {
	target, err := parseVersion(targetVersion)
	if err != nil {
		return err
	}
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = provider.UpTo(ctx, target)
	default:
		results, err = provider.DownTo(ctx, target)
	}
	report(out, collect(results))
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

func report(out io.Writer, applied []Applied) {
	if out == nil {
		return
	}
	for _, a := range applied {
		fmt.Fprintf(out, "%-4s %d %s (%s)\n", a.Direction, a.Version, a.Path, a.Duration.Round(time.Millisecond))
	}
}

// parseVersion accepts goose timestamp versions, YYYYMMDDHHMMSS.
func parseVersion(value string) (int64, error) {
	if len(value) != 14 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	if _, err := time.Parse("20060102150405", value); err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", value, err)
	}
	return strconv.ParseInt(value, 10, 64)
}
