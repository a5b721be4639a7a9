package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe    = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeCharsRe = regexp.MustCompile(`[^a-z0-9]+`)
	createTableRe = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS\s+(\w+)`)
)

type migrationFile struct {
	version int64
	name    string
	path    string
}

// listMigrations returns the .sql files of dir ordered by version.
func listMigrations(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var files []migrationFile
	seen := map[int64]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (want YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("version %d used by %q and %q", version, prev, e.Name())
		}
		seen[version] = e.Name()
		files = append(files, migrationFile{version: version, name: m[2], path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// CreateSQLMigration writes an empty goose migration into dir. The version is
// the current UTC time, bumped past the newest existing file if needed.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("dir and name are required")
	}
	slug := strings.Trim(unsafeCharsRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	existing, err := listMigrations(dir)
	if err != nil {
		return "", err
	}

	stamp := time.Now().UTC()
	if n := len(existing); n > 0 {
		latest, err := time.Parse(versionLayout, strconv.FormatInt(existing[n-1].version, 10))
		if err == nil && !stamp.After(latest) {
			stamp = latest.Add(time.Second)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", stamp.Format(versionLayout), slug))
	body := fmt.Sprintf(`-- +goose Up
-- %[1]s
-- mirror table changes in sqlite/schema.sql

-- +goose Down
-- revert %[1]s
`, slug)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks file naming, unique versions, and that each file has
// goose Up and Down sections in that order.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	files, err := listMigrations(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	for _, f := range files {
		raw, err := os.ReadFile(f.path)
		if err != nil {
			return fmt.Errorf("read %q: %w", f.path, err)
		}
		text := string(raw)
		up := strings.Index(text, "-- +goose Up")
		down := strings.Index(text, "-- +goose Down")
		switch {
		case up < 0:
			return fmt.Errorf("%s: missing \"-- +goose Up\"", filepath.Base(f.path))
		case down < 0:
			return fmt.Errorf("%s: missing \"-- +goose Down\"", filepath.Base(f.path))
		case down < up:
			return fmt.Errorf("%s: Down section precedes Up", filepath.Base(f.path))
		}
	}
	return nil
}

// SQLiteSchemaGaps lists tables created by the migrations in dir that the
// embedded SQLite schema does not define.
func SQLiteSchemaGaps(dir string) ([]string, error) {
	files, err := listMigrations(dir)
	if err != nil {
		return nil, err
	}
	have := map[string]bool{}
	for _, m := range createTableRe.FindAllStringSubmatch(sqliteSchema, -1) {
		have[strings.ToLower(m[1])] = true
	}
	var gaps []string
	for _, f := range files {
		raw, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", f.path, err)
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(raw), -1) {
			if table := strings.ToLower(m[1]); !have[table] {
				gaps = append(gaps, table)
			}
		}
	}
	return gaps, nil
}
