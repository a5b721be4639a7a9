package migrate

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

//go:embed sqlite/schema.sql
var sqliteSchema string

// ApplySQLiteSchema creates the local/dev schema on a SQLite connection.
// Goose migrations stay Postgres-only.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if conn.Dialector.Name() != "sqlite" {
		return fmt.Errorf("sqlite schema requested for %s dialect", conn.Dialector.Name())
	}
	db := conn.WithContext(ctx)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, stmt := range sqliteStatements() {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}

func sqliteStatements() []string {
	parts := strings.Split(sqliteSchema, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
