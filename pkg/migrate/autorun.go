package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/db"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
)

// MaybeRunDev migrates the database at startup in dev when auto-migrate is on.
// SQLite gets the embedded schema; postgres runs pending goose migrations.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.FeatureFlags.UseSQLite {
		logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "applying sqlite schema (dev auto-run)")
		return ApplySQLiteSchema(ctx, client.DB())
	}

	sqlDB, err := client.SQLDB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "running goose migrations (dev auto-run)")

	applied, err := Up(ctx, sqlDB, DefaultDir)
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "applied", len(applied)), "goose migrations completed")
	return nil
}
