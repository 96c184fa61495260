package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date on boot when running in dev with
// TIPJAR_AUTO_MIGRATE set. Other environments migrate through
// cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil {
		return fmt.Errorf("config and db client are required")
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"driver": cfg.DB.Driver})

	if cfg.DB.Driver == db.DriverSQLite {
		logg.Info(ctx, "applying sqlite schema")
		return db.EnsureSQLiteSchema(ctx, client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(ctx, "applying embedded goose migrations")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logg.Info(ctx, "schema up to date")
	return nil
}
