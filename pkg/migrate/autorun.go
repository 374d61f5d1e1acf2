package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations when running in dev with the
// AutoMigrate flag on. sqlite databases are skipped; their schema comes from
// the test harness. A database already past the newest local migration is
// left alone and reported.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if strings.EqualFold(cfg.DB.Driver, db.DriverSQLite) {
		logg.Warn(ctx, "skipping goose migrations: the sqlite driver is not supported by the migration set")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	return runDev(ctx, sqlDB, DefaultDir, logg)
}

func runDev(ctx context.Context, sqlDB *sql.DB, dir string, logg *logger.Logger) error {
	latest, err := LatestVersion(dir)
	if err != nil {
		return fmt.Errorf("read local migrations: %w", err)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	current, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"dir": dir, "db_version": current, "latest_version": latest})
	switch {
	case current == latest:
		logg.Info(ctx, "schema is current")
		return nil
	case current > latest:
		logg.Warn(ctx, "database schema is newer than the local migrations; skipping auto-run")
		return nil
	}

	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, dir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}
