// Command seed loads the sample coffee menu and demo accounts into the
// database selected by STORAGE_DRIVER, so a fresh environment can take orders
// without the catalog and user services.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/utafrali/coffeeshop/internal/app"
	"github.com/utafrali/coffeeshop/internal/config"
	mongorepo "github.com/utafrali/coffeeshop/internal/repository/mongo"
	"github.com/utafrali/coffeeshop/internal/repository/postgres"
	"github.com/utafrali/coffeeshop/migrations"
	"github.com/utafrali/coffeeshop/pkg/database"
	"github.com/utafrali/coffeeshop/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := seed(ctx, cfg, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("seed complete",
		slog.String("storage_driver", cfg.StorageDriver),
		slog.Int("products", len(app.Menu)),
		slog.Int("users", len(app.DemoUsers)),
	)
}

func seed(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return postgres.SeedCatalog(ctx, pool, app.Menu, app.DemoUsers)

	case config.StorageMongo:
		client, err := database.NewMongoClient(ctx, cfg.Mongo(), log)
		if err != nil {
			return fmt.Errorf("connect to mongo: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		return mongorepo.SeedCatalog(ctx, client.Database(cfg.MongoDatabase), app.Menu, app.DemoUsers)
	}
	return fmt.Errorf("storage driver %q is seeded at startup by SEED_MENU, nothing to do", cfg.StorageDriver)
}
