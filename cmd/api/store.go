package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/herderhub/herderhub-api/internal/config"
	"github.com/herderhub/herderhub-api/internal/db"
	"github.com/herderhub/herderhub-api/internal/models"
	repo "github.com/herderhub/herderhub-api/internal/repository"
	"github.com/herderhub/herderhub-api/internal/repository/memory"
	"github.com/herderhub/herderhub-api/internal/repository/mongodb"
	"github.com/herderhub/herderhub-api/internal/repository/postgres"
)

// demoListing lets the memory backend serve a payment end to end in dev.
var demoListing = models.Listing{
	ID:         "00000000-0000-0000-0000-00000000a001",
	SellerID:   "seller-demo",
	AnimalType: "cow",
	Breed:      "Friesian",
	Price:      1,
	Status:     models.ListingActive,
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repo.Repositories, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return repo.Repositories{}, fmt.Errorf("postgres connect: %w", err)
		}
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return repo.Repositories{}, fmt.Errorf("migrations: %w", err)
			}
		}
		return postgres.NewRepositories(pool), nil

	case "mongo", "mongodb":
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return repo.Repositories{}, fmt.Errorf("mongo connect: %w", err)
		}
		if cfg.Migrate {
			if err := mongodb.EnsureIndexes(ctx, client.Database(cfg.MongoDB)); err != nil {
				_ = client.Disconnect(context.Background())
				return repo.Repositories{}, fmt.Errorf("mongo indexes: %w", err)
			}
		}
		return mongodb.NewRepositories(client, cfg.MongoDB), nil

	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		if cfg.Env == "dev" {
			return memory.NewRepositories(demoListing), nil
		}
		return memory.NewRepositories(), nil
	}
	return repo.Repositories{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}
