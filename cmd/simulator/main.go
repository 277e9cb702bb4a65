// Command simulator enriches the ratings dataset with synthetic rows
// generated from consumer personas, then invalidates the cached
// hyperparameters so the next training pass re-runs the search.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/mercat/varejo/internal/cache"
	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/internal/database"
	"github.com/mercat/varejo/internal/simulator"
	"github.com/mercat/varejo/internal/storage"

	"github.com/sirupsen/logrus"
)

func main() {
	count := flag.Int("count", 350, "number of synthetic ratings to generate")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := storage.NewRepository(db.PG, logger)

	clients, err := repo.ListClients(ctx)
	if err != nil {
		log.Fatalf("Failed to list clients: %v", err)
	}
	products, err := repo.ListProducts(ctx)
	if err != nil {
		log.Fatalf("Failed to list products: %v", err)
	}
	existing, err := repo.ListRatings(ctx)
	if err != nil {
		log.Fatalf("Failed to list ratings: %v", err)
	}

	sim, err := simulator.New(clients, products, existing, cfg.Simulator, logger)
	if err != nil {
		log.Fatalf("Failed to initialize simulator: %v", err)
	}

	generated := sim.Generate(*count)
	inserted, err := repo.BulkInsertRatings(ctx, generated)
	if err != nil {
		log.Fatalf("Failed to insert ratings (inserted %d): %v", inserted, err)
	}

	logger.WithFields(logrus.Fields{
		"requested": *count,
		"generated": len(generated),
		"inserted":  inserted,
	}).Info("Synthetic ratings written")

	if inserted > 0 {
		// The dataset changed materially: force the next training run
		// to re-search hyperparameters.
		modelCache := cache.NewRedisModelCache(db.Redis, "")
		if err := modelCache.Invalidate(ctx); err != nil {
			logger.WithError(err).Warn("Failed to invalidate hyperparameter cache")
		} else {
			logger.Info("Hyperparameter cache invalidated")
		}
	}

	if len(generated) < *count {
		logger.Warn("Dataset is close to saturation: fewer ratings generated than requested")
	}
}
