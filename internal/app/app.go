// Package app wires configuration, connections, and the recommendation
// engine together. The HTTP surface that exposes the engine lives
// outside this repository and embeds App.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mercat/varejo/internal/cache"
	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/internal/database"
	"github.com/mercat/varejo/internal/messaging"
	"github.com/mercat/varejo/internal/services"
	"github.com/mercat/varejo/internal/storage"
)

type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	DB         *database.Database
	Repository *storage.Repository
	ModelCache cache.ModelCache
	Engine     *services.RecommendationService
	Feed       *messaging.RatingFeed
}

// New connects everything and runs the blocking batch training step, so
// a returned App is ready to serve predictions.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg)

	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := storage.NewRepository(db.PG, logger)
	modelCache := newModelCache(cfg, db.Redis)
	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	engine := services.NewRecommendationService(&cfg.Engine, modelCache, metrics, logger)

	if err := engine.LoadAndTrain(context.Background(), repo); err != nil {
		return nil, fmt.Errorf("failed to train recommendation models: %w", err)
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Repository: repo,
		ModelCache: modelCache,
		Engine:     engine,
	}

	if len(cfg.Kafka.Brokers) > 0 {
		app.Feed = messaging.NewRatingFeed(&cfg.Kafka, logger)
	}

	return app, nil
}

// ConsumeRatingFeed runs the rating-event consumer until the context is
// cancelled. Each event is upserted and the hyperparameter cache is
// invalidated; retraining remains an explicit Rebuild call.
func (a *App) ConsumeRatingFeed(ctx context.Context) error {
	if a.Feed == nil {
		return nil
	}
	return a.Feed.Consume(ctx, func(ctx context.Context, event messaging.RatingEvent) error {
		if err := a.Repository.UpsertRating(ctx, event.Rating); err != nil {
			return err
		}
		return a.ModelCache.Invalidate(ctx)
	})
}

// Rebuild reloads the dataset and refits every model from scratch.
func (a *App) Rebuild(ctx context.Context) error {
	return a.Engine.LoadAndTrain(ctx, a.Repository)
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("Shutting down application...")

	if a.Feed != nil {
		if err := a.Feed.Close(); err != nil {
			a.Logger.WithError(err).Error("Error closing rating feed")
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.WithError(err).Error("Error closing database connections")
		return err
	}
	return nil
}

// newModelCache picks the hyperparameter cache backend configured under
// engine.latent.cache. Redis is the default for multi-host deployments;
// the file backend keeps the blob at engine.latent.params_path.
func newModelCache(cfg *config.Config, redisClient *redis.Client) cache.ModelCache {
	if cfg.Engine.Latent.Cache == "file" {
		return cache.NewFileModelCache(cfg.Engine.Latent.ParamsPath)
	}
	return cache.NewRedisModelCache(redisClient, "")
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
