package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mercat/varejo/internal/cache"
	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/internal/recommend"
	"github.com/mercat/varejo/pkg/models"
)

// RatingsSource is the narrow interface the engine consumes its inputs
// through; satisfied by storage.Repository.
type RatingsSource interface {
	ListRatings(ctx context.Context) ([]models.Rating, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// RecommendationService composes the engine for serving: it owns the
// blocking batch training step and the read-only prediction paths. All
// model state is built before any prediction call and never mutated
// afterwards, so concurrent reads against a trained service are safe.
type RecommendationService struct {
	cfg        *config.EngineConfig
	modelCache cache.ModelCache
	metrics    *Metrics
	logger     *logrus.Logger

	ratings  []models.Rating
	products []models.Product

	neighborhood *recommend.NeighborhoodRecommender
	latent       *recommend.LatentFactorRecommender
	fallback     *recommend.FallbackPolicy
	evaluator    *recommend.AccuracyEvaluator

	knownClients map[string]struct{}
	latentReady  bool
	trained      bool
}

func NewRecommendationService(cfg *config.EngineConfig, mc cache.ModelCache, metrics *Metrics, logger *logrus.Logger) *RecommendationService {
	return &RecommendationService{
		cfg:        cfg,
		modelCache: mc,
		metrics:    metrics,
		logger:     logger,
	}
}

// LoadAndTrain pulls the dataset from the source and runs the full batch
// training step. Used at startup and for explicit rebuilds.
func (s *RecommendationService) LoadAndTrain(ctx context.Context, src RatingsSource) error {
	ratings, err := src.ListRatings(ctx)
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	products, err := src.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	return s.Train(ctx, ratings, products)
}

// Train builds every model from the given dataset: utility matrix,
// similarity matrices, fallback rankings, and the latent-factor model
// (cache-first hyperparameter policy). It blocks until all state is
// ready. A latent training failure is downgraded to a warning and the
// service serves the neighborhood path only.
func (s *RecommendationService) Train(ctx context.Context, ratings []models.Rating, products []models.Product) error {
	started := time.Now()

	neighborhood, err := recommend.NewNeighborhoodRecommender(ratings, products, s.logger)
	if err != nil {
		return err
	}
	if err := neighborhood.Train(); err != nil {
		return err
	}

	fallback, err := recommend.NewFallbackPolicy(ratings)
	if err != nil {
		return err
	}

	var hadCachedParams bool
	if s.modelCache != nil {
		if cached, err := s.modelCache.Load(ctx); err == nil && cached != nil {
			hadCachedParams = true
		}
	}

	latentReady := false
	latent, err := recommend.NewLatentFactorRecommender(ratings, s.modelCache, s.cfg.Latent, s.logger)
	if err == nil {
		if err := latent.Train(ctx); err != nil {
			s.logger.WithError(err).Warn("Latent model training failed, serving neighborhood path only")
		} else {
			latentReady = true
			if !hadCachedParams && s.metrics != nil {
				s.metrics.GridSearchRuns.Inc()
			}
		}
	} else {
		s.logger.WithError(err).Warn("Latent model unavailable")
	}

	knownClients := make(map[string]struct{})
	for _, r := range ratings {
		knownClients[r.ClientID] = struct{}{}
	}

	s.ratings = ratings
	s.products = products
	s.neighborhood = neighborhood
	s.latent = latent
	s.fallback = fallback
	s.evaluator = recommend.NewAccuracyEvaluator(s.cfg.Evaluation, s.logger)
	s.knownClients = knownClients
	s.latentReady = latentReady
	s.trained = true

	if s.metrics != nil {
		s.metrics.TrainingDuration.Observe(time.Since(started).Seconds())
		s.metrics.DatasetRatings.Set(float64(len(ratings)))
		s.metrics.DatasetClients.Set(float64(len(knownClients)))
		s.metrics.DatasetProducts.Set(float64(len(products)))
	}

	s.logger.WithFields(logrus.Fields{
		"ratings":      len(ratings),
		"clients":      len(knownClients),
		"products":     len(products),
		"latent_ready": latentReady,
		"duration":     time.Since(started),
	}).Info("Recommendation models trained")

	return nil
}

// Recommend returns up to n ranked product recommendations for a client.
// The latent model is the primary source; the fallback policy tops the
// list up with popular and repurchase items. Unknown clients get an
// empty result.
func (s *RecommendationService) Recommend(ctx context.Context, clientID string, n int) ([]models.Recommendation, error) {
	if !s.trained {
		return nil, recommend.ErrNotTrained
	}
	s.countRequest("recommend")

	if n <= 0 {
		n = s.cfg.Neighborhood.DefaultCount
	}
	if _, known := s.knownClients[clientID]; !known {
		s.logger.WithField("client_id", clientID).Debug("Unknown client, no recommendations")
		return nil, nil
	}

	var primary []models.ScoredItem
	if s.latentReady {
		predictions, err := s.latent.Predictions(clientID)
		if err != nil {
			return nil, err
		}
		primary = predictions
	} else {
		// Degraded path: weighted neighborhood predictions.
		recs, err := s.neighborhood.RecommendForClient(clientID, n)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			primary = append(primary, models.ScoredItem{
				ProductID: rec.ProductID,
				Score:     rec.Score,
				Source:    rec.Source,
			})
		}
	}

	filled := s.fallback.Fill(clientID, primary, n)
	return s.withCatalog(filled), nil
}

// SimilarProducts ranks products by purchase-pattern similarity to the
// reference product. Unknown ids get an empty list.
func (s *RecommendationService) SimilarProducts(ctx context.Context, productID string, n int) ([]models.SimilarItem, error) {
	if !s.trained {
		return nil, recommend.ErrNotTrained
	}
	s.countRequest("similar_products")

	if n <= 0 {
		n = s.cfg.Neighborhood.DefaultCount
	}
	return s.neighborhood.SimilarProducts(productID, n)
}

// SimilarClients ranks clients by rating-vector correlation with the
// target client.
func (s *RecommendationService) SimilarClients(ctx context.Context, clientID string, n int) ([]models.SimilarClient, error) {
	if !s.trained {
		return nil, recommend.ErrNotTrained
	}
	s.countRequest("similar_clients")

	if n <= 0 {
		n = s.cfg.Neighborhood.DefaultCount
	}
	return s.neighborhood.SimilarClients(clientID, n)
}

// EvaluateAccuracy runs the precision@K protocol for one client on a
// throwaway model, reusing the production hyperparameters. The serving
// model is never touched.
func (s *RecommendationService) EvaluateAccuracy(ctx context.Context, clientID string) (models.AccuracyReport, error) {
	if !s.trained {
		return models.AccuracyReport{}, recommend.ErrNotTrained
	}
	s.countRequest("evaluate_accuracy")

	params, ok := s.latent.Hyperparameters()
	if !ok {
		return models.AccuracyReport{}, errors.New("services: latent model unavailable, cannot evaluate accuracy")
	}
	return s.evaluator.Evaluate(ctx, s.ratings, params, clientID)
}

// LatentReady reports whether the primary prediction path is available.
func (s *RecommendationService) LatentReady() bool { return s.latentReady }

func (s *RecommendationService) withCatalog(items []models.ScoredItem) []models.Recommendation {
	catalog := make(map[string]models.Product, len(s.products))
	for _, p := range s.products {
		catalog[p.ID] = p
	}
	recs := make([]models.Recommendation, 0, len(items))
	for _, item := range items {
		rec := models.Recommendation{
			ProductID: item.ProductID,
			Score:     item.Score,
			Source:    item.Source,
		}
		if p, ok := catalog[item.ProductID]; ok {
			rec.Category = p.Category
			rec.Brand = p.Brand
			rec.Description = p.Description
		}
		recs = append(recs, rec)
	}
	return recs
}

func (s *RecommendationService) countRequest(operation string) {
	if s.metrics != nil {
		s.metrics.RecommendationRequests.WithLabelValues(operation).Inc()
	}
}
