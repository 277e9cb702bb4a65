package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercat/varejo/internal/cache"
	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/internal/recommend"
	"github.com/mercat/varejo/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		Neighborhood: config.NeighborhoodConfig{DefaultCount: 5},
		Latent: config.LatentConfig{
			Grid: config.GridConfig{
				Factors:         []int{4},
				Epochs:          []int{15},
				LearningRates:   []float64{0.01},
				Regularizations: []float64{0.05},
			},
			Folds: 3,
			Seed:  42,
		},
		Evaluation: config.EvaluationConfig{MinRatings: 4, K: 5, Seed: 42},
	}
}

func engineProducts() []models.Product {
	return []models.Product{
		{ID: "p1", Category: "carnes", Brand: "Friboi", Description: "Picanha kg"},
		{ID: "p2", Category: "bebidas", Brand: "Ambev", Description: "Cerveja lata"},
		{ID: "p3", Category: "padaria", Brand: "Wickbold", Description: "Pao integral"},
		{ID: "p4", Category: "limpeza", Brand: "Omo", Description: "Sabao em po"},
		{ID: "p5", Category: "higiene", Brand: "Colgate", Description: "Creme dental"},
		{ID: "p6", Category: "mercearia", Brand: "Camil", Description: "Arroz 5kg"},
	}
}

func engineRatings() []models.Rating {
	return []models.Rating{
		{ClientID: "c1", ProductID: "p1", Value: 5},
		{ClientID: "c1", ProductID: "p2", Value: 4},
		{ClientID: "c1", ProductID: "p4", Value: 1},
		{ClientID: "c1", ProductID: "p5", Value: 2},
		{ClientID: "c2", ProductID: "p1", Value: 4},
		{ClientID: "c2", ProductID: "p2", Value: 5},
		{ClientID: "c2", ProductID: "p3", Value: 4},
		{ClientID: "c2", ProductID: "p6", Value: 3},
		{ClientID: "c3", ProductID: "p4", Value: 5},
		{ClientID: "c3", ProductID: "p5", Value: 4},
		{ClientID: "c3", ProductID: "p1", Value: 1},
		{ClientID: "c4", ProductID: "p4", Value: 4},
		{ClientID: "c4", ProductID: "p5", Value: 5},
		{ClientID: "c4", ProductID: "p6", Value: 4},
		{ClientID: "c4", ProductID: "p2", Value: 2},
		{ClientID: "c5", ProductID: "p6", Value: 5},
		{ClientID: "c5", ProductID: "p3", Value: 4},
		{ClientID: "c5", ProductID: "p1", Value: 3},
	}
}

func trainedService(t *testing.T, mc cache.ModelCache, metrics *Metrics) *RecommendationService {
	t.Helper()
	s := NewRecommendationService(testEngineConfig(), mc, metrics, testLogger())
	require.NoError(t, s.Train(context.Background(), engineRatings(), engineProducts()))
	return s
}

func TestRecommendationService_UntrainedCalls(t *testing.T) {
	s := NewRecommendationService(testEngineConfig(), nil, nil, testLogger())
	ctx := context.Background()

	_, err := s.Recommend(ctx, "c1", 5)
	assert.ErrorIs(t, err, recommend.ErrNotTrained)
	_, err = s.SimilarProducts(ctx, "p1", 5)
	assert.ErrorIs(t, err, recommend.ErrNotTrained)
	_, err = s.SimilarClients(ctx, "c1", 5)
	assert.ErrorIs(t, err, recommend.ErrNotTrained)
	_, err = s.EvaluateAccuracy(ctx, "c1")
	assert.ErrorIs(t, err, recommend.ErrNotTrained)
}

func TestRecommendationService_Train(t *testing.T) {
	t.Run("empty dataset", func(t *testing.T) {
		s := NewRecommendationService(testEngineConfig(), nil, nil, testLogger())
		err := s.Train(context.Background(), nil, engineProducts())
		assert.ErrorIs(t, err, recommend.ErrNoRatings)
	})

	t.Run("trains both prediction paths", func(t *testing.T) {
		s := trainedService(t, nil, nil)
		assert.True(t, s.LatentReady())
	})

	t.Run("second train with a warm cache skips the search", func(t *testing.T) {
		mc := cache.NewFileModelCache(filepath.Join(t.TempDir(), "params.json"))
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		s := trainedService(t, mc, metrics)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GridSearchRuns))

		cached, err := mc.Load(context.Background())
		require.NoError(t, err)
		require.NotNil(t, cached)

		require.NoError(t, s.Train(context.Background(), engineRatings(), engineProducts()))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GridSearchRuns))
	})

	t.Run("records dataset gauges", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)
		trainedService(t, nil, metrics)

		assert.Equal(t, float64(len(engineRatings())), testutil.ToFloat64(metrics.DatasetRatings))
		assert.Equal(t, 5.0, testutil.ToFloat64(metrics.DatasetClients))
		assert.Equal(t, float64(len(engineProducts())), testutil.ToFloat64(metrics.DatasetProducts))
	})
}

func TestRecommendationService_Recommend(t *testing.T) {
	s := trainedService(t, nil, nil)
	ctx := context.Background()

	rated := map[string]map[string]struct{}{}
	for _, r := range engineRatings() {
		if rated[r.ClientID] == nil {
			rated[r.ClientID] = map[string]struct{}{}
		}
		rated[r.ClientID][r.ProductID] = struct{}{}
	}

	t.Run("never recommends an already rated product", func(t *testing.T) {
		for _, clientID := range []string{"c1", "c2", "c3", "c4", "c5"} {
			recs, err := s.Recommend(ctx, clientID, 3)
			require.NoError(t, err)
			for _, rec := range recs {
				if rec.Source == "history" {
					continue // repurchase tier is rated by definition
				}
				_, seen := rated[clientID][rec.ProductID]
				assert.False(t, seen, "client %s got rated product %s", clientID, rec.ProductID)
			}
		}
	})

	t.Run("respects the requested count without duplicates", func(t *testing.T) {
		recs, err := s.Recommend(ctx, "c1", 4)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(recs), 4)

		seen := map[string]struct{}{}
		for _, rec := range recs {
			_, dup := seen[rec.ProductID]
			assert.False(t, dup, "duplicate product %s", rec.ProductID)
			seen[rec.ProductID] = struct{}{}
		}
	})

	t.Run("joins catalog metadata", func(t *testing.T) {
		recs, err := s.Recommend(ctx, "c1", 3)
		require.NoError(t, err)
		require.NotEmpty(t, recs)
		for _, rec := range recs {
			assert.NotEmpty(t, rec.Description)
			assert.NotEmpty(t, rec.Category)
		}
	})

	t.Run("zero count falls back to the configured default", func(t *testing.T) {
		recs, err := s.Recommend(ctx, "c1", 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(recs), testEngineConfig().Neighborhood.DefaultCount)
		assert.NotEmpty(t, recs)
	})

	t.Run("unknown client gets an empty result", func(t *testing.T) {
		recs, err := s.Recommend(ctx, "ghost", 5)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestRecommendationService_Similar(t *testing.T) {
	s := trainedService(t, nil, nil)
	ctx := context.Background()

	t.Run("similar products excludes the reference", func(t *testing.T) {
		similar, err := s.SimilarProducts(ctx, "p1", 3)
		require.NoError(t, err)
		require.NotEmpty(t, similar)
		for _, item := range similar {
			assert.NotEqual(t, "p1", item.ProductID)
		}
	})

	t.Run("unknown product reference gets an empty result", func(t *testing.T) {
		similar, err := s.SimilarProducts(ctx, "ghost", 3)
		require.NoError(t, err)
		assert.Empty(t, similar)
	})

	t.Run("similar clients excludes the target", func(t *testing.T) {
		similar, err := s.SimilarClients(ctx, "c1", 3)
		require.NoError(t, err)
		require.NotEmpty(t, similar)
		for _, sc := range similar {
			assert.NotEqual(t, "c1", sc.ClientID)
		}
	})
}

func TestRecommendationService_EvaluateAccuracy(t *testing.T) {
	s := trainedService(t, nil, nil)
	ctx := context.Background()

	t.Run("qualifying client gets a bounded precision", func(t *testing.T) {
		report, err := s.EvaluateAccuracy(ctx, "c1")
		require.NoError(t, err)
		require.True(t, report.Available)
		assert.GreaterOrEqual(t, report.PrecisionAtK, 0.0)
		assert.LessOrEqual(t, report.PrecisionAtK, 1.0)
	})

	t.Run("thin history reports insufficient data", func(t *testing.T) {
		report, err := s.EvaluateAccuracy(ctx, "c3")
		require.NoError(t, err)
		assert.False(t, report.Available)
		assert.Contains(t, report.Message, "insufficient data")
	})
}

type stubSource struct {
	ratings  []models.Rating
	products []models.Product
	err      error
}

func (s *stubSource) ListRatings(context.Context) ([]models.Rating, error) {
	return s.ratings, s.err
}

func (s *stubSource) ListProducts(context.Context) ([]models.Product, error) {
	return s.products, s.err
}

func TestRecommendationService_LoadAndTrain(t *testing.T) {
	t.Run("trains from the source", func(t *testing.T) {
		s := NewRecommendationService(testEngineConfig(), nil, nil, testLogger())
		src := &stubSource{ratings: engineRatings(), products: engineProducts()}

		require.NoError(t, s.LoadAndTrain(context.Background(), src))

		recs, err := s.Recommend(context.Background(), "c1", 3)
		require.NoError(t, err)
		assert.NotEmpty(t, recs)
	})

	t.Run("source failure is surfaced", func(t *testing.T) {
		s := NewRecommendationService(testEngineConfig(), nil, nil, testLogger())
		src := &stubSource{err: errors.New("connection refused")}

		err := s.LoadAndTrain(context.Background(), src)
		assert.ErrorContains(t, err, "connection refused")
	})
}
