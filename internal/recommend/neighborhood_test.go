package recommend

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercat/varejo/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testCatalog() []models.Product {
	return []models.Product{
		{ID: "p1", Category: "carnes", Brand: "Friboi", Description: "Picanha kg"},
		{ID: "p2", Category: "bebidas", Brand: "Ambev", Description: "Cerveja lata"},
		{ID: "p3", Category: "mercearia", Brand: "Camil", Description: "Arroz 5kg"},
		{ID: "p4", Category: "mercearia", Brand: "Tio Joao", Description: "arroz 5kg "},
	}
}

func TestNewNeighborhoodRecommender(t *testing.T) {
	products := testCatalog()

	t.Run("no ratings", func(t *testing.T) {
		_, err := NewNeighborhoodRecommender(nil, products, testLogger())
		assert.ErrorIs(t, err, ErrNoRatings)
	})

	t.Run("no products", func(t *testing.T) {
		_, err := NewNeighborhoodRecommender([]models.Rating{{ClientID: "c1", ProductID: "p1", Value: 3}}, nil, testLogger())
		assert.ErrorIs(t, err, ErrNoProducts)
	})

	t.Run("predictions before train", func(t *testing.T) {
		r, err := NewNeighborhoodRecommender([]models.Rating{{ClientID: "c1", ProductID: "p1", Value: 3}}, products, testLogger())
		require.NoError(t, err)

		_, err = r.RecommendForClient("c1", 5)
		assert.ErrorIs(t, err, ErrNotTrained)
		_, err = r.SimilarClients("c1", 5)
		assert.ErrorIs(t, err, ErrNotTrained)
		_, err = r.SimilarProducts("p1", 5)
		assert.ErrorIs(t, err, ErrNotTrained)
	})
}

func TestNeighborhoodRecommender_RecommendForClient(t *testing.T) {
	// c1 and c2 agree, c3 disagrees; p3 is rated only by c2 so c1 should
	// have it predicted through the c2 neighborhood.
	ratings := []models.Rating{
		{ClientID: "c1", ProductID: "p1", Value: 5},
		{ClientID: "c1", ProductID: "p2", Value: 2},
		{ClientID: "c2", ProductID: "p1", Value: 5},
		{ClientID: "c2", ProductID: "p2", Value: 1},
		{ClientID: "c2", ProductID: "p3", Value: 4},
		{ClientID: "c3", ProductID: "p1", Value: 1},
		{ClientID: "c3", ProductID: "p2", Value: 5},
	}
	r, err := NewNeighborhoodRecommender(ratings, testCatalog(), testLogger())
	require.NoError(t, err)
	require.NoError(t, r.Train())

	t.Run("predicts only unrated products", func(t *testing.T) {
		recs, err := r.RecommendForClient("c1", 10)
		require.NoError(t, err)
		require.NotEmpty(t, recs)
		for _, rec := range recs {
			assert.NotEqual(t, "p1", rec.ProductID)
			assert.NotEqual(t, "p2", rec.ProductID)
			assert.Equal(t, "neighborhood", rec.Source)
		}
	})

	t.Run("joins catalog metadata", func(t *testing.T) {
		recs, err := r.RecommendForClient("c1", 10)
		require.NoError(t, err)
		require.NotEmpty(t, recs)
		assert.Equal(t, "p3", recs[0].ProductID)
		assert.Equal(t, "mercearia", recs[0].Category)
		assert.Equal(t, "Arroz 5kg", recs[0].Description)
	})

	t.Run("truncates to n", func(t *testing.T) {
		recs, err := r.RecommendForClient("c1", 1)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(recs), 1)
	})

	t.Run("unknown client yields empty result", func(t *testing.T) {
		recs, err := r.RecommendForClient("ghost", 5)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestNeighborhoodRecommender_SimilarClients(t *testing.T) {
	ratings := []models.Rating{
		{ClientID: "c1", ProductID: "p1", Value: 5},
		{ClientID: "c1", ProductID: "p2", Value: 1},
		{ClientID: "c2", ProductID: "p1", Value: 5},
		{ClientID: "c2", ProductID: "p2", Value: 2},
		{ClientID: "c3", ProductID: "p1", Value: 1},
		{ClientID: "c3", ProductID: "p2", Value: 5},
	}
	r, err := NewNeighborhoodRecommender(ratings, testCatalog(), testLogger())
	require.NoError(t, err)
	require.NoError(t, r.Train())

	t.Run("ranked descending without self", func(t *testing.T) {
		similar, err := r.SimilarClients("c1", 10)
		require.NoError(t, err)
		require.Len(t, similar, 2)
		assert.Equal(t, "c2", similar[0].ClientID)
		assert.Greater(t, similar[0].Similarity, similar[1].Similarity)
		for _, sc := range similar {
			assert.NotEqual(t, "c1", sc.ClientID)
		}
	})

	t.Run("unknown client yields empty result", func(t *testing.T) {
		similar, err := r.SimilarClients("ghost", 10)
		require.NoError(t, err)
		assert.Empty(t, similar)
	})
}

func TestNeighborhoodRecommender_SimilarProducts(t *testing.T) {
	ratings := []models.Rating{
		{ClientID: "c1", ProductID: "p1", Value: 5},
		{ClientID: "c1", ProductID: "p3", Value: 4},
		{ClientID: "c2", ProductID: "p1", Value: 3},
		{ClientID: "c2", ProductID: "p3", Value: 5},
		{ClientID: "c2", ProductID: "p4", Value: 4},
		{ClientID: "c3", ProductID: "p2", Value: 2},
	}
	r, err := NewNeighborhoodRecommender(ratings, testCatalog(), testLogger())
	require.NoError(t, err)
	require.NoError(t, r.Train())

	t.Run("excludes reference product", func(t *testing.T) {
		similar, err := r.SimilarProducts("p1", 10)
		require.NoError(t, err)
		for _, item := range similar {
			assert.NotEqual(t, "p1", item.ProductID)
		}
	})

	t.Run("excludes folded description duplicates", func(t *testing.T) {
		// p4's description folds to the same string as p3's.
		similar, err := r.SimilarProducts("p3", 10)
		require.NoError(t, err)
		for _, item := range similar {
			assert.NotEqual(t, "p4", item.ProductID)
		}
	})

	t.Run("unknown reference yields empty result", func(t *testing.T) {
		similar, err := r.SimilarProducts("ghost", 10)
		require.NoError(t, err)
		assert.Empty(t, similar)
	})
}
