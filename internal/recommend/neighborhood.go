package recommend

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"

	"github.com/mercat/varejo/pkg/models"
)

// NeighborhoodRecommender serves user-based and item-based collaborative
// filtering over in-memory similarity matrices. Train must complete
// before any prediction call; the structure is read-only afterwards.
type NeighborhoodRecommender struct {
	ratings []models.Rating
	catalog map[string]models.Product
	logger  *logrus.Logger

	matrix *RatingMatrix
	users  *SimilarityMatrix
	items  *SimilarityMatrix
}

// NewNeighborhoodRecommender validates inputs and prepares an untrained
// recommender. Both collections must be non-empty.
func NewNeighborhoodRecommender(ratings []models.Rating, products []models.Product, logger *logrus.Logger) (*NeighborhoodRecommender, error) {
	if len(ratings) == 0 {
		return nil, ErrNoRatings
	}
	if len(products) == 0 {
		return nil, ErrNoProducts
	}

	catalog := make(map[string]models.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}

	return &NeighborhoodRecommender{
		ratings: ratings,
		catalog: catalog,
		logger:  logger,
	}, nil
}

// Train builds the utility matrix and both similarity matrices. This is
// the O(U²·P + P²·U) batch step; it must finish before predictions are
// served.
func (r *NeighborhoodRecommender) Train() error {
	matrix, err := NewRatingMatrix(r.ratings)
	if err != nil {
		return err
	}
	r.matrix = matrix
	r.users = UserSimilarity(matrix)
	r.items = ItemSimilarity(matrix)

	r.logger.WithFields(logrus.Fields{
		"clients":  len(matrix.Clients()),
		"products": len(matrix.Products()),
	}).Debug("Neighborhood model trained")

	return nil
}

// Matrix exposes the trained utility matrix, nil before Train.
func (r *NeighborhoodRecommender) Matrix() *RatingMatrix { return r.matrix }

// RecommendForClient predicts scores for products the client has not
// rated, weighting neighbor ratings by positive similarity. An unknown
// client or a client with no positive-similarity neighbors gets an empty
// result; calling before Train is an error.
func (r *NeighborhoodRecommender) RecommendForClient(clientID string, n int) ([]models.Recommendation, error) {
	if r.matrix == nil {
		return nil, ErrNotTrained
	}
	if !r.matrix.HasClient(clientID) {
		return nil, nil
	}

	neighbors := r.users.PositiveNeighbors(clientID)
	if len(neighbors) == 0 {
		r.logger.WithField("client_id", clientID).Debug("No positive-similarity neighbors")
		return nil, nil
	}

	scored := make([]models.ScoredItem, 0)
	for _, productID := range r.matrix.UnratedProducts(clientID) {
		var weightedSum, similaritySum float64
		for _, nb := range neighbors {
			rating := r.matrix.Value(nb.ID, productID)
			weightedSum += nb.Similarity * rating
			if rating > 0 {
				similaritySum += nb.Similarity
			}
		}
		// No neighbor rated this product: nothing to predict from.
		if similaritySum == 0 {
			continue
		}
		scored = append(scored, models.ScoredItem{
			ProductID: productID,
			Score:     weightedSum / similaritySum,
			Source:    "neighborhood",
		})
	}

	sortScoredItems(scored)
	if len(scored) > n {
		scored = scored[:n]
	}

	recs := make([]models.Recommendation, 0, len(scored))
	for _, item := range scored {
		rec := models.Recommendation{
			ProductID: item.ProductID,
			Score:     item.Score,
			Source:    item.Source,
		}
		if p, ok := r.catalog[item.ProductID]; ok {
			rec.Category = p.Category
			rec.Brand = p.Brand
			rec.Description = p.Description
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SimilarClients ranks other clients by Pearson similarity to the target,
// self excluded. Unknown clients get an empty result.
func (r *NeighborhoodRecommender) SimilarClients(clientID string, n int) ([]models.SimilarClient, error) {
	if r.matrix == nil {
		return nil, ErrNotTrained
	}
	neighbors := r.users.Neighbors(clientID)
	if len(neighbors) > n {
		neighbors = neighbors[:n]
	}
	out := make([]models.SimilarClient, 0, len(neighbors))
	for _, nb := range neighbors {
		out = append(out, models.SimilarClient{ClientID: nb.ID, Similarity: nb.Similarity})
	}
	return out, nil
}

// SimilarProducts ranks products by binarized-cosine similarity to the
// reference product. The reference itself and any product whose folded
// description matches the reference's are excluded, so near-duplicate
// catalog entries do not crowd the list. An unknown reference id gets an
// empty result.
func (r *NeighborhoodRecommender) SimilarProducts(productID string, n int) ([]models.SimilarItem, error) {
	if r.matrix == nil {
		return nil, ErrNotTrained
	}
	neighbors := r.items.Neighbors(productID)
	if neighbors == nil {
		return nil, nil
	}

	refDesc := ""
	if ref, ok := r.catalog[productID]; ok {
		refDesc = foldDescription(ref.Description)
	}

	out := make([]models.SimilarItem, 0, n)
	for _, nb := range neighbors {
		p, ok := r.catalog[nb.ID]
		if ok && refDesc != "" && foldDescription(p.Description) == refDesc {
			continue
		}
		out = append(out, models.SimilarItem{
			ProductID:   nb.ID,
			Similarity:  nb.Similarity,
			Description: p.Description,
		})
		if len(out) == n {
			break
		}
	}
	return out, nil
}

var descriptionFolder = cases.Fold()

func foldDescription(desc string) string {
	return descriptionFolder.String(strings.TrimSpace(desc))
}

func sortScoredItems(items []models.ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ProductID < items[j].ProductID
	})
}
