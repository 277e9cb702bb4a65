package recommend

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/mercat/varejo/internal/cache"
	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/pkg/models"
)

const (
	ratingMin = 1.0
	ratingMax = 5.0
)

type sample struct {
	user, item int
	value      float64
}

// latentModel is the trained factorization state: global mean, per-user
// and per-item biases, explicit factors, and the implicit-feedback item
// factors folded into each user's prediction vector.
//
// r̂(u,i) = μ + bu + bi + qi · (pu + |N(u)|^-1/2 Σ_{j∈N(u)} yj)
type latentModel struct {
	params models.Hyperparameters
	mean   float64

	userIdx map[string]int
	itemIdx map[string]int
	items   []string

	userBias []float64
	itemBias []float64

	userFactors [][]float64 // pu
	itemFactors [][]float64 // qi
	implicit    [][]float64 // yj

	ratedBy [][]int // item indices rated by each user

	// userProfile[u] = pu + normalized implicit sum, fixed after fit.
	userProfile [][]float64
}

// newLatentModel fits the factorization on the given ratings by SGD over
// known cells only. Unknown cells are never treated as negative signal.
func newLatentModel(ratings []models.Rating, params models.Hyperparameters, seed int64) (*latentModel, error) {
	if len(ratings) == 0 {
		return nil, ErrNoRatings
	}

	m := &latentModel{
		params:  params,
		userIdx: make(map[string]int),
		itemIdx: make(map[string]int),
	}

	samples := make([]sample, 0, len(ratings))
	// Last write wins per pair, matching the utility-matrix convention.
	byPair := make(map[[2]int]int)
	var sum float64
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, r := range ratings {
		u, ok := m.userIdx[r.ClientID]
		if !ok {
			u = len(m.userIdx)
			m.userIdx[r.ClientID] = u
		}
		i, ok := m.itemIdx[r.ProductID]
		if !ok {
			i = len(m.itemIdx)
			m.itemIdx[r.ProductID] = i
			m.items = append(m.items, r.ProductID)
		}
		v := float64(r.Value)
		if idx, dup := byPair[[2]int{u, i}]; dup {
			samples[idx].value = v
			continue
		}
		byPair[[2]int{u, i}] = len(samples)
		samples = append(samples, sample{user: u, item: i, value: v})
	}
	for _, s := range samples {
		sum += s.value
		minV = math.Min(minV, s.value)
		maxV = math.Max(maxV, s.value)
	}
	if minV == maxV {
		return nil, ErrDegenerateRatings
	}
	m.mean = sum / float64(len(samples))

	nUsers, nItems, k := len(m.userIdx), len(m.itemIdx), params.Factors
	m.userBias = make([]float64, nUsers)
	m.itemBias = make([]float64, nItems)
	rng := rand.New(rand.NewSource(seed))
	m.userFactors = randomFactors(rng, nUsers, k)
	m.itemFactors = randomFactors(rng, nItems, k)
	m.implicit = randomFactors(rng, nItems, k)

	m.ratedBy = make([][]int, nUsers)
	for _, s := range samples {
		m.ratedBy[s.user] = append(m.ratedBy[s.user], s.item)
	}

	if err := m.fit(samples, rng); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *latentModel) fit(samples []sample, rng *rand.Rand) error {
	lr := m.params.LearningRate
	reg := m.params.Regularization
	k := m.params.Factors

	implicitSum := make([]float64, k)
	order := rng.Perm(len(samples))

	for epoch := 0; epoch < m.params.Epochs; epoch++ {
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		for _, idx := range order {
			s := samples[idx]
			pu := m.userFactors[s.user]
			qi := m.itemFactors[s.item]
			rated := m.ratedBy[s.user]
			norm := 1 / math.Sqrt(float64(len(rated)))

			for f := 0; f < k; f++ {
				implicitSum[f] = 0
			}
			for _, j := range rated {
				floats.Add(implicitSum, m.implicit[j])
			}
			floats.Scale(norm, implicitSum)

			pred := m.mean + m.userBias[s.user] + m.itemBias[s.item]
			for f := 0; f < k; f++ {
				pred += qi[f] * (pu[f] + implicitSum[f])
			}
			e := s.value - pred

			m.userBias[s.user] += lr * (e - reg*m.userBias[s.user])
			m.itemBias[s.item] += lr * (e - reg*m.itemBias[s.item])

			for f := 0; f < k; f++ {
				puf, qif := pu[f], qi[f]
				pu[f] += lr * (e*qif - reg*puf)
				qi[f] += lr * (e*(puf+implicitSum[f]) - reg*qif)
				grad := lr * (e * norm * qif)
				for _, j := range rated {
					m.implicit[j][f] += grad - lr*reg*m.implicit[j][f]
				}
			}
		}

		if math.IsNaN(m.userBias[samples[0].user]) || math.IsInf(m.userBias[samples[0].user], 0) {
			return fmt.Errorf("factorization diverged at epoch %d: %w", epoch, ErrDegenerateRatings)
		}
	}

	// Freeze per-user prediction vectors so Estimate is a plain dot
	// product after training.
	m.userProfile = make([][]float64, len(m.userFactors))
	for u := range m.userFactors {
		profile := make([]float64, k)
		copy(profile, m.userFactors[u])
		if len(m.ratedBy[u]) > 0 {
			norm := 1 / math.Sqrt(float64(len(m.ratedBy[u])))
			for _, j := range m.ratedBy[u] {
				for f := 0; f < k; f++ {
					profile[f] += norm * m.implicit[j][f]
				}
			}
		}
		m.userProfile[u] = profile
	}
	return nil
}

// Estimate predicts the rating for a (client, product) pair, clamped to
// the rating scale. Unknown clients or products fall back to the terms
// that are known, down to the global mean.
func (m *latentModel) Estimate(clientID, productID string) float64 {
	pred := m.mean
	u, hasUser := m.userIdx[clientID]
	i, hasItem := m.itemIdx[productID]
	if hasUser {
		pred += m.userBias[u]
	}
	if hasItem {
		pred += m.itemBias[i]
	}
	if hasUser && hasItem {
		pred += floats.Dot(m.itemFactors[i], m.userProfile[u])
	}
	return math.Max(ratingMin, math.Min(ratingMax, pred))
}

func randomFactors(rng *rand.Rand, n, k int) [][]float64 {
	factors := make([][]float64, n)
	for i := range factors {
		row := make([]float64, k)
		for f := range row {
			row[f] = rng.NormFloat64() * 0.1
		}
		factors[i] = row
	}
	return factors
}

// LatentFactorRecommender wraps the factorization model with the
// cache-first hyperparameter policy. The search runs only when the
// injected ModelCache has no stored set; the final model is always refit
// on the full rating set afterwards.
type LatentFactorRecommender struct {
	ratings []models.Rating
	cache   cache.ModelCache
	cfg     config.LatentConfig
	logger  *logrus.Logger

	params *models.Hyperparameters
	model  *latentModel
}

// NewLatentFactorRecommender validates the rating set and prepares an
// untrained recommender. The model cache may be nil when the caller
// manages hyperparameters itself (e.g. the accuracy evaluator).
func NewLatentFactorRecommender(ratings []models.Rating, mc cache.ModelCache, cfg config.LatentConfig, logger *logrus.Logger) (*LatentFactorRecommender, error) {
	if len(ratings) == 0 {
		return nil, ErrNoRatings
	}
	return &LatentFactorRecommender{
		ratings: ratings,
		cache:   mc,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// UseHyperparameters pins the hyperparameter set, skipping both the cache
// lookup and the grid search on the next Train call.
func (r *LatentFactorRecommender) UseHyperparameters(p models.Hyperparameters) {
	r.params = &p
}

// Hyperparameters returns the selected set, if any.
func (r *LatentFactorRecommender) Hyperparameters() (models.Hyperparameters, bool) {
	if r.params == nil {
		return models.Hyperparameters{}, false
	}
	return *r.params, true
}

// Train resolves hyperparameters (pinned set → cache → grid search, in
// that order) and then refits the final model on 100% of the ratings.
func (r *LatentFactorRecommender) Train(ctx context.Context) error {
	if r.params == nil && r.cache != nil {
		cached, err := r.cache.Load(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("Hyperparameter cache unavailable, falling back to search")
		} else if cached != nil {
			r.params = cached
			r.logger.WithFields(logrus.Fields{
				"factors": cached.Factors,
				"epochs":  cached.Epochs,
			}).Debug("Hyperparameters loaded from cache")
		}
	}

	if r.params == nil {
		best, err := searchHyperparameters(r.ratings, r.cfg.Grid.WithDefaults(), r.cfg.Folds, r.cfg.Seed, r.logger)
		if err != nil {
			return fmt.Errorf("hyperparameter search: %w", err)
		}
		r.params = &best
		if r.cache != nil {
			if err := r.cache.Store(ctx, best); err != nil {
				r.logger.WithError(err).Warn("Failed to persist hyperparameters")
			}
		}
	}

	model, err := newLatentModel(r.ratings, *r.params, r.cfg.Seed)
	if err != nil {
		return fmt.Errorf("final fit: %w", err)
	}
	r.model = model
	return nil
}

// Predict returns the estimated rating for one pair.
func (r *LatentFactorRecommender) Predict(clientID, productID string) (float64, error) {
	if r.model == nil {
		return 0, ErrNotTrained
	}
	return r.model.Estimate(clientID, productID), nil
}

// Predictions scores every product the client has not rated, ranked
// descending. Products the client already rated are never included.
func (r *LatentFactorRecommender) Predictions(clientID string) ([]models.ScoredItem, error) {
	if r.model == nil {
		return nil, ErrNotTrained
	}

	seen := make(map[string]struct{})
	for _, rating := range r.ratings {
		if rating.ClientID == clientID {
			seen[rating.ProductID] = struct{}{}
		}
	}

	scored := make([]models.ScoredItem, 0, len(r.model.items))
	for _, productID := range r.model.items {
		if _, ok := seen[productID]; ok {
			continue
		}
		scored = append(scored, models.ScoredItem{
			ProductID: productID,
			Score:     r.model.Estimate(clientID, productID),
			Source:    "latent",
		})
	}
	sortScoredItems(scored)
	return scored, nil
}
