package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/pkg/models"
)

const likedThreshold = 3

// AccuracyEvaluator measures precision@K for a single client by holding
// out half of their history, retraining a throwaway latent model on the
// remainder, and checking how many held-out liked products the model
// recommends. The production model is never touched.
type AccuracyEvaluator struct {
	cfg    config.EvaluationConfig
	logger *logrus.Logger
}

func NewAccuracyEvaluator(cfg config.EvaluationConfig, logger *logrus.Logger) *AccuracyEvaluator {
	if cfg.MinRatings <= 0 {
		cfg.MinRatings = 4
	}
	if cfg.K <= 0 {
		cfg.K = 10
	}
	return &AccuracyEvaluator{cfg: cfg, logger: logger}
}

// Evaluate runs the protocol against the full rating set, reusing the
// hyperparameters already selected for the production model (no
// re-search). Clients with fewer than the minimum ratings get an
// unavailable report, not an error.
func (e *AccuracyEvaluator) Evaluate(ctx context.Context, ratings []models.Rating, params models.Hyperparameters, clientID string) (models.AccuracyReport, error) {
	var clientRatings, others []models.Rating
	for _, r := range ratings {
		if r.ClientID == clientID {
			clientRatings = append(clientRatings, r)
		} else {
			others = append(others, r)
		}
	}

	if len(clientRatings) < e.cfg.MinRatings {
		e.logger.WithFields(logrus.Fields{
			"client_id": clientID,
			"ratings":   len(clientRatings),
		}).Debug("Too few ratings for accuracy evaluation")
		return models.AccuracyReport{
			Available: false,
			Message:   "insufficient data: accuracy evaluation requires more ratings",
		}, nil
	}

	// Seeded shuffle, then a 50/50 slice split: reproducible for a fixed
	// input ordering.
	shuffled := make([]models.Rating, len(clientRatings))
	copy(shuffled, clientRatings)
	rng := rand.New(rand.NewSource(e.cfg.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	split := len(shuffled) / 2
	train := shuffled[:split]
	test := shuffled[split:]

	tempRatings := make([]models.Rating, 0, len(others)+len(train))
	tempRatings = append(tempRatings, others...)
	tempRatings = append(tempRatings, train...)

	temp, err := NewLatentFactorRecommender(tempRatings, nil, config.LatentConfig{Seed: e.cfg.Seed}, e.logger)
	if err != nil {
		return models.AccuracyReport{}, fmt.Errorf("evaluation model: %w", err)
	}
	temp.UseHyperparameters(params)
	if err := temp.Train(ctx); err != nil {
		return models.AccuracyReport{}, fmt.Errorf("evaluation training: %w", err)
	}

	predictions, err := temp.Predictions(clientID)
	if err != nil {
		return models.AccuracyReport{}, err
	}
	policy, err := NewFallbackPolicy(tempRatings)
	if err != nil {
		return models.AccuracyReport{}, err
	}
	recommended := policy.Fill(clientID, predictions, e.cfg.K)

	recommendedIDs := make([]string, 0, len(recommended))
	recommendedSet := make(map[string]struct{}, len(recommended))
	for _, item := range recommended {
		recommendedIDs = append(recommendedIDs, item.ProductID)
		recommendedSet[item.ProductID] = struct{}{}
	}

	var liked []string
	likedSet := make(map[string]struct{})
	for _, r := range test {
		if r.Value >= likedThreshold {
			if _, dup := likedSet[r.ProductID]; !dup {
				likedSet[r.ProductID] = struct{}{}
				liked = append(liked, r.ProductID)
			}
		}
	}

	var hits []string
	for id := range recommendedSet {
		if _, ok := likedSet[id]; ok {
			hits = append(hits, id)
		}
	}
	sort.Strings(hits)

	trainIDs := make([]string, 0, len(train))
	for _, r := range train {
		trainIDs = append(trainIDs, r.ProductID)
	}

	precision := 0.0
	if e.cfg.K > 0 {
		precision = float64(len(hits)) / float64(e.cfg.K)
	}

	return models.AccuracyReport{
		PrecisionAtK:          precision,
		Hits:                  len(hits),
		TotalRecommended:      len(recommendedIDs),
		Message:               "accuracy evaluated",
		GroundTruthLikedItems: liked,
		TrainingItems:         trainIDs,
		SimulatedRecs:         recommendedIDs,
		HitItems:              hits,
		Available:             true,
	}, nil
}
