package recommend

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/pkg/models"
)

// searchHyperparameters walks the full grid and scores every candidate by
// k-fold cross-validated RMSE, returning the set with the lowest average.
// Ties keep the earlier candidate so the selection is deterministic for a
// fixed grid order and seed. This is by far the most expensive operation
// in the engine; callers must consult the model cache before reaching it.
func searchHyperparameters(ratings []models.Rating, grid config.GridConfig, folds int, seed int64, logger *logrus.Logger) (models.Hyperparameters, error) {
	if folds < 2 {
		folds = 3
	}
	if len(ratings) < folds {
		return models.Hyperparameters{}, ErrNoRatings
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(ratings))

	var best models.Hyperparameters
	bestRMSE := math.Inf(1)
	candidates := 0

	for _, factors := range grid.Factors {
		for _, epochs := range grid.Epochs {
			for _, lr := range grid.LearningRates {
				for _, reg := range grid.Regularizations {
					p := models.Hyperparameters{
						Factors:        factors,
						Epochs:         epochs,
						LearningRate:   lr,
						Regularization: reg,
					}
					rmse, err := crossValidate(ratings, perm, folds, p, seed)
					if err != nil {
						logger.WithError(err).WithFields(logrus.Fields{
							"factors": factors, "epochs": epochs,
						}).Warn("Candidate failed cross-validation")
						continue
					}
					candidates++
					if rmse < bestRMSE {
						bestRMSE = rmse
						best = p
					}
				}
			}
		}
	}

	if candidates == 0 {
		return models.Hyperparameters{}, ErrDegenerateRatings
	}

	logger.WithFields(logrus.Fields{
		"rmse":    bestRMSE,
		"factors": best.Factors,
		"epochs":  best.Epochs,
		"lr":      best.LearningRate,
		"reg":     best.Regularization,
	}).Info("Hyperparameter search finished")

	return best, nil
}

// crossValidate averages holdout RMSE over the folds defined by perm.
func crossValidate(ratings []models.Rating, perm []int, folds int, p models.Hyperparameters, seed int64) (float64, error) {
	total := 0.0
	for fold := 0; fold < folds; fold++ {
		train := make([]models.Rating, 0, len(ratings))
		holdout := make([]models.Rating, 0, len(ratings)/folds+1)
		for pos, idx := range perm {
			if pos%folds == fold {
				holdout = append(holdout, ratings[idx])
			} else {
				train = append(train, ratings[idx])
			}
		}

		model, err := newLatentModel(train, p, seed)
		if err != nil {
			return 0, err
		}

		var sqErr float64
		for _, r := range holdout {
			diff := float64(r.Value) - model.Estimate(r.ClientID, r.ProductID)
			sqErr += diff * diff
		}
		total += math.Sqrt(sqErr / float64(len(holdout)))
	}
	return total / float64(folds), nil
}
