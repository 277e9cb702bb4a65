package models

// ScoredItem is a product ranked by a predicted score. Fallback fill-ins
// carry Score 0 so they always rank below real predictions.
type ScoredItem struct {
	ProductID string  `json:"product_id"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
}

// Recommendation is a scored item joined with catalog metadata.
type Recommendation struct {
	ProductID   string  `json:"product_id"`
	Score       float64 `json:"score"`
	Source      string  `json:"source"`
	Category    string  `json:"category,omitempty"`
	Brand       string  `json:"brand,omitempty"`
	Description string  `json:"description,omitempty"`
}

// SimilarItem is a product ranked by similarity to a reference product.
type SimilarItem struct {
	ProductID   string  `json:"product_id"`
	Similarity  float64 `json:"similarity_score"`
	Description string  `json:"description,omitempty"`
}

// SimilarClient is another client ranked by taste similarity.
type SimilarClient struct {
	ClientID   string  `json:"client_id"`
	Similarity float64 `json:"similarity_score"`
}

// AccuracyReport is the result of the precision@K evaluation protocol for
// a single client. Available is false when the client has too few ratings
// for a meaningful split; the remaining fields are then zero-valued.
type AccuracyReport struct {
	PrecisionAtK          float64  `json:"precision_at_k"`
	Hits                  int      `json:"hits"`
	TotalRecommended      int      `json:"total_recommended"`
	Message               string   `json:"message"`
	GroundTruthLikedItems []string `json:"ground_truth_liked_items"`
	TrainingItems         []string `json:"training_items"`
	SimulatedRecs         []string `json:"simulated_recommendations"`
	HitItems              []string `json:"hit_items"`
	Available             bool     `json:"available"`
}
