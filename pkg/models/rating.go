package models

import "time"

// Rating is one client's evaluation of one product on a 1-5 scale.
// (ClientID, ProductID) is the identity key: a newer rating for the same
// pair replaces the older one.
type Rating struct {
	ClientID      string    `json:"client_id"`
	ProductID     string    `json:"product_id"`
	Value         int       `json:"value"`
	CategoryValue *int      `json:"category_value,omitempty"`
	BrandValue    *int      `json:"brand_value,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Product is immutable reference data for the engine, looked up by ID only.
type Product struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
	Description string `json:"description"`
}

// Hyperparameters is the cached result of the latent-model grid search.
type Hyperparameters struct {
	Factors        int     `json:"n_factors"`
	Epochs         int     `json:"n_epochs"`
	LearningRate   float64 `json:"lr_all"`
	Regularization float64 `json:"reg_all"`
}
