// Package storage adapts the ratings and product tables to the narrow
// collections the engine consumes. Schema management and raw-record
// validation live upstream; this layer only reads and writes the two
// record shapes.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/mercat/varejo/pkg/models"
)

// Querier is the slice of pgx the repository needs; satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Repository loads rating rows and the product catalog, and upserts
// ratings with last-write-wins semantics per (client, product) pair.
type Repository struct {
	db     Querier
	logger *logrus.Logger
}

func NewRepository(db Querier, logger *logrus.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// ListRatings returns every resolved rating row, oldest first so that
// in-memory last-write-wins resolution matches the table's upsert order.
func (r *Repository) ListRatings(ctx context.Context) ([]models.Rating, error) {
	rows, err := r.db.Query(ctx, `
		SELECT client_id, product_id, value, category_value, brand_value
		FROM ratings
		ORDER BY created_at, client_id, product_id`)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.Rating
	for rows.Next() {
		var rating models.Rating
		if err := rows.Scan(&rating.ClientID, &rating.ProductID, &rating.Value,
			&rating.CategoryValue, &rating.BrandValue); err != nil {
			r.logger.WithError(err).Error("Failed to scan rating row")
			continue
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return ratings, nil
}

// ListProducts returns the catalog.
func (r *Repository) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, category, brand, description
		FROM products
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Category, &p.Brand, &p.Description); err != nil {
			r.logger.WithError(err).Error("Failed to scan product row")
			continue
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ListClients returns the distinct client ids present in the ratings
// table, used by the simulator to assign personas.
func (r *Repository) ListClients(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT client_id FROM ratings ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.logger.WithError(err).Error("Failed to scan client id")
			continue
		}
		clients = append(clients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

const upsertRatingSQL = `
	INSERT INTO ratings (client_id, product_id, value, category_value, brand_value)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (client_id, product_id) DO UPDATE
	SET value = EXCLUDED.value,
	    category_value = EXCLUDED.category_value,
	    brand_value = EXCLUDED.brand_value`

// UpsertRating writes one rating, replacing any earlier rating for the
// same (client, product) pair.
func (r *Repository) UpsertRating(ctx context.Context, rating models.Rating) error {
	_, err := r.db.Exec(ctx, upsertRatingSQL,
		rating.ClientID, rating.ProductID, rating.Value, rating.CategoryValue, rating.BrandValue)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

// BulkInsertRatings writes a batch of simulator-generated rows. Callers
// are expected to invalidate the hyperparameter cache afterwards.
func (r *Repository) BulkInsertRatings(ctx context.Context, ratings []models.Rating) (int, error) {
	inserted := 0
	for _, rating := range ratings {
		if err := r.UpsertRating(ctx, rating); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
