package recommend

import (
	"sort"

	"github.com/mercat/varejo/pkg/models"
)

// RatingMatrix is the dense client×product utility matrix. Cells hold the
// most recent rating for the pair, or 0 when the client never rated the
// product. Row and column order is sorted by id and stable for the
// lifetime of the matrix, so similarity matrices built from it stay
// aligned with its axes.
type RatingMatrix struct {
	clients  []string
	products []string

	clientIdx  map[string]int
	productIdx map[string]int

	// cells[i][j] = rating of clients[i] for products[j], 0 if absent.
	cells [][]float64
}

// NewRatingMatrix pivots rating rows into the dense matrix. Duplicate
// (client, product) pairs resolve last-write-wins in input order.
func NewRatingMatrix(ratings []models.Rating) (*RatingMatrix, error) {
	if len(ratings) == 0 {
		return nil, ErrNoRatings
	}

	clientSet := make(map[string]struct{})
	productSet := make(map[string]struct{})
	for _, r := range ratings {
		clientSet[r.ClientID] = struct{}{}
		productSet[r.ProductID] = struct{}{}
	}

	m := &RatingMatrix{
		clients:    sortedKeys(clientSet),
		products:   sortedKeys(productSet),
		clientIdx:  make(map[string]int, len(clientSet)),
		productIdx: make(map[string]int, len(productSet)),
	}
	for i, id := range m.clients {
		m.clientIdx[id] = i
	}
	for j, id := range m.products {
		m.productIdx[id] = j
	}

	m.cells = make([][]float64, len(m.clients))
	for i := range m.cells {
		m.cells[i] = make([]float64, len(m.products))
	}
	for _, r := range ratings {
		m.cells[m.clientIdx[r.ClientID]][m.productIdx[r.ProductID]] = float64(r.Value)
	}

	return m, nil
}

// Clients returns the row axis in matrix order.
func (m *RatingMatrix) Clients() []string { return m.clients }

// Products returns the column axis in matrix order.
func (m *RatingMatrix) Products() []string { return m.products }

// HasClient reports whether the client appears in the matrix.
func (m *RatingMatrix) HasClient(clientID string) bool {
	_, ok := m.clientIdx[clientID]
	return ok
}

// HasProduct reports whether the product appears in the matrix.
func (m *RatingMatrix) HasProduct(productID string) bool {
	_, ok := m.productIdx[productID]
	return ok
}

// Value returns the cell for (client, product), or 0 when either id is
// unknown or the pair was never rated.
func (m *RatingMatrix) Value(clientID, productID string) float64 {
	i, ok := m.clientIdx[clientID]
	if !ok {
		return 0
	}
	j, ok := m.productIdx[productID]
	if !ok {
		return 0
	}
	return m.cells[i][j]
}

// Row returns a copy of the client's rating vector in product order, or
// nil for an unknown client.
func (m *RatingMatrix) Row(clientID string) []float64 {
	i, ok := m.clientIdx[clientID]
	if !ok {
		return nil
	}
	row := make([]float64, len(m.cells[i]))
	copy(row, m.cells[i])
	return row
}

// Column returns a copy of the product's rating vector in client order,
// or nil for an unknown product.
func (m *RatingMatrix) Column(productID string) []float64 {
	j, ok := m.productIdx[productID]
	if !ok {
		return nil
	}
	return m.column(j)
}

// UnratedProducts returns the product ids the client has not rated, in
// column order. Unknown clients get nil.
func (m *RatingMatrix) UnratedProducts(clientID string) []string {
	i, ok := m.clientIdx[clientID]
	if !ok {
		return nil
	}
	var unrated []string
	for j, v := range m.cells[i] {
		if v == 0 {
			unrated = append(unrated, m.products[j])
		}
	}
	return unrated
}

func (m *RatingMatrix) row(i int) []float64 { return m.cells[i] }

func (m *RatingMatrix) column(j int) []float64 {
	col := make([]float64, len(m.clients))
	for i := range m.cells {
		col[i] = m.cells[i][j]
	}
	return col
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
