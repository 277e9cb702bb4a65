package recommend

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric selects how pairwise similarity is computed.
type Metric int

const (
	// MetricPearson correlates full rating vectors, zeros included. Used
	// for client-to-client similarity.
	MetricPearson Metric = iota

	// MetricBinaryCosine computes cosine similarity over binarized
	// purchase indicators (rated > 0 → 1). Used for product-to-product
	// similarity.
	MetricBinaryCosine
)

// Neighbor is one entry of a similarity lookup.
type Neighbor struct {
	ID         string
	Similarity float64
}

// SimilarityMatrix is a symmetric table of pairwise similarities over one
// axis of the rating matrix. The diagonal is stored but never surfaced by
// Neighbors: a node is not its own neighbor.
type SimilarityMatrix struct {
	ids  []string
	idx  map[string]int
	vals [][]float64
}

// UserSimilarity computes Pearson correlation between every pair of
// client rating vectors. A zero-variance vector has no defined
// correlation; those pairs are set to 0 instead of NaN.
func UserSimilarity(m *RatingMatrix) *SimilarityMatrix {
	vectors := make([][]float64, len(m.clients))
	for i := range m.clients {
		vectors[i] = m.row(i)
	}
	return newSimilarityMatrix(m.clients, vectors, MetricPearson)
}

// ItemSimilarity computes cosine similarity between binarized product
// purchase vectors.
func ItemSimilarity(m *RatingMatrix) *SimilarityMatrix {
	vectors := make([][]float64, len(m.products))
	for j := range m.products {
		col := m.column(j)
		for i, v := range col {
			if v > 0 {
				col[i] = 1
			} else {
				col[i] = 0
			}
		}
		vectors[j] = col
	}
	return newSimilarityMatrix(m.products, vectors, MetricBinaryCosine)
}

func newSimilarityMatrix(ids []string, vectors [][]float64, metric Metric) *SimilarityMatrix {
	s := &SimilarityMatrix{
		ids:  ids,
		idx:  make(map[string]int, len(ids)),
		vals: make([][]float64, len(ids)),
	}
	for i, id := range ids {
		s.idx[id] = i
		s.vals[i] = make([]float64, len(ids))
	}

	for i := 0; i < len(ids); i++ {
		s.vals[i][i] = 1
		for j := i + 1; j < len(ids); j++ {
			v := pairSimilarity(vectors[i], vectors[j], metric)
			s.vals[i][j] = v
			s.vals[j][i] = v
		}
	}
	return s
}

func pairSimilarity(a, b []float64, metric Metric) float64 {
	switch metric {
	case MetricPearson:
		r := stat.Correlation(a, b, nil)
		if math.IsNaN(r) {
			// Constant vector: correlation is undefined, treat as
			// no similarity rather than propagating NaN.
			return 0
		}
		return r
	case MetricBinaryCosine:
		na := math.Sqrt(floats.Dot(a, a))
		nb := math.Sqrt(floats.Dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return floats.Dot(a, b) / (na * nb)
	}
	return 0
}

// Has reports whether the id belongs to this matrix's axis.
func (s *SimilarityMatrix) Has(id string) bool {
	_, ok := s.idx[id]
	return ok
}

// Similarity returns the pairwise similarity, or 0 when either id is
// unknown.
func (s *SimilarityMatrix) Similarity(a, b string) float64 {
	i, ok := s.idx[a]
	if !ok {
		return 0
	}
	j, ok := s.idx[b]
	if !ok {
		return 0
	}
	return s.vals[i][j]
}

// Neighbors returns every other node sorted by similarity descending,
// self excluded. Ties break on id so the ordering is reproducible. An
// unknown id yields nil.
func (s *SimilarityMatrix) Neighbors(id string) []Neighbor {
	i, ok := s.idx[id]
	if !ok {
		return nil
	}
	neighbors := make([]Neighbor, 0, len(s.ids)-1)
	for j, other := range s.ids {
		if j == i {
			continue
		}
		neighbors = append(neighbors, Neighbor{ID: other, Similarity: s.vals[i][j]})
	}
	sort.SliceStable(neighbors, func(a, b int) bool {
		if neighbors[a].Similarity != neighbors[b].Similarity {
			return neighbors[a].Similarity > neighbors[b].Similarity
		}
		return neighbors[a].ID < neighbors[b].ID
	})
	return neighbors
}

// PositiveNeighbors returns only the neighbors with similarity > 0, in
// the same order as Neighbors.
func (s *SimilarityMatrix) PositiveNeighbors(id string) []Neighbor {
	all := s.Neighbors(id)
	cut := len(all)
	for i, n := range all {
		if n.Similarity <= 0 {
			cut = i
			break
		}
	}
	return all[:cut]
}
