package recommend

import (
	"github.com/mercat/varejo/pkg/models"
)

// FallbackPolicy fills a recommendation list up to the requested size
// when the primary source runs short. Fill-ins carry score 0 so they
// always rank below real predictions:
//
//	tier 1: the primary predictions, as given
//	tier 2: most popular products by mean rating, unseen by the client
//	tier 3: the client's own best-rated products (repurchase)
type FallbackPolicy struct {
	popular   []models.ScoredItem
	history   map[string][]models.ScoredItem
	seenPairs map[string]map[string]struct{}
}

// NewFallbackPolicy precomputes popularity and per-client history
// rankings from the rating rows.
func NewFallbackPolicy(ratings []models.Rating) (*FallbackPolicy, error) {
	if len(ratings) == 0 {
		return nil, ErrNoRatings
	}

	type agg struct {
		sum   float64
		count int
	}
	byProduct := make(map[string]*agg)
	latest := make(map[string]map[string]float64)
	seen := make(map[string]map[string]struct{})

	for _, r := range ratings {
		if latest[r.ClientID] == nil {
			latest[r.ClientID] = make(map[string]float64)
			seen[r.ClientID] = make(map[string]struct{})
		}
		latest[r.ClientID][r.ProductID] = float64(r.Value)
		seen[r.ClientID][r.ProductID] = struct{}{}
	}
	// Mean over the resolved (last-write-wins) pairs, not raw rows.
	for _, products := range latest {
		for productID, value := range products {
			a := byProduct[productID]
			if a == nil {
				a = &agg{}
				byProduct[productID] = a
			}
			a.sum += value
			a.count++
		}
	}

	popular := make([]models.ScoredItem, 0, len(byProduct))
	for productID, a := range byProduct {
		popular = append(popular, models.ScoredItem{
			ProductID: productID,
			Score:     a.sum / float64(a.count),
			Source:    "popularity",
		})
	}
	sortScoredItems(popular)

	history := make(map[string][]models.ScoredItem, len(latest))
	for clientID, products := range latest {
		own := make([]models.ScoredItem, 0, len(products))
		for productID, value := range products {
			own = append(own, models.ScoredItem{
				ProductID: productID,
				Score:     value,
				Source:    "history",
			})
		}
		sortScoredItems(own)
		history[clientID] = own
	}

	return &FallbackPolicy{
		popular:   popular,
		history:   history,
		seenPairs: seen,
	}, nil
}

// Fill returns at most n items: the primary predictions first, then
// popularity fill-ins the client has not seen, then the client's own
// favorites. Fill-in scores are forced to 0 and the result never repeats
// a product id.
func (p *FallbackPolicy) Fill(clientID string, primary []models.ScoredItem, n int) []models.ScoredItem {
	if n <= 0 {
		return nil
	}

	out := make([]models.ScoredItem, 0, n)
	used := make(map[string]struct{}, n)
	add := func(item models.ScoredItem) bool {
		if _, dup := used[item.ProductID]; dup {
			return len(out) < n
		}
		used[item.ProductID] = struct{}{}
		out = append(out, item)
		return len(out) < n
	}

	for _, item := range primary {
		if !add(item) {
			return out
		}
	}

	seen := p.seenPairs[clientID]
	for _, item := range p.popular {
		if _, rated := seen[item.ProductID]; rated {
			continue
		}
		if !add(models.ScoredItem{ProductID: item.ProductID, Source: item.Source}) {
			return out
		}
	}

	for _, item := range p.history[clientID] {
		if !add(models.ScoredItem{ProductID: item.ProductID, Source: item.Source}) {
			return out
		}
	}

	return out
}
