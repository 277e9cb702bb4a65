// Package simulator generates synthetic rating rows from consumer
// archetypes. It exists to bootstrap and enrich sparse datasets for
// experimentation and is never part of the online recommendation path.
package simulator

import (
	"errors"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/pkg/models"
)

var (
	ErrNoClients  = errors.New("simulator: no clients to assign personas to")
	ErrNoProducts = errors.New("simulator: no products to rate")
)

// Archetype is a consumer preference template: signed affinities over
// product categories plus one favored brand. The set is fixed and
// enumerated here rather than assembled dynamically.
type Archetype struct {
	Name             string
	CategoryAffinity map[string]float64
	FavoredBrand     string
	BrandAffinity    float64
}

var archetypes = []Archetype{
	{
		Name: "churrasco",
		CategoryAffinity: map[string]float64{
			"carnes":    1.8,
			"bebidas":   1.2,
			"padaria":   0.4,
			"limpeza":   -0.8,
			"higiene":   -0.6,
			"mercearia": 0.2,
		},
		FavoredBrand:  "Friboi",
		BrandAffinity: 0.8,
	},
	{
		Name: "cafe_da_manha",
		CategoryAffinity: map[string]float64{
			"padaria":    1.6,
			"laticinios": 1.4,
			"mercearia":  0.6,
			"carnes":     -0.4,
			"limpeza":    -0.6,
		},
		FavoredBrand:  "Nestle",
		BrandAffinity: 0.7,
	},
	{
		Name: "limpeza",
		CategoryAffinity: map[string]float64{
			"limpeza":   1.8,
			"higiene":   1.0,
			"mercearia": 0.2,
			"bebidas":   -0.6,
			"carnes":    -1.0,
		},
		FavoredBrand:  "Omo",
		BrandAffinity: 0.9,
	},
	{
		Name: "basicos",
		CategoryAffinity: map[string]float64{
			"mercearia":  1.5,
			"padaria":    0.5,
			"laticinios": 0.4,
			"carnes":     0.3,
			"higiene":    -0.3,
		},
		FavoredBrand:  "Camil",
		BrandAffinity: 0.6,
	},
	{
		Name: "higiene",
		CategoryAffinity: map[string]float64{
			"higiene":    1.7,
			"limpeza":    0.8,
			"laticinios": 0.2,
			"carnes":     -0.7,
			"bebidas":    -0.4,
		},
		FavoredBrand:  "Colgate",
		BrandAffinity: 0.8,
	},
}

// Archetypes exposes the template table, e.g. for reporting.
func Archetypes() []Archetype { return archetypes }

// PersonaSimulator assigns one archetype per client at construction and
// emits plausible rating rows for (client, product) pairs that do not
// exist yet.
type PersonaSimulator struct {
	clients  []string
	products []models.Product
	assigned map[string]Archetype
	existing map[string]map[string]struct{}
	rng      *rand.Rand
	noise    float64
	logger   *logrus.Logger
}

// New assigns archetypes with the configured seed. Existing ratings mark
// pairs the simulator must never regenerate.
func New(clients []string, products []models.Product, existing []models.Rating, cfg config.SimulatorConfig, logger *logrus.Logger) (*PersonaSimulator, error) {
	if len(clients) == 0 {
		return nil, ErrNoClients
	}
	if len(products) == 0 {
		return nil, ErrNoProducts
	}

	noise := cfg.NoiseScale
	if noise <= 0 {
		noise = 0.5
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	s := &PersonaSimulator{
		clients:  clients,
		products: products,
		assigned: make(map[string]Archetype, len(clients)),
		existing: make(map[string]map[string]struct{}),
		rng:      rng,
		noise:    noise,
		logger:   logger,
	}
	for _, clientID := range clients {
		s.assigned[clientID] = archetypes[rng.Intn(len(archetypes))]
	}
	for _, r := range existing {
		s.markExisting(r.ClientID, r.ProductID)
	}
	return s, nil
}

// Persona returns the archetype assigned to a client.
func (s *PersonaSimulator) Persona(clientID string) (Archetype, bool) {
	a, ok := s.assigned[clientID]
	return a, ok
}

// Generate produces up to count new rating rows without ever repeating a
// (client, product) pair. When fewer free pairs remain than requested the
// dataset is saturated: generation stops early and the shorter slice is
// returned, with a warning logged.
func (s *PersonaSimulator) Generate(count int) []models.Rating {
	if count <= 0 {
		return nil
	}

	free := s.freePairs()
	s.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	if len(free) < count {
		s.logger.WithFields(logrus.Fields{
			"requested": count,
			"available": len(free),
		}).Warn("Rating dataset near saturation, generating fewer rows than requested")
		count = len(free)
	}

	ratings := make([]models.Rating, 0, count)
	for _, fp := range free[:count] {
		ratings = append(ratings, s.rate(fp.clientID, fp.product))
		s.markExisting(fp.clientID, fp.product.ID)
	}
	return ratings
}

type freePair struct {
	clientID string
	product  models.Product
}

func (s *PersonaSimulator) freePairs() []freePair {
	var free []freePair
	for _, clientID := range s.clients {
		taken := s.existing[clientID]
		for _, p := range s.products {
			if _, ok := taken[p.ID]; ok {
				continue
			}
			free = append(free, freePair{clientID: clientID, product: p})
		}
	}
	return free
}

// rate scores one (client, product) pair: neutral base, plus the
// archetype's category affinity, plus a brand bonus on a favored-brand
// match, plus bounded noise, clamped to the 1-5 scale and rounded.
func (s *PersonaSimulator) rate(clientID string, p models.Product) models.Rating {
	persona := s.assigned[clientID]

	base := 3.0
	base += persona.CategoryAffinity[p.Category]
	brandMatch := persona.FavoredBrand != "" && p.Brand == persona.FavoredBrand
	if brandMatch {
		base += persona.BrandAffinity
	}
	base += (s.rng.Float64()*2 - 1) * s.noise

	rating := models.Rating{
		ClientID:  clientID,
		ProductID: p.ID,
		Value:     clampRating(base),
	}

	categoryValue := clampRating(3.0 + persona.CategoryAffinity[p.Category])
	rating.CategoryValue = &categoryValue
	if brandMatch {
		brandValue := clampRating(3.0 + persona.BrandAffinity)
		rating.BrandValue = &brandValue
	}
	return rating
}

func (s *PersonaSimulator) markExisting(clientID, productID string) {
	if s.existing[clientID] == nil {
		s.existing[clientID] = make(map[string]struct{})
	}
	s.existing[clientID][productID] = struct{}{}
}

func clampRating(v float64) int {
	return int(math.Max(1, math.Min(5, math.Round(v))))
}
