package simulator

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testProducts() []models.Product {
	return []models.Product{
		{ID: "p1", Category: "carnes", Brand: "Friboi", Description: "Picanha kg"},
		{ID: "p2", Category: "limpeza", Brand: "Omo", Description: "Sabao em po"},
		{ID: "p3", Category: "higiene", Brand: "Colgate", Description: "Creme dental"},
		{ID: "p4", Category: "mercearia", Brand: "Camil", Description: "Arroz 5kg"},
	}
}

func TestNew(t *testing.T) {
	cfg := config.SimulatorConfig{Seed: 25, NoiseScale: 0.5}

	t.Run("no clients", func(t *testing.T) {
		_, err := New(nil, testProducts(), nil, cfg, testLogger())
		assert.ErrorIs(t, err, ErrNoClients)
	})

	t.Run("no products", func(t *testing.T) {
		_, err := New([]string{"c1"}, nil, nil, cfg, testLogger())
		assert.ErrorIs(t, err, ErrNoProducts)
	})

	t.Run("every client gets a persona", func(t *testing.T) {
		clients := []string{"c1", "c2", "c3"}
		s, err := New(clients, testProducts(), nil, cfg, testLogger())
		require.NoError(t, err)

		names := make(map[string]struct{})
		for _, a := range Archetypes() {
			names[a.Name] = struct{}{}
		}
		for _, clientID := range clients {
			persona, ok := s.Persona(clientID)
			require.True(t, ok)
			assert.Contains(t, names, persona.Name)
		}
	})

	t.Run("same seed assigns same personas", func(t *testing.T) {
		clients := []string{"c1", "c2", "c3", "c4"}
		s1, err := New(clients, testProducts(), nil, cfg, testLogger())
		require.NoError(t, err)
		s2, err := New(clients, testProducts(), nil, cfg, testLogger())
		require.NoError(t, err)

		for _, clientID := range clients {
			p1, _ := s1.Persona(clientID)
			p2, _ := s2.Persona(clientID)
			assert.Equal(t, p1.Name, p2.Name)
		}
	})
}

func TestPersonaSimulator_Generate(t *testing.T) {
	cfg := config.SimulatorConfig{Seed: 25, NoiseScale: 0.5}
	clients := []string{"c1", "c2", "c3"}

	t.Run("ratings stay on scale with category components", func(t *testing.T) {
		s, err := New(clients, testProducts(), nil, cfg, testLogger())
		require.NoError(t, err)

		ratings := s.Generate(8)
		require.Len(t, ratings, 8)
		for _, r := range ratings {
			assert.GreaterOrEqual(t, r.Value, 1)
			assert.LessOrEqual(t, r.Value, 5)
			require.NotNil(t, r.CategoryValue)
			assert.GreaterOrEqual(t, *r.CategoryValue, 1)
			assert.LessOrEqual(t, *r.CategoryValue, 5)
			if r.BrandValue != nil {
				assert.GreaterOrEqual(t, *r.BrandValue, 1)
				assert.LessOrEqual(t, *r.BrandValue, 5)
			}
		}
	})

	t.Run("never repeats a pair across calls", func(t *testing.T) {
		s, err := New(clients, testProducts(), nil, cfg, testLogger())
		require.NoError(t, err)

		seen := make(map[string]struct{})
		for i := 0; i < 3; i++ {
			for _, r := range s.Generate(4) {
				key := r.ClientID + "/" + r.ProductID
				_, dup := seen[key]
				assert.False(t, dup, "duplicate pair %s", key)
				seen[key] = struct{}{}
			}
		}
	})

	t.Run("existing ratings block their pairs", func(t *testing.T) {
		existing := []models.Rating{
			{ClientID: "c1", ProductID: "p1", Value: 4},
			{ClientID: "c2", ProductID: "p3", Value: 2},
		}
		s, err := New(clients, testProducts(), existing, cfg, testLogger())
		require.NoError(t, err)

		// 3 clients × 4 products minus 2 existing pairs.
		ratings := s.Generate(100)
		assert.Len(t, ratings, 10)
		for _, r := range ratings {
			assert.False(t, r.ClientID == "c1" && r.ProductID == "p1")
			assert.False(t, r.ClientID == "c2" && r.ProductID == "p3")
		}
	})

	t.Run("saturated dataset generates fewer rows than requested", func(t *testing.T) {
		s, err := New([]string{"c1"}, testProducts(), nil, cfg, testLogger())
		require.NoError(t, err)

		ratings := s.Generate(50)
		assert.Len(t, ratings, 4)
		assert.Empty(t, s.Generate(1))
	})

	t.Run("non-positive count yields nothing", func(t *testing.T) {
		s, err := New(clients, testProducts(), nil, cfg, testLogger())
		require.NoError(t, err)
		assert.Nil(t, s.Generate(0))
		assert.Nil(t, s.Generate(-3))
	})
}
