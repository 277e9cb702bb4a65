package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mercat/varejo/internal/cache"
	"github.com/mercat/varejo/internal/config"
)

func TestNewModelCache(t *testing.T) {
	t.Run("defaults to redis", func(t *testing.T) {
		cfg := &config.Config{}
		mc := newModelCache(cfg, nil)
		assert.IsType(t, &cache.RedisModelCache{}, mc)
	})

	t.Run("file backend uses the configured path", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Engine.Latent.Cache = "file"
		cfg.Engine.Latent.ParamsPath = "./data/models/best_svd_params.json"

		mc := newModelCache(cfg, nil)
		assert.IsType(t, &cache.FileModelCache{}, mc)
	})
}
