// Package cache persists the winning hyperparameter set between process
// runs so the grid search is not repeated needlessly. Only the selection
// is cached; trained weights are rebuilt from scratch on every start.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/mercat/varejo/pkg/models"
)

// ModelCache stores at most one hyperparameter set. Load returns
// (nil, nil) when nothing is cached. Invalidate must be called whenever
// the underlying rating set changes materially (e.g. after a simulator
// run), so the next training pass re-runs the search.
type ModelCache interface {
	Load(ctx context.Context) (*models.Hyperparameters, error)
	Store(ctx context.Context, params models.Hyperparameters) error
	Invalidate(ctx context.Context) error
}

// FileModelCache keeps the set as a single JSON blob on disk.
type FileModelCache struct {
	path string
}

func NewFileModelCache(path string) *FileModelCache {
	return &FileModelCache{path: path}
}

func (c *FileModelCache) Load(_ context.Context) (*models.Hyperparameters, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hyperparameter cache: %w", err)
	}
	var params models.Hyperparameters
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("decode hyperparameter cache: %w", err)
	}
	return &params, nil
}

func (c *FileModelCache) Store(_ context.Context, params models.Hyperparameters) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	// Write-then-rename so a crash never leaves a torn blob behind.
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write hyperparameter cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}

func (c *FileModelCache) Invalidate(_ context.Context) error {
	err := os.Remove(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// RedisModelCache keeps the set under a single Redis key, for deployments
// where the engine runs on more than one host.
type RedisModelCache struct {
	client *redis.Client
	key    string
}

func NewRedisModelCache(client *redis.Client, key string) *RedisModelCache {
	if key == "" {
		key = "recommender:hyperparameters"
	}
	return &RedisModelCache{client: client, key: key}
}

func (c *RedisModelCache) Load(ctx context.Context) (*models.Hyperparameters, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hyperparameter cache: %w", err)
	}
	var params models.Hyperparameters
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("decode hyperparameter cache: %w", err)
	}
	return &params, nil
}

func (c *RedisModelCache) Store(ctx context.Context, params models.Hyperparameters) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, 0).Err()
}

func (c *RedisModelCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
