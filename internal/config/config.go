package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		RatingEvents string `mapstructure:"rating_events"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EngineConfig struct {
	Neighborhood NeighborhoodConfig `mapstructure:"neighborhood"`
	Latent       LatentConfig       `mapstructure:"latent"`
	Evaluation   EvaluationConfig   `mapstructure:"evaluation"`
}

type NeighborhoodConfig struct {
	DefaultCount int `mapstructure:"default_count"`
}

type LatentConfig struct {
	// Cache selects the hyperparameter cache backend: "redis" (default)
	// or "file". ParamsPath is where the file backend keeps the blob.
	Cache      string `mapstructure:"cache"`
	ParamsPath string `mapstructure:"params_path"`

	Grid  GridConfig `mapstructure:"grid"`
	Folds int        `mapstructure:"folds"`
	Seed  int64      `mapstructure:"seed"`
}

type GridConfig struct {
	Factors         []int     `mapstructure:"factors"`
	Epochs          []int     `mapstructure:"epochs"`
	LearningRates   []float64 `mapstructure:"learning_rates"`
	Regularizations []float64 `mapstructure:"regularizations"`
}

type EvaluationConfig struct {
	MinRatings int   `mapstructure:"min_ratings"`
	K          int   `mapstructure:"k"`
	Seed       int64 `mapstructure:"seed"`
}

type SimulatorConfig struct {
	Seed       int64   `mapstructure:"seed"`
	NoiseScale float64 `mapstructure:"noise_scale"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Database defaults
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 5)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.rating_events", "rating-events")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Engine defaults
	viper.SetDefault("engine.neighborhood.default_count", 10)
	viper.SetDefault("engine.latent.cache", "redis")
	viper.SetDefault("engine.latent.params_path", "./data/models/best_svd_params.json")
	viper.SetDefault("engine.latent.folds", 3)
	viper.SetDefault("engine.latent.seed", 42)
	viper.SetDefault("engine.latent.grid.factors", []int{50, 80, 100})
	viper.SetDefault("engine.latent.grid.epochs", []int{20, 30})
	viper.SetDefault("engine.latent.grid.learning_rates", []float64{0.005, 0.01})
	viper.SetDefault("engine.latent.grid.regularizations", []float64{0.02, 0.05, 0.1})
	viper.SetDefault("engine.evaluation.min_ratings", 4)
	viper.SetDefault("engine.evaluation.k", 10)
	viper.SetDefault("engine.evaluation.seed", 42)

	// Simulator defaults
	viper.SetDefault("simulator.seed", 25)
	viper.SetDefault("simulator.noise_scale", 0.5)
}

// WithDefaults returns the search space with defaults applied for any
// dimension left empty in the config file.
func (c GridConfig) WithDefaults() GridConfig {
	g := c
	if len(g.Factors) == 0 {
		g.Factors = []int{50, 80, 100}
	}
	if len(g.Epochs) == 0 {
		g.Epochs = []int{20, 30}
	}
	if len(g.LearningRates) == 0 {
		g.LearningRates = []float64{0.005, 0.01}
	}
	if len(g.Regularizations) == 0 {
		g.Regularizations = []float64{0.02, 0.05, 0.1}
	}
	return g
}
