package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config contains runtime configuration required by the service.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DBURL       string `env:"DB_URL"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDB     string `env:"MONGO_DB" envDefault:"game_telemetry"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DBURL == "" {
			return Config{}, errors.New("DB_URL required when STORE_DRIVER=postgres")
		}
	case "mongo":
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be postgres or mongo, got %q", cfg.StoreDriver)
	}

	return cfg, nil
}
