package devserver

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr         string        `envconfig:"ADDR" default:":8080"`
	JWTSecret    string        `envconfig:"JWT_SECRET" default:"dev-secret"`
	TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	CommandRate  float64       `envconfig:"COMMAND_RATE" default:"20"`
	CommandBurst int           `envconfig:"COMMAND_BURST" default:"40"`
	SeedCount    int           `envconfig:"SEED_COUNT" default:"0"`
}

// LoadFromEnv reads NOTIFYHUB_* environment variables.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("notifyhub", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	return &cfg, nil
}
