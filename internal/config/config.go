package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Log     LogConfig     `mapstructure:"log"`
}

type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
	Token   string `mapstructure:"token"`
}

type FeedConfig struct {
	PageSize        int           `mapstructure:"page_size"`
	ReplayThreshold int           `mapstructure:"replay_threshold"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("notifyhub")
	viper.AutomaticEnv()

	viper.SetDefault("backend.base_url", "http://localhost:8080")
	viper.SetDefault("backend.ws_url", "ws://localhost:8080/api/v1/ws")
	viper.SetDefault("feed.page_size", 10)
	viper.SetDefault("feed.replay_threshold", 5)
	viper.SetDefault("feed.reconnect_delay", 5*time.Second)
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
