// Package config loads authkit settings from the environment, with a .env
// file honored for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	BackendURL  string        `env:"ECODEED_BACKEND_URL" envDefault:"http://localhost:8000"`
	HTTPTimeout time.Duration `env:"ECODEED_HTTP_TIMEOUT" envDefault:"10s"`

	// CredentialStore selects the durable token storage: memory | file | redis.
	CredentialStore string `env:"ECODEED_CRED_STORE" envDefault:"file"`
	CredentialFile  string `env:"ECODEED_CRED_FILE" envDefault:".ecodeed/credentials.json"`

	RedisAddr     string `env:"ECODEED_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"ECODEED_REDIS_PASSWORD"`
	RedisDB       int    `env:"ECODEED_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"ECODEED_REDIS_PREFIX" envDefault:"authkit"`

	GoogleClientID   string `env:"ECODEED_GOOGLE_CLIENT_ID"`
	GoogleIssuerURL  string `env:"ECODEED_GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`
	FacebookGraphURL string `env:"ECODEED_FACEBOOK_GRAPH_URL" envDefault:"https://graph.facebook.com/v19.0"`

	LogLevel  string `env:"ECODEED_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ECODEED_LOG_FORMAT" envDefault:"text"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.CredentialStore {
	case "memory", "file", "redis":
	default:
		return nil, fmt.Errorf("invalid ECODEED_CRED_STORE %q (want memory, file or redis)", cfg.CredentialStore)
	}
	return cfg, nil
}
