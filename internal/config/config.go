// Package config holds runtime configuration for the chat relay.
//
// Deployment settings come from the environment (parsed once at startup);
// fixed policy values live in defaults.go.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Server
	Port int `env:"PORT" envDefault:"8080"`

	// Store
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Upstream completion provider
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`

	// Newsletter provider. Optional: the subscribe endpoint reports
	// a configuration error when these are unset instead of refusing
	// to start the whole service.
	BeehiivAPIKey        string `env:"BEEHIIV_API_KEY"`
	BeehiivPublicationID string `env:"BEEHIIV_PUBLICATION_ID"`
	BeehiivBaseURL       string `env:"BEEHIIV_BASE_URL" envDefault:"https://api.beehiiv.com"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Cookies. Disable Secure only for local HTTP development.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Trim to avoid hidden spaces/newlines from pasting into env vars.
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.BeehiivAPIKey = strings.TrimSpace(cfg.BeehiivAPIKey)
	cfg.BeehiivPublicationID = strings.TrimSpace(cfg.BeehiivPublicationID)

	return cfg, nil
}

// BeehiivConfigured reports whether the newsletter provider credentials
// are present.
func (c *Config) BeehiivConfigured() bool {
	return c.BeehiivAPIKey != "" && c.BeehiivPublicationID != ""
}
