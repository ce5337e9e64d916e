package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Cobranza"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"cobranza"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	// Governance controls the cutover date: documents issued before it are
	// historical (auto-settled on import) and never receive payments,
	// clients or courses.
	Governance struct {
		CutoverDate string `envconfig:"CUTOVER_DATE" default:"2026-01-01"`
	}

	Clients struct {
		// Minimum similarity score for a client to appear as a
		// near-duplicate suggestion.
		SimilarityThreshold float64 `envconfig:"CLIENT_SIMILARITY_THRESHOLD" default:"0.62"`
		SuggestionLimit     int     `envconfig:"CLIENT_SUGGESTION_LIMIT" default:"5"`
	}

	Engine struct {
		// Row-lock wait budget per command; expiry surfaces as a retryable
		// busy error instead of a hung request.
		LockTimeout time.Duration `envconfig:"ENGINE_LOCK_TIMEOUT" default:"3s"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func (c *Config) CutoverDate() (time.Time, error) {
	t, err := time.Parse(time.DateOnly, c.Governance.CutoverDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing CUTOVER_DATE %q: %w", c.Governance.CutoverDate, err)
	}

	return t, nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
