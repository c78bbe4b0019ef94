package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds overrides read from the environment. Empty values leave the
// import specification unchanged.
type Env struct {
	DataDir   string `env:"MKOLIST_DATA_DIR"`
	Database  string `env:"MKOLIST_DATABASE"`
	BatchSize int    `env:"MKOLIST_BATCH_SIZE"`
	LogLevel  string `env:"MKOLIST_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"MKOLIST_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads overrides from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply copies the non-empty overrides into cfg.
func (e Env) Apply(cfg *Config) {
	if e.DataDir != "" {
		cfg.DataDir = e.DataDir
	}
	if e.Database != "" {
		cfg.Database = e.Database
	}
	if e.BatchSize != 0 {
		cfg.BatchSize = e.BatchSize
	}
}
