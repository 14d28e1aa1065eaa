package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"

	"github.com/utafrali/coffeeshop/pkg/validator"
)

// Load parses environment variables into cfg and then checks its `validate`
// tags, so a bad deployment fails at startup instead of on first request.
//
//	type Config struct {
//	    HTTPPort int    `env:"HTTP_PORT" envDefault:"8001" validate:"gt=0"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	return LoadWithOptions(cfg, env.Options{})
}

// LoadWithOptions is Load with explicit env.Options, e.g. a Prefix or an
// Environment map for tests.
func LoadWithOptions(cfg any, opts env.Options) error {
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
