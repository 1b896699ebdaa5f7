// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/stevemurr/docsvc/store"
)

// EnvPrefix is prepended to every variable name, e.g. DOCSVC_BACKEND.
const EnvPrefix = "docsvc"

const (
	keyBackend  = "backend"
	keyLocation = "location"
	keyLogLevel = "log-level"
)

// Config selects the store backend and where it keeps its data.
type Config struct {
	Backend  string
	Location string
	LogLevel string
}

// Load reads .env and .env.local if present, then the DOCSVC_* environment
// variables. Variables already set in the process win over the files.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyBackend, store.BackendJSON)
	v.SetDefault(keyLocation, "data/docs")
	v.SetDefault(keyLogLevel, "info")

	cfg := Config{
		Backend:  v.GetString(keyBackend),
		Location: v.GetString(keyLocation),
		LogLevel: v.GetString(keyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports a configuration that cannot open a store.
func (c Config) Validate() error {
	if c.Location == "" {
		return fmt.Errorf("invalid config: %w", store.ErrEmptyLocation)
	}
	if !store.ValidBackend(c.Backend) {
		return fmt.Errorf("invalid config: unknown store backend %q", c.Backend)
	}
	return nil
}

// SetupLogging sets the global logrus level, e.g. "debug" or "warn".
func SetupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}
