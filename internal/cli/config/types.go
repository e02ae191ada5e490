// Package config provides configuration management for the fedplan CLI.
//
// Settings are layered from defaults, fedplan.yaml, FEDPLAN_* environment
// variables and command flags. The catalog section describes the
// integrations and predictors queries may reference.
package config

import (
	"github.com/leapstack-labs/fedplan/pkg/catalog"
)

// Config holds all CLI configuration options.
type Config struct {
	DefaultNamespace   string       `koanf:"default_namespace"`
	PredictorNamespace string       `koanf:"predictor_namespace"`
	OutputFormat       string       `koanf:"output"`
	Verbose            bool         `koanf:"verbose"`
	StatePath          string       `koanf:"state_path"`
	History            bool         `koanf:"history"`
	Server             ServerConfig `koanf:"server"`
	Catalog            catalog.Spec `koanf:"catalog"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// ServerConfig holds configuration for the planning API server.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Default configuration values.
const (
	DefaultNamespace  = catalog.DefaultPredictorNamespace
	DefaultStateFile  = ".fedplan/state.db"
	DefaultOutput     = "auto" // TTY=text, otherwise table
	DefaultServerAddr = "127.0.0.1:8420"
	DefaultConfigName = "fedplan.yaml"
)

// Default returns a config populated with default values.
func Default() *Config {
	return &Config{
		DefaultNamespace:   DefaultNamespace,
		PredictorNamespace: catalog.DefaultPredictorNamespace,
		OutputFormat:       DefaultOutput,
		StatePath:          DefaultStateFile,
		History:            true,
		Server:             ServerConfig{Addr: DefaultServerAddr},
	}
}

// BaseCatalog builds the catalog declared in the config file. Top-level
// namespace settings apply when the catalog section leaves them empty.
func (c *Config) BaseCatalog() (*catalog.Catalog, error) {
	spec := c.Catalog
	if spec.DefaultNamespace == "" {
		spec.DefaultNamespace = c.DefaultNamespace
	}
	if spec.PredictorNamespace == "" {
		spec.PredictorNamespace = c.PredictorNamespace
	}
	return catalog.FromSpec(spec)
}
