// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config).
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// EnvFile is an optional .env-style file loaded before environment
	// overrides are applied (see joho/godotenv). Missing files are ignored.
	EnvFile string
	// SkipEnvSubstitution disables ${VAR} substitution.
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation.
	SkipValidation bool
}

// DefaultLoaderOptions returns the loader's standing defaults.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir:   "config",
		EnvFile:     ".env",
		Environment: "",
	}
}

// Load loads configuration with automatic environment detection: it tries
// <dir>/<env>.yaml, then <dir>/default.yaml, then <dir>/config.yaml, falling
// back to an all-defaults Config if none exist.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
		if options.ConfigDir == "" {
			options.ConfigDir = DefaultLoaderOptions().ConfigDir
		}
	}

	if options.EnvFile != "" {
		// A missing .env file is not an error; it simply means no overlay.
		_ = godotenv.Load(options.EnvFile)
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	cfg, err := loadConfigFile(filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env)))
	if err != nil {
		cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "default.yaml"))
		if err != nil {
			cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "config.yaml"))
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	allocateSubConfigs(cfg)

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		errs := ValidateConfiguration(cfg)
		for _, e := range errs {
			if e.Level == "error" {
				return nil, fmt.Errorf("configuration validation failed: %s - %s", e.Field, e.Message)
			}
		}
	}

	return cfg, nil
}

// allocateSubConfigs ensures every sub-config pointer is non-nil so
// setDefaults and the override/validation passes never need nil checks at
// every call site.
func allocateSubConfigs(cfg *Config) {
	if cfg.Node == nil {
		cfg.Node = &NodeConfig{}
	}
	if cfg.ICE == nil {
		cfg.ICE = &ICEConfig{}
	}
	if cfg.DHT == nil {
		cfg.DHT = &DHTConfig{}
	}
	if cfg.Payload == nil {
		cfg.Payload = &PayloadConfig{}
	}
	if cfg.Handshake == nil {
		cfg.Handshake = &HandshakeConfig{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Health == nil {
		cfg.Health = &HealthConfig{}
	}
}

func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides overrides config fields with environment
// variables, taking priority over both file contents and ${VAR}
// substitution.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("RINGS_NODE_KEY_PATH"); v != "" {
		cfg.Node.KeyPath = v
	}
	if v := os.Getenv("RINGS_NODE_LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("RINGS_NODE_BOOTSTRAP"); v != "" {
		cfg.Node.Bootstrap = v
	}

	if v := os.Getenv("RINGS_ICE_SERVERS"); v != "" {
		cfg.ICE.Servers = strings.Split(v, ",")
	}

	if v := os.Getenv("RINGS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RINGS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("RINGS_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
	if v := os.Getenv("RINGS_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}

	if v := os.Getenv("RINGS_HEALTH_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Health.Enabled = enabled
		}
	}
	if v := os.Getenv("RINGS_HEALTH_ADDR"); v != "" {
		cfg.Health.Addr = v
	}

	if v := os.Getenv("RINGS_DHT_STABILIZE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DHT.StabilizeInterval = d
		}
	}
	if v := os.Getenv("RINGS_DHT_FIX_FINGERS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DHT.FixFingersInterval = d
		}
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	opts := DefaultLoaderOptions()
	opts.Environment = environment
	return Load(opts)
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
