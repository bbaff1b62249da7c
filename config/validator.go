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

	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/transport"
)

// ValidationError is one configuration problem found by ValidateConfiguration.
type ValidationError struct {
	Field   string
	Message string
	Level   string // "error", "warning", "info"
}

// ValidateConfiguration checks cfg for problems, returning every issue
// found. Callers that want to fail fast should treat any Level == "error"
// entry as fatal; "warning"/"info" entries are advisory.
func ValidateConfiguration(cfg *Config) []ValidationError {
	var errs []ValidationError

	errs = append(errs, validateEnvironment(cfg.Environment)...)
	if cfg.Node != nil {
		errs = append(errs, validateNodeConfig(cfg.Node)...)
	}
	if cfg.ICE != nil {
		errs = append(errs, validateICEConfig(cfg.ICE)...)
	}
	if cfg.DHT != nil {
		errs = append(errs, validateDHTConfig(cfg.DHT)...)
	}
	if cfg.Payload != nil {
		errs = append(errs, validatePayloadConfig(cfg.Payload)...)
	}

	return errs
}

func validateEnvironment(env string) []ValidationError {
	switch env {
	case "development", "local", "staging", "production", "":
		return nil
	default:
		return []ValidationError{{
			Field:   "Environment",
			Message: fmt.Sprintf("unrecognized environment %q", env),
			Level:   "warning",
		}}
	}
}

func validateNodeConfig(cfg *NodeConfig) []ValidationError {
	var errs []ValidationError

	if cfg.KeyPath == "" {
		errs = append(errs, ValidationError{
			Field:   "Node.KeyPath",
			Message: "identity key path is required",
			Level:   "error",
		})
	}

	if cfg.Bootstrap != "" {
		if _, err := dht.ParseDid(cfg.Bootstrap); err != nil {
			errs = append(errs, ValidationError{
				Field:   "Node.Bootstrap",
				Message: fmt.Sprintf("invalid bootstrap did: %v", err),
				Level:   "error",
			})
		}
	}

	return errs
}

func validateICEConfig(cfg *ICEConfig) []ValidationError {
	if len(cfg.Servers) == 0 {
		return []ValidationError{{
			Field:   "ICE.Servers",
			Message: "no ICE servers configured; connect_node handshakes will likely fail across NATs",
			Level:   "warning",
		}}
	}
	if _, err := transport.ParseICEServerURLs(cfg.Servers); err != nil {
		return []ValidationError{{
			Field:   "ICE.Servers",
			Message: fmt.Sprintf("invalid ICE server url: %v", err),
			Level:   "error",
		}}
	}
	return nil
}

func validateDHTConfig(cfg *DHTConfig) []ValidationError {
	var errs []ValidationError
	if cfg.StabilizeInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "DHT.StabilizeInterval",
			Message: "must not be negative",
			Level:   "error",
		})
	}
	if cfg.FixFingersInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "DHT.FixFingersInterval",
			Message: "must not be negative",
			Level:   "error",
		})
	}
	return errs
}

func validatePayloadConfig(cfg *PayloadConfig) []ValidationError {
	if cfg.MaxTTL > 0 && cfg.DefaultTTL > cfg.MaxTTL {
		return []ValidationError{{
			Field:   "Payload.DefaultTTL",
			Message: "default ttl exceeds configured max ttl",
			Level:   "error",
		}}
	}
	return nil
}
