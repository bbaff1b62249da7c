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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithNoConfigFilesUsesDefaults(t *testing.T) {
	opts := DefaultLoaderOptions()
	opts.ConfigDir = filepath.Join(t.TempDir(), "does-not-exist")
	opts.EnvFile = ""

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Node.KeyPath != ".rings/identity.key" {
		t.Errorf("Node.KeyPath = %q, want default", cfg.Node.KeyPath)
	}
	if cfg.DHT.StabilizeInterval != time.Second {
		t.Errorf("DHT.StabilizeInterval = %v, want 1s", cfg.DHT.StabilizeInterval)
	}
	if len(cfg.ICE.Servers) == 0 {
		t.Error("ICE.Servers should default to at least one STUN server")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := []byte(`
environment: staging
node:
  key_path: /tmp/identity.key
  bootstrap: ""
ice:
  servers:
    - "stun://stun.l.google.com:19302"
`)
	if err := os.WriteFile(filepath.Join(dir, "default.yaml"), yamlContent, 0644); err != nil {
		t.Fatal(err)
	}

	opts := DefaultLoaderOptions()
	opts.ConfigDir = dir
	opts.EnvFile = ""
	opts.Environment = "staging"

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Node.KeyPath != "/tmp/identity.key" {
		t.Errorf("Node.KeyPath = %q, want /tmp/identity.key", cfg.Node.KeyPath)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("RINGS_NODE_KEY_PATH", "/override/identity.key")
	t.Setenv("RINGS_LOG_LEVEL", "debug")

	opts := DefaultLoaderOptions()
	opts.ConfigDir = filepath.Join(t.TempDir(), "does-not-exist")
	opts.EnvFile = ""

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Node.KeyPath != "/override/identity.key" {
		t.Errorf("Node.KeyPath = %q, want override", cfg.Node.KeyPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidBootstrap(t *testing.T) {
	t.Setenv("RINGS_NODE_BOOTSTRAP", "not-a-valid-did")

	opts := DefaultLoaderOptions()
	opts.ConfigDir = filepath.Join(t.TempDir(), "does-not-exist")
	opts.EnvFile = ""

	if _, err := Load(opts); err == nil {
		t.Error("Load() with invalid bootstrap did should fail validation")
	}
}

func TestMustLoadPanicsOnError(t *testing.T) {
	t.Setenv("RINGS_NODE_BOOTSTRAP", "not-a-valid-did")
	opts := DefaultLoaderOptions()
	opts.ConfigDir = filepath.Join(t.TempDir(), "does-not-exist")
	opts.EnvFile = ""

	defer func() {
		if recover() == nil {
			t.Error("MustLoad() should panic on validation failure")
		}
	}()
	MustLoad(opts)
}
