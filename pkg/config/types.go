// Copyright 2025 The autocore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the layered configuration of
// one autocore session from file, consul, or etcd, with environment
// variable expansion and optional hot-reload.
package config

import (
	"github.com/loopforge/autocore/pkg/checkpoint"
	"github.com/loopforge/autocore/pkg/decision"
	"github.com/loopforge/autocore/pkg/metrics"
	"github.com/loopforge/autocore/pkg/safety"
)

// Config is the root configuration document, unmarshaled from YAML
// via koanf using the same "koanf" struct tag convention as
// pkg/checkpoint and pkg/metrics.
type Config struct {
	Session    SessionConfig          `koanf:"session"`
	Autonomy   decision.AutonomyLevel `koanf:"autonomy"`
	Resources  safety.ResourceBudget  `koanf:"resources"`
	Checkpoint checkpoint.Config      `koanf:"checkpoint"`
	Metrics    metrics.Config         `koanf:"metrics"`
	Logging    LoggingConfig          `koanf:"logging"`
	Server     ServerConfig           `koanf:"server"`
	Storage    StorageConfig          `koanf:"storage"`
	Auth       AuthConfig             `koanf:"auth"`
}

// AuthConfig enables bearer-JWT protection of the HTTP surface
// (pkg/httpauth). Left disabled, Server.Addr is reachable without
// credentials, matching the teacher's default posture for
// same-cluster scraping.
type AuthConfig struct {
	Enabled  bool   `koanf:"enabled"`
	JWKSURL  string `koanf:"jwks_url"`
	Issuer   string `koanf:"issuer"`
	Audience string `koanf:"audience"`
}

// StorageConfig selects the collab.KVStore backend persisting
// checkpoints, decisions, and reports (spec.md §6). "sqlite" (the
// default) needs only Path; "mysql" and "postgres" need a DSN.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
	DSN    string `koanf:"dsn"`
}

// SessionConfig controls the orchestration loop's top-level behavior.
type SessionConfig struct {
	Unattended         bool    `koanf:"unattended"`
	EnableAutoContinue bool    `koanf:"enable_auto_continue"`
	AutoRollback       bool    `koanf:"auto_rollback"`
	MaxConcurrentTasks int     `koanf:"max_concurrent_tasks"`
	AutoBreakLoops     bool    `koanf:"auto_break_loops"`
	CoverageThreshold  float64 `koanf:"coverage_threshold"`
}

// LoggingConfig mirrors the teacher's logger configuration shape.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig controls the optional HTTP surface (metrics/healthz).
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// SetDefaults fills the zero-value fields a fresh Config would have
// before any provider loads data over it.
func (c *Config) SetDefaults() {
	if c.Session.MaxConcurrentTasks == 0 {
		c.Session.MaxConcurrentTasks = 3
	}
	if c.Session.CoverageThreshold == 0 {
		c.Session.CoverageThreshold = 80
	}
	if c.Autonomy == "" {
		c.Autonomy = decision.Bold
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "autocore.db"
	}
	c.Checkpoint.SetDefaults()
	c.Metrics.SetDefaults()
}
