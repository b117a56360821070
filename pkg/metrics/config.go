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

// Package metrics implements the Metrics & Scoring component (C12):
// event-driven Prometheus counters, the quality/craziness scoring
// formulas of spec.md §4.11, and OpenTelemetry tracing setup.
package metrics

// Config configures metrics collection and tracing.
type Config struct {
	Enabled   bool    `koanf:"enabled"`
	Namespace string  `koanf:"namespace"`
	Endpoint  string  `koanf:"endpoint"`
	Tracing   Tracing `koanf:"tracing"`
}

// Tracing configures the OpenTelemetry tracer provider.
type Tracing struct {
	Enabled      bool    `koanf:"enabled"`
	ServiceName  string  `koanf:"service_name"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// SetDefaults fills zero-valued fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "autocore"
	}
	if c.Endpoint == "" {
		c.Endpoint = "/metrics"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "autocore"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
}
