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

package checkpoint

// Strategy determines when checkpoints are created (spec.md §4.6).
type Strategy string

const (
	StrategyEvent    Strategy = "event"
	StrategyInterval Strategy = "interval"
	StrategyHybrid   Strategy = "hybrid"
)

// Config configures the Checkpoint Store's behavior. Mirrors the
// koanf-decoded `checkpoint:` section of the top-level configuration.
type Config struct {
	Enabled        bool           `koanf:"enabled"`
	Strategy       Strategy       `koanf:"strategy"`
	Interval       int            `koanf:"interval"`
	BeforeRiskyOps bool           `koanf:"before_risky_ops"`
	Recovery       RecoveryConfig `koanf:"recovery"`
}

// RecoveryConfig configures SessionCheckpoint recovery.
type RecoveryConfig struct {
	AutoResume bool `koanf:"auto_resume"`
	MaxAgeDays int  `koanf:"max_age_days"`
}

// SetDefaults fills zero-valued fields with spec.md defaults.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyHybrid
	}
	if c.Interval == 0 {
		c.Interval = 5
	}
	if c.Recovery.MaxAgeDays == 0 {
		c.Recovery.MaxAgeDays = 7
	}
}
