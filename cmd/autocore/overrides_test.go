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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/config"
)

func TestApplyOverrides_SetsDottedPath(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()

	err := applyOverrides(cfg, []string{
		"session.unattended=true",
		"session.max_concurrent_tasks=5",
		"storage.driver=mysql",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Session.Unattended)
	assert.Equal(t, 5, cfg.Session.MaxConcurrentTasks)
	assert.Equal(t, "mysql", cfg.Storage.Driver)
}

func TestApplyOverrides_RejectsMalformedEntry(t *testing.T) {
	cfg := &config.Config{}
	err := applyOverrides(cfg, []string{"no-equals-sign"})
	assert.Error(t, err)
}

func TestApplyOverrides_NoOpWhenEmpty(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	before := *cfg
	require.NoError(t, applyOverrides(cfg, nil))
	assert.Equal(t, before, *cfg)
}
