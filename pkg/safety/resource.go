// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 The autocore Authors
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package safety implements the Safety Core (C5): a resource guard, a
// behavioral loop detector, and a destructive-operation gate, combined
// into a single checkSafety verdict.
package safety

import (
	"context"
	"sync"
	"time"

	"github.com/loopforge/autocore/pkg/collab"
)

// ResourceUsage tracks consumption against ResourceBudget (spec.md §3).
type ResourceUsage struct {
	TokensUsed       int
	Cost             float64
	ElapsedMinutes   float64
	FilesChanged     int
	ActionsPerformed int
}

// ResourceBudget is the maxima for each usage axis.
type ResourceBudget struct {
	MaxTokens           int     `koanf:"max_tokens"`
	MaxCost             float64 `koanf:"max_cost"`
	MaxElapsedMinutes   float64 `koanf:"max_elapsed_minutes"`
	MaxFilesChanged     int     `koanf:"max_files_changed"`
	MaxActionsPerformed int     `koanf:"max_actions_performed"`
}

// DefaultWarnThreshold is the fraction of budget that triggers a
// one-shot resource.warning event per axis (spec.md §4.5(a)).
const DefaultWarnThreshold = 0.8

// ResourceGuard tracks usage against a budget and emits warning /
// exceeded events.
type ResourceGuard struct {
	mu            sync.Mutex
	sessionID     string
	bus           collab.EventBus
	budget        ResourceBudget
	usage         ResourceUsage
	warnThreshold float64
	warned        map[string]bool
	sessionStart  time.Time
}

// NewResourceGuard constructs a guard for one session.
func NewResourceGuard(sessionID string, bus collab.EventBus, budget ResourceBudget) *ResourceGuard {
	return &ResourceGuard{
		sessionID:     sessionID,
		bus:           bus,
		budget:        budget,
		warnThreshold: DefaultWarnThreshold,
		warned:        make(map[string]bool),
		sessionStart:  time.Now(),
	}
}

// Record adds delta to the running usage.
func (g *ResourceGuard) Record(delta ResourceUsage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage.TokensUsed += delta.TokensUsed
	g.usage.Cost += delta.Cost
	g.usage.FilesChanged += delta.FilesChanged
	g.usage.ActionsPerformed += delta.ActionsPerformed
}

// axisCheck is one (name, used, limit) triple evaluated by Check.
type axisCheck struct {
	name  string
	used  float64
	limit float64
}

// Check updates elapsed minutes, evaluates every axis against its
// limit, emits resource.warning on first crossing of warnThreshold per
// axis, and reports whether any axis is at or past its limit (spec.md
// §4.5(a)).
func (g *ResourceGuard) Check(ctx context.Context) (exceeded bool, exceededAxis string) {
	g.mu.Lock()
	g.usage.ElapsedMinutes = time.Since(g.sessionStart).Minutes()

	axes := []axisCheck{
		{"tokens", float64(g.usage.TokensUsed), float64(g.budget.MaxTokens)},
		{"cost", g.usage.Cost, g.budget.MaxCost},
		{"elapsed_minutes", g.usage.ElapsedMinutes, g.budget.MaxElapsedMinutes},
		{"files_changed", float64(g.usage.FilesChanged), float64(g.budget.MaxFilesChanged)},
		{"actions_performed", float64(g.usage.ActionsPerformed), float64(g.budget.MaxActionsPerformed)},
	}

	var toWarn []axisCheck
	for _, a := range axes {
		if a.limit <= 0 {
			continue
		}
		if a.used >= a.limit {
			exceeded = true
			exceededAxis = a.name
		} else if a.used/a.limit >= g.warnThreshold && !g.warned[a.name] {
			g.warned[a.name] = true
			toWarn = append(toWarn, a)
		}
	}
	usageSnapshot := g.usage
	g.mu.Unlock()

	for _, a := range toWarn {
		g.bus.Publish(ctx, collab.EventResourceWarning, collab.Payload{
			SessionID: g.sessionID,
			Fields:    map[string]any{"axis": a.name, "used": a.used, "limit": a.limit},
		})
	}
	if exceeded {
		g.bus.Publish(ctx, collab.EventResourceExceeded, collab.Payload{
			SessionID: g.sessionID,
			Fields: map[string]any{
				"axis": exceededAxis, "usage": usageSnapshot,
			},
		})
	}

	return exceeded, exceededAxis
}

// SurplusRatio is the mean of remaining/limit across axes, in [0,1]
// (spec.md §3).
func (g *ResourceGuard) SurplusRatio() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	axes := []axisCheck{
		{"tokens", float64(g.usage.TokensUsed), float64(g.budget.MaxTokens)},
		{"cost", g.usage.Cost, g.budget.MaxCost},
		{"elapsed_minutes", g.usage.ElapsedMinutes, g.budget.MaxElapsedMinutes},
		{"files_changed", float64(g.usage.FilesChanged), float64(g.budget.MaxFilesChanged)},
		{"actions_performed", float64(g.usage.ActionsPerformed), float64(g.budget.MaxActionsPerformed)},
	}

	var sum float64
	var n int
	for _, a := range axes {
		if a.limit <= 0 {
			continue
		}
		remaining := (a.limit - a.used) / a.limit
		if remaining < 0 {
			remaining = 0
		}
		sum += remaining
		n++
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}
