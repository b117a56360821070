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

// Package schema generates the JSON Schemas each fixed agent persona
// must produce structured output against (spec.md §6: "Structured
// outputs are validated against per-agent schemas").
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/loopforge/autocore/pkg/collab"
)

// CodeReviewOutput is the structured output of the code-reviewer
// and security-reviewer agents.
type CodeReviewOutput struct {
	Approved bool     `json:"approved" jsonschema:"required,description=Whether the change is acceptable"`
	Issues   []string `json:"issues,omitempty" jsonschema:"description=Concrete issues found"`
	Severity string   `json:"severity,omitempty" jsonschema:"enum=none|low|medium|high|critical"`
}

// TDDGuideOutput is the structured output of the tdd-guide agent.
type TDDGuideOutput struct {
	Phase      string `json:"phase" jsonschema:"required,enum=red|green|refactor"`
	TestCode   string `json:"test_code,omitempty"`
	Rationale  string `json:"rationale,omitempty"`
	NextAction string `json:"next_action,omitempty"`
}

// ArchitectOutput is the structured output of the architect agent.
type ArchitectOutput struct {
	Plan            string   `json:"plan" jsonschema:"required"`
	RequiredModules []string `json:"required_modules,omitempty"`
	EstimatedEffort string   `json:"estimated_effort,omitempty" jsonschema:"enum=trivial|small|medium|large"`
}

// GeneralOutput is the catch-all structured output for the explore
// and general agents.
type GeneralOutput struct {
	Summary    string         `json:"summary" jsonschema:"required"`
	Findings   []string       `json:"findings,omitempty"`
	Confidence float64        `json:"confidence,omitempty" jsonschema:"minimum=0,maximum=1"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// schemaForAgent maps each fixed agent persona to the Go type its
// structured output must match.
var schemaForAgent = map[collab.AgentName]any{
	collab.AgentCodeReviewer:     CodeReviewOutput{},
	collab.AgentSecurityReviewer: CodeReviewOutput{},
	collab.AgentTDDGuide:         TDDGuideOutput{},
	collab.AgentArchitect:        ArchitectOutput{},
	collab.AgentExplore:          GeneralOutput{},
	collab.AgentGeneral:          GeneralOutput{},
}

var reflector = &jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// ForAgent returns the JSON Schema an agent's structured output must
// validate against.
func ForAgent(agent collab.AgentName) (map[string]any, error) {
	goType, ok := schemaForAgent[agent]
	if !ok {
		return nil, fmt.Errorf("no schema registered for agent %q", agent)
	}

	s := reflector.Reflect(goType)
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", agent, err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", agent, err)
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
