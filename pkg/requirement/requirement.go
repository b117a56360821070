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

// Package requirement implements the Requirement Tracker (C4):
// parsing explicit requirements out of a free-text request, deriving
// default acceptance criteria, flagging implicit requirements, and
// computing status from criteria outcomes.
package requirement

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Status is a requirement's derived lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Priority ranks a requirement's importance.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Source distinguishes requirements parsed from the original request
// from ones discovered mid-session.
type Source string

const (
	SourceOriginal Source = "original"
	SourceDerived  Source = "derived"
)

// CriterionStatus is an acceptance criterion's outcome.
type CriterionStatus string

const (
	CriterionPending CriterionStatus = "pending"
	CriterionPassed  CriterionStatus = "passed"
	CriterionFailed  CriterionStatus = "failed"
)

// Criterion is one ordered acceptance check for a Requirement.
type Criterion struct {
	ID          string
	Description string
	Status      CriterionStatus
}

// Requirement is a single tracked obligation (spec.md §3).
type Requirement struct {
	ID                 string
	Description        string
	Status             Status
	Priority           Priority
	AcceptanceCriteria []Criterion
	DependencyIDs      []string
	Source             Source
}

// priorityPattern pairs a keyword regex with the priority it implies
// (spec.md §4.4).
type priorityPattern struct {
	re       *regexp.Regexp
	priority Priority
}

var priorityPatterns = []priorityPattern{
	{regexp.MustCompile(`(?i)\b(must|shall)\b`), PriorityCritical},
	{regexp.MustCompile(`(?i)\bshould\b`), PriorityHigh},
	{regexp.MustCompile(`(?i)\b(could|nice[- ]to[- ]have)\b`), PriorityMedium},
	{regexp.MustCompile(`(?i)\b(might|optional)\b`), PriorityLow},
}

// implicitKeywords maps a keyword family to the implicit requirement
// description it surfaces.
var implicitKeywords = map[string][]string{
	"test coverage":  {"test", "tests", "coverage", "spec"},
	"error handling": {"error", "exception", "failure", "recover"},
	"documentation":  {"document", "docs", "readme", "comment"},
}

func splitSentences(text string) []string {
	raw := regexp.MustCompile(`[.\n]+`).Split(text, -1)
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func defaultCriteria() []Criterion {
	return []Criterion{
		{ID: uuid.NewString(), Description: "implementation matches description", Status: CriterionPending},
		{ID: uuid.NewString(), Description: "code follows style", Status: CriterionPending},
		{ID: uuid.NewString(), Description: "tests cover the functionality", Status: CriterionPending},
	}
}

// ParseRequirements extracts explicit requirements from text by
// priority-tagged keyword patterns. If no sentence matches a pattern,
// the whole request becomes a single high-priority requirement
// (spec.md §4.4).
func ParseRequirements(text string) []Requirement {
	var reqs []Requirement

	for _, sentence := range splitSentences(text) {
		priority, matched := classifySentence(sentence)
		if !matched {
			continue
		}
		reqs = append(reqs, Requirement{
			ID:                 uuid.NewString(),
			Description:        sentence,
			Status:             StatusPending,
			Priority:           priority,
			AcceptanceCriteria: defaultCriteria(),
			Source:             SourceOriginal,
		})
	}

	if len(reqs) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" {
			reqs = append(reqs, Requirement{
				ID:                 uuid.NewString(),
				Description:        trimmed,
				Status:             StatusPending,
				Priority:           PriorityHigh,
				AcceptanceCriteria: defaultCriteria(),
				Source:             SourceOriginal,
			})
		}
	}

	return reqs
}

func classifySentence(sentence string) (Priority, bool) {
	for _, p := range priorityPatterns {
		if p.re.MatchString(sentence) {
			return p.priority, true
		}
	}
	return "", false
}

// DetectImplicitRequirements returns, informationally, the implicit
// requirement families (test coverage, error handling, documentation)
// whose keywords appear in text. These are never added to the tracked
// requirement list directly.
func DetectImplicitRequirements(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for label, keywords := range implicitKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				found = append(found, label)
				break
			}
		}
	}
	return found
}

// AddDerivedRequirement appends a mid-session discovery to reqs.
func AddDerivedRequirement(reqs []Requirement, description string, priority Priority) []Requirement {
	return append(reqs, Requirement{
		ID:                 uuid.NewString(),
		Description:        description,
		Status:             StatusPending,
		Priority:           priority,
		AcceptanceCriteria: defaultCriteria(),
		Source:             SourceDerived,
	})
}

// DeriveStatus computes a requirement's status from its acceptance
// criteria: completed iff every criterion passed; blocked iff any
// failed; else in_progress if any passed; else pending (spec.md §3).
func DeriveStatus(criteria []Criterion) Status {
	if len(criteria) == 0 {
		return StatusPending
	}

	allPassed := true
	anyFailed := false
	anyPassed := false
	for _, c := range criteria {
		switch c.Status {
		case CriterionPassed:
			anyPassed = true
		case CriterionFailed:
			anyFailed = true
			allPassed = false
		default:
			allPassed = false
		}
	}

	switch {
	case allPassed:
		return StatusCompleted
	case anyFailed:
		return StatusBlocked
	case anyPassed:
		return StatusInProgress
	default:
		return StatusPending
	}
}
