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

// Package decision implements the Decision Engine (C3): the CLOSE
// rubric, weighted-normalized scoring, autonomy-gated thresholds, and
// action selection.
package decision

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/loopforge/autocore/pkg/collab"
)

// AutonomyLevel orders risk tolerance from most to least aggressive
// (spec.md §3).
type AutonomyLevel string

const (
	Lunatic AutonomyLevel = "lunatic"
	Insane  AutonomyLevel = "insane"
	Crazy   AutonomyLevel = "crazy"
	Wild    AutonomyLevel = "wild"
	Bold    AutonomyLevel = "bold"
	Timid   AutonomyLevel = "timid"
)

type thresholds struct{ approval, caution float64 }

var thresholdsByLevel = map[AutonomyLevel]thresholds{
	Lunatic: {5.0, 3.0},
	Insane:  {5.5, 3.5},
	Crazy:   {6.0, 4.0},
	Wild:    {6.5, 4.5},
	Bold:    {7.0, 5.0},
	Timid:   {8.0, 6.0},
}

// weights are the default CLOSE dimension weights (spec.md §4.3).
var weights = map[string]float64{
	"convergence": 1.0,
	"leverage":    1.2,
	"optionality": 1.5,
	"surplus":     1.3,
	"evolution":   0.8,
}

// CLOSEInputs are the five dimension scores, each in [0,10], supplied
// by the caller evaluating a candidate action.
type CLOSEInputs struct {
	Convergence float64
	Leverage    float64
	Optionality float64
	Surplus     float64
	Evolution   float64
}

// CLOSEScore is the scored rubric result.
type CLOSEScore struct {
	Convergence float64
	Leverage    float64
	Optionality float64
	Surplus     float64
	Evolution   float64
	Total       float64
}

// Score computes the weighted-normalized CLOSE total: total =
// ((Σ wᵢ·xᵢ) / (10·Σ wᵢ)) · 10, rounded to two decimals.
func Score(in CLOSEInputs) CLOSEScore {
	sumW := weights["convergence"] + weights["leverage"] + weights["optionality"] + weights["surplus"] + weights["evolution"]
	sumWX := weights["convergence"]*in.Convergence +
		weights["leverage"]*in.Leverage +
		weights["optionality"]*in.Optionality +
		weights["surplus"]*in.Surplus +
		weights["evolution"]*in.Evolution

	total := (sumWX / (10 * sumW)) * 10
	total = math.Round(total*100) / 100

	return CLOSEScore{
		Convergence: in.Convergence,
		Leverage:    in.Leverage,
		Optionality: in.Optionality,
		Surplus:     in.Surplus,
		Evolution:   in.Evolution,
		Total:       total,
	}
}

// Risk is a coarse classification of a candidate action.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Result is the action the Decision Engine recommends.
type Result string

const (
	ResultProceed            Result = "proceed"
	ResultProceedWithCaution Result = "proceed_with_caution"
	ResultPause              Result = "pause"
	ResultBlock              Result = "block"
	ResultSkip               Result = "skip"
)

// DecisionType classifies what kind of action is being evaluated
// (spec.md §3).
type DecisionType string

const (
	TypeArchitecture   DecisionType = "architecture"
	TypeImplementation DecisionType = "implementation"
	TypeRefactor       DecisionType = "refactor"
	TypeBugfix         DecisionType = "bugfix"
	TypeFeature        DecisionType = "feature"
	TypeTest           DecisionType = "test"
	TypeRollback       DecisionType = "rollback"
	TypeCheckpoint     DecisionType = "checkpoint"
	TypeResource       DecisionType = "resource"
	TypeOther          DecisionType = "other"
)

// Decision is the immutable record of one evaluation (spec.md §3).
type Decision struct {
	ID          string
	SessionID   string
	Type        DecisionType
	Description string
	Context     map[string]any
	Score       CLOSEScore
	Result      Result
	Reasoning   string
	Timestamp   time.Time
	Criteria    CLOSEInputs
}

// Engine evaluates candidate actions against the CLOSE rubric.
type Engine struct {
	sessionID string
	bus       collab.EventBus
	autonomy  AutonomyLevel
}

// NewEngine constructs a Decision Engine for one session at the given
// autonomy level.
func NewEngine(sessionID string, bus collab.EventBus, autonomy AutonomyLevel) *Engine {
	return &Engine{sessionID: sessionID, bus: bus, autonomy: autonomy}
}

// Evaluate scores in, selects an action, builds an immutable Decision
// record, and publishes decision.made (spec.md §4.3).
func (e *Engine) Evaluate(ctx context.Context, dtype DecisionType, description string, context_ map[string]any, in CLOSEInputs, risk Risk, recentErrorCount int) Decision {
	score := Score(in)
	th := thresholdsByLevel[e.autonomy]
	if th == (thresholds{}) {
		th = thresholdsByLevel[Bold]
	}

	result := selectAction(score.Total, th, risk, recentErrorCount, e.autonomy)

	d := Decision{
		ID:          uuid.NewString(),
		SessionID:   e.sessionID,
		Type:        dtype,
		Description: description,
		Context:     context_,
		Score:       score,
		Result:      result,
		Reasoning:   reasoningFor(score, th, risk, recentErrorCount, result),
		Timestamp:   time.Now(),
		Criteria:    in,
	}

	e.bus.Publish(ctx, collab.EventDecisionMade, collab.Payload{
		SessionID: e.sessionID,
		Fields: map[string]any{
			"decision_id": d.ID,
			"type":        string(d.Type),
			"result":      string(d.Result),
			"score":       d.Score.Total,
		},
	})
	if result == ResultBlock {
		e.bus.Publish(ctx, collab.EventDecisionBlocked, collab.Payload{
			SessionID: e.sessionID,
			Fields:    map[string]any{"decision_id": d.ID},
		})
	}

	return d
}

func selectAction(total float64, th thresholds, risk Risk, recentErrorCount int, autonomy AutonomyLevel) Result {
	switch {
	case total >= th.approval:
		return ResultProceed
	case total >= th.caution:
		return ResultProceedWithCaution
	case risk == RiskLow && recentErrorCount < 3:
		return ResultProceedWithCaution
	case risk == RiskHigh || recentErrorCount >= 5:
		return ResultPause
	case risk == RiskMedium:
		if autonomy == Timid {
			return ResultBlock
		}
		return ResultPause
	default:
		return ResultSkip
	}
}

func reasoningFor(score CLOSEScore, th thresholds, risk Risk, recentErrorCount int, result Result) string {
	switch result {
	case ResultProceed:
		return "total score meets approval threshold"
	case ResultProceedWithCaution:
		return "total score meets caution threshold or risk is low with few recent errors"
	case ResultPause:
		return "risk or recent error count too high to proceed automatically"
	case ResultBlock:
		return "medium risk action refused at timid autonomy"
	default:
		return "score and risk do not justify proceeding"
	}
}

// Confidence maps a total score to a percentage in [0,100].
func Confidence(total float64) int {
	clamped := total
	if clamped > 10 {
		clamped = 10
	}
	if clamped < 0 {
		clamped = 0
	}
	return int(math.Round(clamped / 10 * 100))
}
