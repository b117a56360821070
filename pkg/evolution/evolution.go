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

// Package evolution implements the Evolution Loop (C10): a five-step
// solver attempted in order — resource retrieval, knowledge search,
// tool discovery, dynamic generation, sedimentation — with the first
// success short-circuiting the remaining steps.
package evolution

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/knowledge"
	"github.com/loopforge/autocore/pkg/sandbox"
)

// Problem is the input to a single Evolution Loop run (spec.md §4.9).
type Problem struct {
	SessionID   string
	Description string
	Error       string
	Technology  string
	WorkingDir  string
	// Confidence is the caller's prior confidence that the problem can
	// be solved without external reference material. Below
	// webSearchThreshold, Solve queries the WebFetcher first.
	Confidence float64
}

// DynamicTool is a learned, reusable solution to a class of problem.
// A newly learned tool starts Quarantined and is not eligible for
// tryExistingTool selection (bestTool) until ReviewQuarantinedTools
// has re-executed it successfully quarantineTrialThreshold times.
type DynamicTool struct {
	Name        string
	Language    string
	Code        string
	Similarity  func(description string) float64
	Uses        int
	Successes   int
	TotalMs     int64
	Quarantined bool
	Trials      int
}

// Result is the Evolution Loop's return value.
type Result struct {
	Solved        bool
	Solution      string
	Attempts      int
	KnowledgeID   string
	LearnedToolID string
	UsedToolID    string
	Duration      time.Duration
	Summary       string
}

// WebFetcher retrieves trusted documentation/community content for a
// technology, already passed through a cache by the caller.
type WebFetcher interface {
	Fetch(ctx context.Context, technology, query string) (content string, err error)
}

// CodeGenerator generates code from a problem description, error,
// web context, and prior failed attempts.
type CodeGenerator interface {
	Generate(ctx context.Context, problem Problem, webContext string, priorAttempts []string) (language, code string, err error)
}

const (
	webSearchThreshold      = 0.4
	knowledgeRelevanceGate  = 0.8
	toolSimilarityThreshold = 0.5
	maxGeneratedAttempts    = 3

	// minGeneratedLines, maxGeneratedLines, and functionConstructRE
	// implement the DynamicTool learning gate (spec.md §3, §4.9 step
	// 5b): generated code must be 5-500 non-empty lines and contain at
	// least one function-like construct before it is registered.
	minGeneratedLines = 5
	maxGeneratedLines = 500

	// quarantineTrialThreshold is N in SPEC_FULL.md §12's dynamic tool
	// quarantine: a learned tool needs this many successful direct
	// re-executions from ReviewQuarantinedTools before bestTool will
	// select it.
	quarantineTrialThreshold = 3
)

var functionConstructRE = regexp.MustCompile(`\b(func|function|def|fn)\b`)

// passesQualityGate reports whether generated code is eligible to be
// learned as a DynamicTool.
func passesQualityGate(code string) bool {
	nonEmpty := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}
	if nonEmpty < minGeneratedLines || nonEmpty > maxGeneratedLines {
		return false
	}
	return functionConstructRE.MatchString(code)
}

// Loop wires the five solver steps.
type Loop struct {
	web        WebFetcher
	knowledge  *knowledge.Store
	tools      *ToolRegistry
	sandboxRun *sandbox.Runner
	generator  CodeGenerator
	bus        collab.EventBus
	maxRetries int
}

// New constructs an Evolution Loop. web and generator may be nil: a
// nil web skips resource retrieval, a nil generator skips dynamic
// generation, leaving knowledge search and tool discovery available.
func New(web WebFetcher, knowledgeStore *knowledge.Store, tools *ToolRegistry, sandboxRun *sandbox.Runner, generator CodeGenerator, bus collab.EventBus, maxRetries int) *Loop {
	if maxRetries <= 0 {
		maxRetries = maxGeneratedAttempts
	}
	return &Loop{web: web, knowledge: knowledgeStore, tools: tools, sandboxRun: sandboxRun, generator: generator, bus: bus, maxRetries: maxRetries}
}

// Solve runs the five steps in order, short-circuiting on first
// success (spec.md §4.9).
func (l *Loop) Solve(ctx context.Context, p Problem) (Result, error) {
	start := time.Now()
	var webContext string
	var priorAttempts []string
	attempts := 0

	if l.web != nil && p.Confidence < webSearchThreshold {
		attempts++
		content, err := l.web.Fetch(ctx, p.Technology, p.Description)
		if err == nil {
			webContext = content
		}
	}

	if l.knowledge != nil {
		attempts++
		matches, err := l.knowledge.Search(ctx, p.Description+" "+p.Error, 1)
		if err == nil && len(matches) > 0 {
			best := matches[0]
			relevance := knowledgeRelevance(best, p)
			if relevance > knowledgeRelevanceGate && len(best.Examples) > 0 {
				_ = l.knowledge.IncrementSuccess(ctx, best.ID)
				return l.finish(Result{
					Solved:      true,
					Solution:    best.Examples[0].Code,
					Attempts:    attempts,
					KnowledgeID: best.ID,
					Duration:    time.Since(start),
					Summary:     "reused knowledge entry " + best.ID,
				}), nil
			}
		}
	}

	if l.tools != nil && l.sandboxRun != nil {
		attempts++
		if tool, ok := l.bestTool(p); ok {
			execStart := time.Now()
			res, err := l.sandboxRun.Execute(ctx, collab.ExecRequest{Language: tool.Language, Code: tool.Code, WorkingDir: p.WorkingDir, TimeoutMs: sandbox.DefaultTimeoutMs})
			tool.Uses++
			tool.TotalMs += time.Since(execStart).Milliseconds()
			if err == nil && res.ExitCode == 0 {
				tool.Successes++
				return l.finish(Result{
					Solved:     true,
					Solution:   res.Stdout,
					Attempts:   attempts,
					UsedToolID: tool.Name,
					Duration:   time.Since(start),
					Summary:    "reused dynamic tool " + tool.Name,
				}), nil
			}
		}
	}

	if l.generator != nil {
		for i := 0; i < l.maxRetries; i++ {
			attempts++
			language, code, err := l.generator.Generate(ctx, p, webContext, priorAttempts)
			if err != nil {
				priorAttempts = append(priorAttempts, err.Error())
				continue
			}

			var execRes collab.ExecResult
			if l.sandboxRun != nil {
				execRes, err = l.sandboxRun.ExecuteWithReflection(ctx, collab.ExecRequest{Language: language, Code: code, WorkingDir: p.WorkingDir, TimeoutMs: sandbox.DefaultTimeoutMs}, l.maxRetries-i)
			}
			if err == nil && execRes.ExitCode == 0 {
				result := l.finish(Result{
					Solved:   true,
					Solution: code,
					Attempts: attempts,
					Duration: time.Since(start),
					Summary:  "generated and executed a new solution",
				}, language, code)
				return result, nil
			}
			priorAttempts = append(priorAttempts, execRes.Stderr)
		}
	}

	return Result{
		Attempts: attempts,
		Duration: time.Since(start),
		Summary:  "no step produced a working solution",
	}, fmt.Errorf("evolution: unsolved after %d attempts", attempts)
}

func knowledgeRelevance(e *knowledge.Entry, p Problem) float64 {
	words := strings.Fields(strings.ToLower(p.Description + " " + p.Error))
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}
	matched := 0
	for _, tag := range e.Tags {
		if wordSet[tag] {
			matched++
		}
	}
	if len(e.Tags) == 0 {
		return 0
	}
	return float64(matched) / float64(len(e.Tags))
}

func (l *Loop) bestTool(p Problem) (*DynamicTool, bool) {
	var best *DynamicTool
	var bestScore float64
	for _, t := range l.tools.List() {
		if t.Quarantined || t.Similarity == nil {
			continue
		}
		score := t.Similarity(p.Description)
		if score >= toolSimilarityThreshold && score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best, best != nil
}

// ReviewQuarantinedTools re-executes every still-quarantined tool
// directly, independent of any problem, and lifts quarantine once a
// tool accumulates quarantineTrialThreshold consecutive successes. A
// failed re-execution resets its trial count rather than ending the
// quarantine outright, so a tool that regresses has to re-earn trust.
func (l *Loop) ReviewQuarantinedTools(ctx context.Context) {
	if l.tools == nil || l.sandboxRun == nil {
		return
	}
	for _, tool := range l.tools.List() {
		if !tool.Quarantined {
			continue
		}
		res, err := l.sandboxRun.Execute(ctx, collab.ExecRequest{
			Language:  tool.Language,
			Code:      tool.Code,
			TimeoutMs: sandbox.DefaultTimeoutMs,
		})
		if err == nil && res.ExitCode == 0 {
			tool.Trials++
			if tool.Trials >= quarantineTrialThreshold {
				tool.Quarantined = false
			}
			continue
		}
		tool.Trials = 0
	}
}

// finish performs the sedimentation step on a successful Result
// (step 5): inserting or merging a KnowledgeEntry, and registering a
// DynamicTool when called with a language/code pair.
func (l *Loop) finish(r Result, generatedLangCode ...string) Result {
	if l.knowledge != nil {
		sedCtx := knowledge.Context{
			Problem:  r.Summary,
			Solution: r.Solution,
		}
		if len(generatedLangCode) == 2 {
			sedCtx.Examples = []knowledge.CodeExample{{Language: generatedLangCode[0], Code: generatedLangCode[1]}}
		}
		entry, err := l.knowledge.Sediment(context.Background(), sedCtx)
		if err == nil {
			r.KnowledgeID = entry.ID
		}
	}

	if len(generatedLangCode) == 2 && l.tools != nil {
		language, code := generatedLangCode[0], generatedLangCode[1]
		if passesQualityGate(code) {
			name := fmt.Sprintf("learned-%d", time.Now().UnixNano())
			tool := &DynamicTool{Name: name, Language: language, Code: code, Successes: 1, Uses: 1, Quarantined: true}
			if err := l.tools.Register(name, tool); err == nil {
				r.LearnedToolID = name
			}
		}
	}
	return r
}
