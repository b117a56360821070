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

package executor

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/loopforge/autocore/pkg/rollback"
)

// CommandTestRunner shells out to a configured test command (e.g. "go
// test ./..." or "pytest") and parses a "N passed, M failed" summary
// line out of its combined output.
type CommandTestRunner struct {
	Command []string
	Timeout time.Duration
}

var passFailRE = regexp.MustCompile(`(\d+)\s+passed.*?(\d+)\s+failed|(\d+)\s+failed.*?(\d+)\s+passed`)

// RunTests executes the configured command in workingDir.
func (r CommandTestRunner) RunTests(ctx context.Context, workingDir string) (rollback.TestResult, string, error) {
	if len(r.Command) == 0 {
		return rollback.TestResult{}, "", nil
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.Command[0], r.Command[1:]...)
	cmd.Dir = workingDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	runErr := cmd.Run()

	result := parseTestSummary(buf.String())
	if runErr != nil && result.Total == 0 {
		result = rollback.TestResult{Total: 1, Failed: 1}
	}
	return result, buf.String(), nil
}

func parseTestSummary(output string) rollback.TestResult {
	m := passFailRE.FindStringSubmatch(output)
	if m == nil {
		return rollback.TestResult{}
	}
	var passed, failed int
	if m[1] != "" {
		passed, _ = strconv.Atoi(m[1])
		failed, _ = strconv.Atoi(m[2])
	} else {
		failed, _ = strconv.Atoi(m[3])
		passed, _ = strconv.Atoi(m[4])
	}
	return rollback.TestResult{Total: passed + failed, Failed: failed}
}

// CommandVerifier runs a type-check command, a lint command, and a
// coverage command (each optional), assembling a VerificationResult.
type CommandVerifier struct {
	TypecheckCommand []string
	LintCommand      []string
	CoverageCommand  []string
	Timeout          time.Duration
}

var coverageRE = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// RunVerification runs the configured sub-steps in workingDir.
func (v CommandVerifier) RunVerification(ctx context.Context, workingDir string, coverageThreshold float64) (VerificationResult, error) {
	result := VerificationResult{Success: true, TypecheckOK: true, LintOK: true}

	if len(v.TypecheckCommand) > 0 {
		out, err := v.run(ctx, workingDir, v.TypecheckCommand)
		if err != nil {
			result.TypecheckOK = false
			result.Success = false
			result.Issues = append(result.Issues, "typecheck: "+out)
		}
	}

	if len(v.LintCommand) > 0 {
		out, err := v.run(ctx, workingDir, v.LintCommand)
		if err != nil {
			result.LintOK = false
			result.Success = false
			result.Issues = append(result.Issues, "lint: "+out)
		}
	}

	if len(v.CoverageCommand) > 0 {
		out, _ := v.run(ctx, workingDir, v.CoverageCommand)
		if m := coverageRE.FindStringSubmatch(out); m != nil {
			pct, _ := strconv.ParseFloat(m[1], 64)
			result.CoveragePercent = pct
			if coverageThreshold > 0 && pct < coverageThreshold {
				result.Success = false
				result.Issues = append(result.Issues, "coverage below threshold")
			}
		}
	}

	return result, nil
}

func (v CommandVerifier) run(ctx context.Context, workingDir string, command []string) (string, error) {
	timeout := v.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, command[0], command[1:]...)
	cmd.Dir = workingDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
