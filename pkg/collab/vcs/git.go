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

// Package vcs implements collab.VCSDriver by shelling out to the git
// binary, the way the teacher's self-development tooling drives git
// for autonomous commits.
package vcs

import (
	"context"
	"os/exec"
	"strings"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

// GitDriver is a collab.VCSDriver backed by the git CLI.
type GitDriver struct {
	WorkingDir  string
	AuthorName  string
	AuthorEmail string
}

// NewGitDriver returns a driver rooted at workingDir.
func NewGitDriver(workingDir string) *GitDriver {
	return &GitDriver{
		WorkingDir:  workingDir,
		AuthorName:  "autocore",
		AuthorEmail: "autocore@localhost",
	}
}

func (g *GitDriver) run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.WorkingDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), &corerr.VCSFailureError{Op: op, Cause: err}
	}
	return string(out), nil
}

// GetStatus reports the working tree's cleanliness, changed files,
// current commit, and current branch.
func (g *GitDriver) GetStatus(ctx context.Context) (collab.VCSStatus, error) {
	out, err := g.run(ctx, "status", "status", "--porcelain")
	if err != nil {
		return collab.VCSStatus{}, err
	}

	var changed []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		changed = append(changed, fields[len(fields)-1])
	}

	commit, err := g.GetCurrentCommit(ctx)
	if err != nil {
		return collab.VCSStatus{}, err
	}

	branchOut, err := g.run(ctx, "current branch", "branch", "--show-current")
	if err != nil {
		return collab.VCSStatus{}, err
	}

	return collab.VCSStatus{
		Clean:         len(changed) == 0,
		ChangedFiles:  changed,
		CurrentCommit: commit,
		CurrentBranch: strings.TrimSpace(branchOut),
	}, nil
}

// CreateCommit stages (optionally) and commits, returning the new
// commit hash.
func (g *GitDriver) CreateCommit(ctx context.Context, message string, opts collab.CommitOptions) (string, error) {
	if opts.AddAll {
		if _, err := g.run(ctx, "stage", "add", "."); err != nil {
			return "", err
		}
	}

	args := []string{"commit", "-m", message,
		"--author", g.AuthorName + " <" + g.AuthorEmail + ">"}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if _, err := g.run(ctx, "commit", args...); err != nil {
		return "", err
	}
	return g.GetCurrentCommit(ctx)
}

// ResetToCommit resets the working tree to hash.
func (g *GitDriver) ResetToCommit(ctx context.Context, hash string, hard bool) error {
	mode := "--mixed"
	if hard {
		mode = "--hard"
	}
	_, err := g.run(ctx, "reset", "reset", mode, hash)
	return err
}

// GetCurrentCommit returns HEAD's full hash.
func (g *GitDriver) GetCurrentCommit(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (g *GitDriver) IsClean(ctx context.Context) (bool, error) {
	status, err := g.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return status.Clean, nil
}

// Stash shelves uncommitted changes.
func (g *GitDriver) Stash(ctx context.Context) error {
	_, err := g.run(ctx, "stash", "stash", "push", "--include-untracked")
	return err
}

// Unstash restores the most recently shelved changes.
func (g *GitDriver) Unstash(ctx context.Context) error {
	_, err := g.run(ctx, "stash pop", "stash", "pop")
	return err
}
