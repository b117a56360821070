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

// Package knowledge implements the Knowledge Store (C11): a
// persistent set of KnowledgeEntries sedimented from solved problems,
// searchable by tag/content overlap.
package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loopforge/autocore/pkg/collab"
)

// CodeExample is one code snippet attached to a KnowledgeEntry.
type CodeExample struct {
	Language string
	Code     string
	Source   string
}

// Entry is a persisted unit of learned problem-solving knowledge
// (spec.md §4.10).
type Entry struct {
	ID           string
	Title        string
	Tags         []string
	Content      string
	Examples     []CodeExample
	SuccessCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Context is the material sediment() extracts an Entry from.
type Context struct {
	Problem    string
	ErrorType  string
	Category   string
	Technology string
	Solution   string
	Steps      []string
	Reflection string
	Sources    []string
	Examples   []CodeExample
}

const (
	maxTags           = 10
	similarityMergeAt = 0.9
	searchScoreFloor  = 0.2
)

// Store persists Entries through a collab.KVStore.
type Store struct {
	kv collab.KVStore
}

// NewStore wraps a KVStore for knowledge persistence.
func NewStore(kv collab.KVStore) *Store {
	return &Store{kv: kv}
}

func entryKey(id string) []string { return []string{"autonomous", "knowledge", id} }

func (s *Store) all(ctx context.Context) ([]*Entry, error) {
	keys, err := s.kv.List(ctx, []string{"autonomous", "knowledge"})
	if err != nil {
		return nil, fmt.Errorf("knowledge: list: %w", err)
	}
	var entries []*Entry
	for _, k := range keys {
		var e Entry
		if err := s.kv.Read(ctx, k, &e); err != nil || e.ID == "" {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

var wordRE = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_]{2,}`)

func keywords(text string) []string {
	matches := wordRE.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]bool)
	var out []string
	for _, w := range matches {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// extractTitle derives a title from the error type when present,
// otherwise from the category and a truncated problem statement.
func extractTitle(ctx Context) string {
	if ctx.ErrorType != "" {
		return ctx.ErrorType
	}
	category := ctx.Category
	if category == "" {
		category = "general"
	}
	return category + ": " + truncate(ctx.Problem, 60)
}

// extractTags gathers technology, top problem/error/solution keywords,
// capped at maxTags.
func extractTags(ctx Context) []string {
	var tags []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}

	add(strings.ToLower(ctx.Technology))
	for _, src := range []string{ctx.Problem, ctx.ErrorType, ctx.Solution} {
		for _, kw := range keywords(src) {
			if len(tags) >= maxTags {
				break
			}
			add(kw)
		}
	}
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

// assembleContent builds the entry body from the Problem/Error/
// Solution/Steps/Reflection/Sources sections present in ctx.
func assembleContent(ctx Context) string {
	var b strings.Builder
	section := func(name, body string) {
		if body == "" {
			return
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", name, body)
	}
	section("Problem", ctx.Problem)
	section("Error", ctx.ErrorType)
	section("Solution", ctx.Solution)
	if len(ctx.Steps) > 0 {
		section("Steps", strings.Join(ctx.Steps, "\n"))
	}
	section("Reflection", ctx.Reflection)
	if len(ctx.Sources) > 0 {
		section("Sources", strings.Join(ctx.Sources, "\n"))
	}
	return strings.TrimSpace(b.String())
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]bool, len(a))
	for _, w := range a {
		setA[w] = true
	}
	setB := make(map[string]bool, len(b))
	for _, w := range b {
		setB[w] = true
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// FindSimilar scores every entry against a candidate title/tags pair
// using the weighted Jaccard formula (tags 0.6, title words 0.4) and
// returns the best match, if any.
func (s *Store) FindSimilar(ctx context.Context, title string, tags []string) (*Entry, float64, error) {
	entries, err := s.all(ctx)
	if err != nil {
		return nil, 0, err
	}

	var best *Entry
	var bestScore float64
	titleWords := keywords(title)
	for _, e := range entries {
		score := 0.6*jaccard(tags, e.Tags) + 0.4*jaccard(titleWords, keywords(e.Title))
		if score > bestScore {
			bestScore = score
			best = e
		}
	}
	return best, bestScore, nil
}

// mergeExamples unions incoming into existing, keyed on (Language,
// Code), so re-sedimenting an already-known example does not
// duplicate it (spec.md Invariant 5, §4.10 "union code examples").
func mergeExamples(existing, incoming []CodeExample) []CodeExample {
	seen := make(map[CodeExample]bool, len(existing))
	for _, ex := range existing {
		seen[CodeExample{Language: ex.Language, Code: ex.Code}] = true
	}
	merged := existing
	for _, ex := range incoming {
		key := CodeExample{Language: ex.Language, Code: ex.Code}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, ex)
	}
	return merged
}

// Sediment extracts an Entry from ctx, merging it into a sufficiently
// similar existing entry (score > 0.9) rather than inserting a
// duplicate (spec.md §4.10).
func (s *Store) Sediment(ctx context.Context, sctx Context) (*Entry, error) {
	title := extractTitle(sctx)
	tags := extractTags(sctx)
	content := assembleContent(sctx)

	similar, score, err := s.FindSimilar(ctx, title, tags)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if similar != nil && score > similarityMergeAt {
		similar.Examples = mergeExamples(similar.Examples, sctx.Examples)
		similar.SuccessCount++
		similar.UpdatedAt = now
		if err := s.kv.Write(ctx, entryKey(similar.ID), similar); err != nil {
			return nil, fmt.Errorf("knowledge: merge %s: %w", similar.ID, err)
		}
		return similar, nil
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		Title:     title,
		Tags:      tags,
		Content:   content,
		Examples:  sctx.Examples,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.kv.Write(ctx, entryKey(entry.ID), entry); err != nil {
		return nil, fmt.Errorf("knowledge: insert %s: %w", entry.ID, err)
	}
	return entry, nil
}

// scoredEntry pairs an Entry with its Search score, for sorting.
type scoredEntry struct {
	entry *Entry
	score float64
}

// Search scores every entry as 0.5·tag-match + 0.5·content-match +
// min(successCount/10, 0.2), returning the top k entries scoring
// above 0.2, sorted descending (spec.md §4.10).
func (s *Store) Search(ctx context.Context, query string, k int) ([]*Entry, error) {
	entries, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	queryWords := keywords(query)
	var scored []scoredEntry
	for _, e := range entries {
		tagScore := jaccard(queryWords, e.Tags)
		contentScore := jaccard(queryWords, keywords(e.Content))
		bonus := float64(e.SuccessCount) / 10
		if bonus > 0.2 {
			bonus = 0.2
		}
		score := 0.5*tagScore + 0.5*contentScore + bonus
		if score > searchScoreFloor {
			scored = append(scored, scoredEntry{entry: e, score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}

	out := make([]*Entry, len(scored))
	for i, s := range scored {
		out[i] = s.entry
	}
	return out, nil
}

// IncrementSuccess bumps an entry's success count, used when the
// Evolution Loop reuses an existing entry successfully.
func (s *Store) IncrementSuccess(ctx context.Context, id string) error {
	var e Entry
	if err := s.kv.Read(ctx, entryKey(id), &e); err != nil {
		return fmt.Errorf("knowledge: read %s: %w", id, err)
	}
	if e.ID == "" {
		return fmt.Errorf("knowledge: entry %s not found", id)
	}
	e.SuccessCount++
	e.UpdatedAt = time.Now()
	return s.kv.Write(ctx, entryKey(id), &e)
}
