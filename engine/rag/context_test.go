package rag

import (
	"strings"
	"testing"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/semantic"
)

func engineWithBudget(budget int) *Engine {
	opts := DefaultOptions("org/repo")
	opts.MaxContextLength = budget
	return New(&mockEmbedder{}, &mockSearcher{}, &mockGenerator{}, opts, nil)
}

func TestBuildContext_Empty(t *testing.T) {
	e := engineWithBudget(1000)
	if got := e.BuildContext(nil); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestBuildContext_HeadersPerType(t *testing.T) {
	e := engineWithBudget(10_000)
	results := []semantic.SearchResult{
		{Content: "code body", Collection: domain.CollectionCode, Score: 0.91,
			Meta: domain.CodeMeta{FilePath: "pkg/x.go", Language: "go"}},
		{Content: "issue body", Collection: domain.CollectionIssue, Score: 0.82,
			Meta: domain.IssueMeta{IssueNumber: 4, Title: "flaky test", State: "open"}},
		{Content: "pr body", Collection: domain.CollectionPullRequest, Score: 0.75,
			Meta: domain.PullRequestMeta{PRNumber: 9, Title: "fix it", Merged: true}},
		{Content: "commit body", Collection: domain.CollectionCommit, Score: 0.6,
			Meta: domain.CommitMeta{SHA: "abc123", Message: "tighten bounds"}},
	}
	got := e.BuildContext(results)

	for _, want := range []string{
		"[Source 1 | code | relevance: 0.9100]",
		"File: pkg/x.go (Language: go)",
		"[Source 2 | issue | relevance: 0.8200]",
		"Issue #4: flaky test (State: open)",
		"PR #9: fix it (Status: Merged)",
		"Commit abc123: tighten bounds",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q", want)
		}
	}
	if strings.Count(got, sectionSeparator) != 3 {
		t.Fatalf("expected 3 separators between 4 sections")
	}
}

func TestBuildContext_BudgetBound(t *testing.T) {
	e := engineWithBudget(600)
	results := []semantic.SearchResult{
		{Content: strings.Repeat("a", 400), Collection: domain.CollectionCode, Score: 0.9, Meta: domain.CodeMeta{FilePath: "a.go"}},
		{Content: strings.Repeat("b", 400), Collection: domain.CollectionCode, Score: 0.8, Meta: domain.CodeMeta{FilePath: "b.go"}},
		{Content: strings.Repeat("c", 400), Collection: domain.CollectionCode, Score: 0.7, Meta: domain.CodeMeta{FilePath: "c.go"}},
	}
	got := e.BuildContext(results)

	if len(got) > 600+len(truncationMarker) {
		t.Fatalf("context exceeds budget: %d chars", len(got))
	}
	if strings.Contains(got, "c.go") {
		t.Fatal("sections past the budget must be dropped")
	}
}

func TestBuildContext_SeparatorsCountAgainstBudget(t *testing.T) {
	results := []semantic.SearchResult{
		{Content: strings.Repeat("a", 400), Collection: domain.CollectionCode, Score: 0.9, Meta: domain.CodeMeta{FilePath: "a.go"}},
		{Content: strings.Repeat("b", 400), Collection: domain.CollectionCode, Score: 0.8, Meta: domain.CodeMeta{FilePath: "b.go"}},
	}
	sectionLen := len(sectionHeader(1, results[0]) + "\n" + results[0].Content)

	// Room for both sections but not for the joining separator.
	budget := 2*sectionLen + len(sectionSeparator) - 1
	e := engineWithBudget(budget)
	got := e.BuildContext(results)

	if len(got) > budget {
		t.Fatalf("context length %d exceeds limit %d", len(got), budget)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatal("second section should be cut, not kept whole")
	}
}

func TestBuildContext_TruncatesFinalSection(t *testing.T) {
	e := engineWithBudget(800)
	results := []semantic.SearchResult{
		{Content: strings.Repeat("a", 300), Collection: domain.CollectionCode, Score: 0.9, Meta: domain.CodeMeta{FilePath: "a.go"}},
		{Content: strings.Repeat("b", 600), Collection: domain.CollectionCode, Score: 0.8, Meta: domain.CodeMeta{FilePath: "b.go"}},
	}
	got := e.BuildContext(results)
	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatalf("expected truncation marker, got tail %q", got[len(got)-30:])
	}
	if !strings.Contains(got, "b.go") {
		t.Fatal("cut section should still carry its header")
	}
}

func TestBuildContext_DropsTinyRemainder(t *testing.T) {
	e := engineWithBudget(500)
	results := []semantic.SearchResult{
		{Content: strings.Repeat("a", 400), Collection: domain.CollectionCode, Score: 0.9, Meta: domain.CodeMeta{FilePath: "a.go"}},
		{Content: strings.Repeat("b", 400), Collection: domain.CollectionCode, Score: 0.8, Meta: domain.CodeMeta{FilePath: "b.go"}},
	}
	got := e.BuildContext(results)
	// Remaining budget after the first section is too small to be worth a
	// truncated second section.
	if strings.Contains(got, "b.go") {
		t.Fatal("tiny remainder should be dropped, not truncated")
	}
	if strings.Contains(got, truncationMarker) {
		t.Fatal("no truncation marker expected")
	}
}

func TestBuildPrompt(t *testing.T) {
	withCtx := BuildPrompt("how does retry work?", "some context")
	if !strings.Contains(withCtx, "## Context:\nsome context") {
		t.Fatal("context block missing")
	}
	if !strings.Contains(withCtx, "## Question:\nhow does retry work?") {
		t.Fatal("question missing")
	}
	if !strings.HasSuffix(withCtx, "## Answer:") {
		t.Fatal("prompt must end with the answer cue")
	}

	without := BuildPrompt("how does retry work?", "")
	if !strings.Contains(without, "No relevant context was found") {
		t.Fatal("no-context variant missing")
	}
}

func TestBuildSources(t *testing.T) {
	results := []semantic.SearchResult{
		{Collection: domain.CollectionCommit, Score: 0.7,
			Meta: domain.CommitMeta{SHA: "abc", Message: "msg"}},
		{Collection: domain.CollectionIssue, Score: 0.6,
			Meta: domain.IssueMeta{IssueNumber: 11, Title: "bug"}},
	}
	sources := buildSources(results)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].SHA != "abc" || sources[0].Message != "msg" {
		t.Fatalf("commit source wrong: %+v", sources[0])
	}
	if sources[1].IssueNumber != 11 || sources[1].Title != "bug" {
		t.Fatalf("issue source wrong: %+v", sources[1])
	}
}
