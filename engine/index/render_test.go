package index

import (
	"strings"
	"testing"

	"github.com/repolens-ai/repolens/engine/domain"
)

func TestRenderIssue_CapsComments(t *testing.T) {
	is := domain.Issue{Number: 3, Title: "too chatty", Body: "body"}
	for i := 0; i < maxIssueComments+10; i++ {
		is.Comments = append(is.Comments, domain.Comment{User: "u", Body: "noise"})
	}
	text := renderIssue(is)
	if got := strings.Count(text, "@u:"); got != maxIssueComments {
		t.Fatalf("expected %d comments rendered, got %d", maxIssueComments, got)
	}
	if !strings.HasPrefix(text, "Issue #3: too chatty\n\nbody") {
		t.Fatalf("bad header: %q", text[:40])
	}
}

func TestRenderIssue_ClipsCommentBody(t *testing.T) {
	is := domain.Issue{Number: 1, Title: "t", Body: "b", Comments: []domain.Comment{
		{User: "u", Body: strings.Repeat("x", commentBudget+500)},
	}}
	text := renderIssue(is)
	if strings.Count(text, "x") != commentBudget {
		t.Fatalf("comment not clipped to budget")
	}
}

func TestRenderPullRequest(t *testing.T) {
	pr := domain.PullRequest{
		Number: 12,
		Title:  "add cache",
		State:  "open",
		Merged: true,
		Body:   "caches lookups",
		ChangedFiles: []domain.ChangedFile{
			{Filename: "cache.go", Patch: "+ added line"},
			{Filename: "cache_test.go", Status: "added"},
		},
		ReviewComments: []domain.ReviewComment{
			{User: "rev", Path: "cache.go", Body: "looks fine"},
		},
	}
	text := renderPullRequest(pr)
	if !strings.Contains(text, "PR #12: add cache\nStatus: Merged") {
		t.Fatalf("merged PR must render Status: Merged, got %q", text)
	}
	if !strings.Contains(text, "```diff\n+ added line\n```") {
		t.Fatal("patch not fenced as diff")
	}
	if !strings.Contains(text, "File: cache_test.go (added)") {
		t.Fatal("patchless file must render its status")
	}
	if !strings.Contains(text, "@rev on cache.go: looks fine") {
		t.Fatal("review comment missing")
	}
}

func TestRenderCommit(t *testing.T) {
	c := domain.Commit{
		SHA:     "deadbeef",
		Author:  "dev",
		Date:    "2026-01-02",
		Message: "tighten retry bounds",
		Files:   []domain.ChangedFile{{Filename: "retry.go", Patch: "- old\n+ new"}},
	}
	text := renderCommit(c)
	if !strings.HasPrefix(text, "Commit deadbeef\nAuthor: dev\nDate: 2026-01-02\n\ntighten retry bounds") {
		t.Fatalf("bad commit header: %q", text)
	}
	if !strings.Contains(text, "```diff\n- old\n+ new\n```") {
		t.Fatal("commit patch not fenced")
	}
}
