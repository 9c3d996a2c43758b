package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/segment"
	"github.com/repolens-ai/repolens/engine/semantic"
)

// --- Mocks ---

type mockProvider struct {
	files   []domain.SourceFile
	issues  []domain.Issue
	prs     []domain.PullRequest
	commits []domain.Commit
	err     error
}

func (m *mockProvider) SourceFiles(context.Context) ([]domain.SourceFile, error) {
	return m.files, m.err
}
func (m *mockProvider) Issues(context.Context) ([]domain.Issue, error) { return m.issues, m.err }
func (m *mockProvider) PullRequests(context.Context) ([]domain.PullRequest, error) {
	return m.prs, m.err
}
func (m *mockProvider) Commits(context.Context) ([]domain.Commit, error) { return m.commits, m.err }

type memWriter struct {
	added   map[domain.Collection][]semantic.Fragment
	addErr  error
	cleared bool
}

func newMemWriter() *memWriter {
	return &memWriter{added: make(map[domain.Collection][]semantic.Fragment)}
}

func (w *memWriter) Add(_ context.Context, col domain.Collection, frags []semantic.Fragment) (int, error) {
	if w.addErr != nil {
		return 0, w.addErr
	}
	w.added[col] = append(w.added[col], frags...)
	return len(frags), nil
}

func (w *memWriter) ClearAll(context.Context) error {
	w.cleared = true
	return nil
}

func testIndexer(p *mockProvider, w *memWriter) *Indexer {
	return New(p, segment.New(200, 40), w, "org/repo", nil)
}

// --- Tests ---

func TestFragmentID_Deterministic(t *testing.T) {
	a := FragmentID(domain.CollectionCode, "org/repo", "src/main.py", 0)
	b := FragmentID(domain.CollectionCode, "org/repo", "src/main.py", 0)
	if a != b {
		t.Fatalf("same coordinates produced different ids: %s != %s", a, b)
	}
	if c := FragmentID(domain.CollectionCode, "org/repo", "src/main.py", 1); c == a {
		t.Fatal("different fragment index produced same id")
	}
	if c := FragmentID(domain.CollectionIssue, "org/repo", "src/main.py", 0); c == a {
		t.Fatal("different collection produced same id")
	}
	// Must be a well-formed UUID for the vector store's point ids.
	if len(a) != 36 || strings.Count(a, "-") != 4 {
		t.Fatalf("id is not a UUID: %q", a)
	}
}

func TestIndexCode(t *testing.T) {
	p := &mockProvider{files: []domain.SourceFile{
		{Path: "main.py", Language: "py", Content: strings.Repeat("def f():\n    return 1\n", 4)},
		{Path: "tiny.py", Language: "py", Content: "x=1"}, // skipped by validation
	}}
	w := newMemWriter()
	ix := testIndexer(p, w)

	n, err := ix.IndexCode(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 {
		t.Fatal("expected fragments written")
	}
	frags := w.added[domain.CollectionCode]
	if len(frags) != n {
		t.Fatalf("written count %d != stored %d", n, len(frags))
	}
	meta, ok := frags[0].Meta.(domain.CodeMeta)
	if !ok {
		t.Fatalf("expected CodeMeta, got %T", frags[0].Meta)
	}
	if meta.FilePath != "main.py" || meta.Language != "py" || meta.Repo != "org/repo" {
		t.Fatalf("bad meta: %+v", meta)
	}
	if meta.TotalFragments != len(frags) {
		t.Fatalf("TotalFragments %d != %d", meta.TotalFragments, len(frags))
	}
}

func TestIndexIssues_MultiFragmentThread(t *testing.T) {
	// A thread long enough to split, with a small chunk size.
	var comments []domain.Comment
	for i := 0; i < 6; i++ {
		comments = append(comments, domain.Comment{
			User: "reviewer",
			Body: strings.Repeat("this needs more detail ", 3),
		})
	}
	p := &mockProvider{issues: []domain.Issue{{
		Number:   7,
		Title:    "crash on startup",
		Body:     strings.Repeat("the app crashes when the config file is missing. ", 3),
		State:    "open",
		Labels:   []string{"bug"},
		Comments: comments,
	}}}
	w := newMemWriter()
	ix := New(p, segment.New(150, 30), w, "org/repo", nil)

	n, err := ix.IndexIssues(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected thread to split into >= 2 fragments, got %d", n)
	}

	frags := w.added[domain.CollectionIssue]
	for i, f := range frags {
		meta := f.Meta.(domain.IssueMeta)
		if meta.IssueNumber != 7 || meta.Labels != "bug" || meta.CommentCount != 6 {
			t.Fatalf("bad meta on fragment %d: %+v", i, meta)
		}
		if meta.FragmentIndex != i || meta.TotalFragments != len(frags) {
			t.Fatalf("fragment ordering broken at %d: %+v", i, meta)
		}
	}
	if !strings.Contains(frags[0].Content, "Issue #7: crash on startup") {
		t.Fatalf("first fragment missing canonical header: %q", frags[0].Content)
	}
}

func TestIndexAll_ContinuesPastFailingType(t *testing.T) {
	p := &mockProvider{
		files: []domain.SourceFile{
			{Path: "a.go", Language: "go", Content: strings.Repeat("package a // filler\n", 3)},
		},
		commits: []domain.Commit{
			{SHA: "deadbeef", Author: "dev", Message: "fix the flaky retry loop in the client"},
		},
	}
	w := newMemWriter()
	ix := testIndexer(p, w)

	report, err := ix.IndexAll(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.cleared {
		t.Fatal("store cleared without the clear flag")
	}
	if report[domain.CollectionCode] == 0 {
		t.Fatalf("expected code fragments, report: %v", report)
	}
	if report[domain.CollectionCommit] == 0 {
		t.Fatalf("expected commit fragments, report: %v", report)
	}
	if report.Total() != report[domain.CollectionCode]+report[domain.CollectionCommit] {
		t.Fatalf("total mismatch: %v", report)
	}
}

func TestIndexAll_Clear(t *testing.T) {
	w := newMemWriter()
	ix := testIndexer(&mockProvider{}, w)
	if _, err := ix.IndexAll(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.cleared {
		t.Fatal("expected ClearAll to run")
	}
}

func TestIndexCode_ProviderError(t *testing.T) {
	p := &mockProvider{err: errors.New("mirror down")}
	ix := testIndexer(p, newMemWriter())
	if _, err := ix.IndexCode(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIndexCommits_StoreError(t *testing.T) {
	p := &mockProvider{commits: []domain.Commit{
		{SHA: "abc", Author: "dev", Message: "a commit message long enough to index"},
	}}
	w := newMemWriter()
	w.addErr = errors.New("qdrant down")
	ix := testIndexer(p, w)
	if _, err := ix.IndexCommits(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
