package segment

import (
	"strings"
	"testing"

	"github.com/repolens-ai/repolens/engine/domain"
)

func TestSegment_TooShort(t *testing.T) {
	s := New(100, 20)
	if got := s.Segment("short", Generic); got != nil {
		t.Fatalf("expected nil for short text, got %v", got)
	}
	if got := s.Segment("   \n\t  ", Generic); got != nil {
		t.Fatalf("expected nil for whitespace, got %v", got)
	}
}

func TestSegment_SingleFragment(t *testing.T) {
	s := New(100, 20)
	text := "  this text fits comfortably in one fragment  "
	got := s.Segment(text, Generic)
	if len(got) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(got))
	}
	if got[0] != strings.TrimSpace(text) {
		t.Fatalf("expected trimmed text, got %q", got[0])
	}
}

func TestSegment_ParagraphSplit(t *testing.T) {
	s := New(50, 10)
	text := strings.Repeat("alpha ", 7) + "\n\n" + strings.Repeat("bravo ", 7)
	got := s.Segment(text, Generic)
	if len(got) < 2 {
		t.Fatalf("expected >= 2 fragments, got %d: %v", len(got), got)
	}
	for i, c := range got {
		if len(c) > 50 {
			t.Fatalf("fragment %d exceeds chunk size: %d chars", i, len(c))
		}
	}
}

func TestSplitFixed_BoundsAndOverlap(t *testing.T) {
	s := New(100, 20)
	// One unbroken run, no separators at all.
	text := strings.Repeat("x", 450)
	got := s.splitFixed(text)

	if len(got) == 0 {
		t.Fatal("expected fragments")
	}
	for i, c := range got {
		if len(c) > 100 {
			t.Fatalf("fragment %d exceeds chunk size: %d", i, len(c))
		}
	}
	// step = 80, so starts are 0,80,160,... and each full window is 100
	// chars: consecutive windows share exactly 20 characters.
	if len(got[0]) != 100 || len(got[1]) != 100 {
		t.Fatalf("expected full windows, got %d and %d", len(got[0]), len(got[1]))
	}
	if got[0][80:] != got[1][:20] {
		t.Fatal("expected 20-char overlap between consecutive windows")
	}
}

func TestSegment_FallsBackToFixedWindow(t *testing.T) {
	s := New(64, 16)
	text := strings.Repeat("y", 300) // no separator present
	got := s.Segment(text, Generic)
	if len(got) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(got))
	}
	for i, c := range got {
		if len(c) > 64 {
			t.Fatalf("fragment %d exceeds chunk size: %d", i, len(c))
		}
	}
}

func TestSegment_Markdown(t *testing.T) {
	s := New(80, 10)
	text := "# Intro\nsome introduction text here\n" +
		"## Usage\nhow to use the thing, with details\n" +
		"### Notes\nclosing notes that matter\n" +
		"#### deep heading stays inside its section\nmore text"
	got := s.Segment(text, Markdown)
	if len(got) < 2 {
		t.Fatalf("expected >= 2 fragments, got %d: %v", len(got), got)
	}
	// A 4-hash heading must not start a new section.
	for _, c := range got {
		if strings.HasPrefix(c, "####") {
			t.Fatalf("4-hash heading started its own fragment: %q", c)
		}
	}
}

func TestHeadingSections_FirstWithoutHeading(t *testing.T) {
	sections := headingSections("preamble line\n# First\nbody\n## Second\nmore")
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d: %v", len(sections), sections)
	}
	if !strings.HasPrefix(sections[0], "preamble") {
		t.Fatalf("expected preamble section first, got %q", sections[0])
	}
}

func TestIsHeading(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"# yes", true},
		{"## yes", true},
		{"### yes", true},
		{"#### no", false},
		{"#nospace", false},
		{"plain", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isHeading(c.line); got != c.want {
			t.Errorf("isHeading(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestSegment_CodeBoundaries(t *testing.T) {
	s := New(120, 20)
	var b strings.Builder
	b.WriteString("import os\n\n")
	for i := 0; i < 4; i++ {
		b.WriteString("def handler():\n    value = compute()\n    return value\n\n")
	}
	got := s.Segment(b.String(), Code)
	if len(got) < 2 {
		t.Fatalf("expected multiple fragments, got %d: %v", len(got), got)
	}
}

func TestSplitCode_CarriesOverlapLines(t *testing.T) {
	s := New(100, 0)
	lines := []string{
		"class First:",
		"    a = 1",
		"    b = 2",
		"    c = 3",
		"    d = 4",
		"    e = really_long_assignment_to_grow_the_fragment()",
		"def second():",
		"    return 0",
	}
	got := s.splitCode(strings.Join(lines, "\n"))
	if len(got) < 2 {
		t.Fatalf("expected a boundary split, got %d fragments", len(got))
	}
	// The trailing lines of the first fragment reappear in the second.
	if !strings.Contains(got[1], "e = really_long_assignment_to_grow_the_fragment()") {
		t.Fatalf("expected carried overlap in second fragment, got %q", got[1])
	}
	if !strings.Contains(got[len(got)-1], "def second():") {
		t.Fatalf("expected boundary line in a later fragment, got %v", got)
	}
}

func TestForLanguage(t *testing.T) {
	cases := []struct {
		lang string
		want Strategy
	}{
		{"py", Code},
		{"python", Code},
		{"md", Markdown},
		{"markdown", Markdown},
		{"rst", Markdown},
		{"txt", Markdown},
		{"go", Generic},
		{"", Generic},
	}
	for _, c := range cases {
		if got := ForLanguage(c.lang); got != c.want {
			t.Errorf("ForLanguage(%q) = %v, want %v", c.lang, got, c.want)
		}
	}
}

func TestForCollection(t *testing.T) {
	if got := ForCollection(domain.CollectionIssue); got != Markdown {
		t.Fatalf("issues should use Markdown, got %v", got)
	}
	if got := ForCollection(domain.CollectionPullRequest); got != Markdown {
		t.Fatalf("pull requests should use Markdown, got %v", got)
	}
	if got := ForCollection(domain.CollectionCommit); got != Generic {
		t.Fatalf("commits should use Generic, got %v", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(0, -1)
	if s.ChunkSize != DefaultChunkSize || s.ChunkOverlap != DefaultChunkOverlap {
		t.Fatalf("expected defaults, got %d/%d", s.ChunkSize, s.ChunkOverlap)
	}
	// Overlap >= size is replaced, not allowed to stall the window.
	s = New(100, 100)
	if s.ChunkOverlap >= s.ChunkSize {
		t.Fatalf("overlap %d must stay below chunk size %d", s.ChunkOverlap, s.ChunkSize)
	}
}
