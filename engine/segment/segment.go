// Package segment splits raw artifact text into ordered, size-bounded
// fragments. Strategies are content-type aware: a generic separator
// cascade, a markdown heading splitter, and a structure-aware source-code
// splitter. Fragment order is significant; callers rely on it to
// reconstruct the parent artifact.
package segment

import (
	"strings"

	"github.com/repolens-ai/repolens/engine/domain"
)

const (
	// DefaultChunkSize is the target fragment length in characters.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is the overlap between consecutive fragments
	// produced by the fixed-width fallback.
	DefaultChunkOverlap = 150
)

// Strategy selects a splitting algorithm.
type Strategy int

const (
	Generic Strategy = iota
	Markdown
	Code
)

// Segmenter holds the size knobs shared by all strategies.
type Segmenter struct {
	ChunkSize    int
	ChunkOverlap int
}

// New creates a Segmenter, substituting defaults for non-positive knobs.
func New(chunkSize, chunkOverlap int) *Segmenter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 4
		}
	}
	return &Segmenter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

// splitFunc is one registered strategy, a pure function over the text.
type splitFunc func(*Segmenter, string) []string

var registry = map[Strategy]splitFunc{
	Generic:  (*Segmenter).splitGeneric,
	Markdown: (*Segmenter).splitMarkdown,
	Code:     (*Segmenter).splitCode,
}

// Segment splits text with the given strategy. Whitespace-only or
// under-length text yields no fragments; text at or under the chunk size
// yields a single trimmed fragment.
func (s *Segmenter) Segment(text string, strategy Strategy) []string {
	if len(strings.TrimSpace(text)) < domain.MinContentLength {
		return nil
	}
	if len(text) <= s.ChunkSize {
		return []string{strings.TrimSpace(text)}
	}
	split, ok := registry[strategy]
	if !ok {
		split = (*Segmenter).splitGeneric
	}
	return split(s, text)
}

// ForLanguage maps a file language to its splitting strategy.
func ForLanguage(language string) Strategy {
	switch strings.ToLower(language) {
	case "py", "python":
		return Code
	case "md", "markdown", "rst", "txt":
		return Markdown
	default:
		return Generic
	}
}

// ForCollection maps an artifact type to its splitting strategy. Source
// files use ForLanguage instead, keyed on the file's language.
func ForCollection(c domain.Collection) Strategy {
	switch c {
	case domain.CollectionIssue, domain.CollectionPullRequest:
		return Markdown
	default:
		return Generic
	}
}

// separators, coarsest first: paragraph, line, sentence end, word.
var separators = []string{"\n\n", "\n", ". ", " "}

// splitGeneric tries each separator in turn and returns the first
// non-empty split; the fixed window is the unconditional last resort.
func (s *Segmenter) splitGeneric(text string) []string {
	for _, sep := range separators {
		if chunks := s.splitBySeparator(text, sep); len(chunks) > 0 {
			return chunks
		}
	}
	return s.splitFixed(text)
}

// splitBySeparator greedily packs separator-delimited parts into
// fragments under the chunk size. A single part longer than the chunk
// size is handed to the fixed window so every fragment stays bounded.
func (s *Segmenter) splitBySeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	var chunks []string
	var current string

	for _, part := range parts {
		candidate := part
		if current != "" {
			candidate = current + sep + part
		}

		if len(candidate) <= s.ChunkSize {
			current = candidate
			continue
		}

		if current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		if len(part) > s.ChunkSize {
			chunks = append(chunks, s.splitFixed(part)...)
			current = ""
		} else {
			current = part
		}
	}
	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return compact(chunks)
}

// splitFixed is the fixed-width sliding window with overlap. Every
// returned fragment is at most ChunkSize characters long.
func (s *Segmenter) splitFixed(text string) []string {
	var chunks []string
	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		step = s.ChunkSize
	}

	for start := 0; start < len(text); start += step {
		end := start + s.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(text) {
			break
		}
	}
	return chunks
}

func compact(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
