package rag

import (
	"fmt"
	"strings"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/semantic"
	"github.com/repolens-ai/repolens/pkg/fn"
)

const (
	// sectionSeparator joins context sections visually.
	sectionSeparator = "\n\n---\n\n"
	// truncationMarker closes a section cut by the budget.
	truncationMarker = "\n... (truncated)"
	// truncationMargin is held back from the remaining budget when
	// cutting the final section.
	truncationMargin = 100
	// minTruncatedSection is the smallest cut section still worth
	// keeping; anything shorter is dropped outright.
	minTruncatedSection = 200
)

// BuildContext renders ranked results into one bounded text block. Each
// section opens with a per-type attribution header so the origin of an
// excerpt survives truncation. Once the budget is hit, the current
// section is cut and everything after it is dropped.
func (e *Engine) BuildContext(results []semantic.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var sections []string
	total := 0

	for i, r := range results {
		section := sectionHeader(i+1, r) + "\n" + r.Content

		sep := 0
		if len(sections) > 0 {
			sep = len(sectionSeparator)
		}
		if total+sep+len(section) > e.opts.MaxContextLength {
			remaining := e.opts.MaxContextLength - total - sep - truncationMargin
			if remaining > minTruncatedSection {
				sections = append(sections, section[:remaining]+truncationMarker)
			}
			break
		}

		sections = append(sections, section)
		total += sep + len(section)
	}

	return strings.Join(sections, sectionSeparator)
}

// sectionHeader renders the one-line attribution for a result, specific
// to its collection type.
func sectionHeader(rank int, r semantic.SearchResult) string {
	header := fmt.Sprintf("[Source %d | %s | relevance: %.4f]", rank, r.Collection, r.Score)

	switch m := r.Meta.(type) {
	case domain.CodeMeta:
		header += fmt.Sprintf("\nFile: %s (Language: %s)", m.FilePath, m.Language)
	case domain.IssueMeta:
		header += fmt.Sprintf("\nIssue #%d: %s (State: %s)", m.IssueNumber, m.Title, m.State)
	case domain.PullRequestMeta:
		status := m.State
		if m.Merged {
			status = "Merged"
		}
		header += fmt.Sprintf("\nPR #%d: %s (Status: %s)", m.PRNumber, m.Title, status)
	case domain.CommitMeta:
		header += fmt.Sprintf("\nCommit %s: %s", m.SHA, m.Message)
	}
	return header
}

// BuildPrompt renders the final prompt. The template instructs the model
// to cite sources and to declare insufficient context explicitly.
func BuildPrompt(question, contextBlock string) string {
	if contextBlock == "" {
		return fmt.Sprintf(`Answer the following question about the repository.
Note: No relevant context was found in the repository for this question.

## Question:
%s

## Answer:`, question)
	}

	return fmt.Sprintf(`Based on the following context from the repository, answer the user's question.

## Context:
%s

## Question:
%s

## Instructions:
- Use the context above to provide an accurate answer
- Reference specific files, issues, or PRs when relevant
- Provide code examples when appropriate
- If the context doesn't contain enough information, say so

## Answer:`, contextBlock, question)
}

// Source is a compact attribution record attached to an answer; only the
// fields for its type are populated.
type Source struct {
	Type        domain.Collection `json:"type"`
	Score       float32           `json:"score"`
	File        string            `json:"file,omitempty"`
	IssueNumber int               `json:"issue_number,omitempty"`
	PRNumber    int               `json:"pr_number,omitempty"`
	Title       string            `json:"title,omitempty"`
	SHA         string            `json:"sha,omitempty"`
	Message     string            `json:"message,omitempty"`
}

func buildSources(results []semantic.SearchResult) []Source {
	return fn.Map(results, func(r semantic.SearchResult) Source {
		src := Source{Type: r.Collection, Score: r.Score}
		switch m := r.Meta.(type) {
		case domain.CodeMeta:
			src.File = m.FilePath
		case domain.IssueMeta:
			src.IssueNumber = m.IssueNumber
			src.Title = m.Title
		case domain.PullRequestMeta:
			src.PRNumber = m.PRNumber
			src.Title = m.Title
		case domain.CommitMeta:
			src.SHA = m.SHA
			src.Message = m.Message
		}
		return src
	})
}
