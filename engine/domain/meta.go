package domain

import (
	"fmt"
	"strings"
)

// titleLimit bounds title/message fields carried in metadata so a single
// oversized artifact cannot bloat every fragment payload.
const titleLimit = 200

// Meta is the per-fragment metadata, a closed variant over the four
// artifact types. Every variant carries FragmentIndex and TotalFragments
// so the parent artifact can be reconstructed in order.
type Meta interface {
	Collection() Collection
	// Payload flattens the metadata into the scalar map stored alongside
	// the fragment vector.
	Payload() map[string]any
}

// CodeMeta attributes a fragment of a source file.
type CodeMeta struct {
	Repo           string
	FilePath       string
	Language       string
	FragmentIndex  int
	TotalFragments int
}

func (CodeMeta) Collection() Collection { return CollectionCode }

func (m CodeMeta) Payload() map[string]any {
	return map[string]any{
		"repo":            m.Repo,
		"file_path":       m.FilePath,
		"language":        m.Language,
		"fragment_index":  m.FragmentIndex,
		"total_fragments": m.TotalFragments,
	}
}

// IssueMeta attributes a fragment of an issue thread.
type IssueMeta struct {
	Repo           string
	IssueNumber    int
	Title          string
	State          string
	Labels         string // comma-joined, scalar payloads only
	CommentCount   int
	FragmentIndex  int
	TotalFragments int
}

func (IssueMeta) Collection() Collection { return CollectionIssue }

func (m IssueMeta) Payload() map[string]any {
	return map[string]any{
		"repo":            m.Repo,
		"issue_number":    m.IssueNumber,
		"title":           truncate(m.Title, titleLimit),
		"state":           m.State,
		"labels":          m.Labels,
		"comment_count":   m.CommentCount,
		"fragment_index":  m.FragmentIndex,
		"total_fragments": m.TotalFragments,
	}
}

// PullRequestMeta attributes a fragment of a pull-request thread.
type PullRequestMeta struct {
	Repo           string
	PRNumber       int
	Title          string
	State          string
	Merged         bool
	FilesChanged   int
	FragmentIndex  int
	TotalFragments int
}

func (PullRequestMeta) Collection() Collection { return CollectionPullRequest }

func (m PullRequestMeta) Payload() map[string]any {
	return map[string]any{
		"repo":            m.Repo,
		"pr_number":       m.PRNumber,
		"title":           truncate(m.Title, titleLimit),
		"state":           m.State,
		"merged":          m.Merged,
		"files_changed":   m.FilesChanged,
		"fragment_index":  m.FragmentIndex,
		"total_fragments": m.TotalFragments,
	}
}

// CommitMeta attributes a fragment of a commit.
type CommitMeta struct {
	Repo           string
	SHA            string
	Author         string
	Message        string
	FilesChanged   int
	FragmentIndex  int
	TotalFragments int
}

func (CommitMeta) Collection() Collection { return CollectionCommit }

func (m CommitMeta) Payload() map[string]any {
	return map[string]any{
		"repo":            m.Repo,
		"sha":             m.SHA,
		"author":          m.Author,
		"message":         truncate(m.Message, titleLimit),
		"files_changed":   m.FilesChanged,
		"fragment_index":  m.FragmentIndex,
		"total_fragments": m.TotalFragments,
	}
}

// MetaFromPayload rebuilds the typed variant for a collection from the
// scalar payload map returned by the vector store.
func MetaFromPayload(c Collection, p map[string]any) (Meta, error) {
	switch c {
	case CollectionCode:
		return CodeMeta{
			Repo:           str(p, "repo"),
			FilePath:       str(p, "file_path"),
			Language:       str(p, "language"),
			FragmentIndex:  num(p, "fragment_index"),
			TotalFragments: num(p, "total_fragments"),
		}, nil
	case CollectionIssue:
		return IssueMeta{
			Repo:           str(p, "repo"),
			IssueNumber:    num(p, "issue_number"),
			Title:          str(p, "title"),
			State:          str(p, "state"),
			Labels:         str(p, "labels"),
			CommentCount:   num(p, "comment_count"),
			FragmentIndex:  num(p, "fragment_index"),
			TotalFragments: num(p, "total_fragments"),
		}, nil
	case CollectionPullRequest:
		return PullRequestMeta{
			Repo:           str(p, "repo"),
			PRNumber:       num(p, "pr_number"),
			Title:          str(p, "title"),
			State:          str(p, "state"),
			Merged:         boolean(p, "merged"),
			FilesChanged:   num(p, "files_changed"),
			FragmentIndex:  num(p, "fragment_index"),
			TotalFragments: num(p, "total_fragments"),
		}, nil
	case CollectionCommit:
		return CommitMeta{
			Repo:           str(p, "repo"),
			SHA:            str(p, "sha"),
			Author:         str(p, "author"),
			Message:        str(p, "message"),
			FilesChanged:   num(p, "files_changed"),
			FragmentIndex:  num(p, "fragment_index"),
			TotalFragments: num(p, "total_fragments"),
		}, nil
	}
	return nil, fmt.Errorf("domain: %w: %q", ErrUnknownCollection, c)
}

func str(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func num(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func boolean(p map[string]any, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// JoinLabels flattens a label list for the scalar payload.
func JoinLabels(labels []string) string {
	return strings.Join(labels, ",")
}
