package index

import (
	"fmt"
	"strings"

	"github.com/repolens-ai/repolens/engine/domain"
)

// Caps on secondary items so one sprawling artifact cannot flood the
// store: bounded item counts per artifact and a character budget per
// item before concatenation.
const (
	maxIssueComments  = 15
	maxChangedFiles   = 15
	maxReviewComments = 10
	maxCommitFiles    = 15

	commentBudget = 1000
	prPatchBudget = 1500
	commitBudget  = 1000
	reviewBudget  = 1000
)

func clip(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	return s[:budget]
}

// renderIssue builds the canonical text for one issue: title and body
// first, then a bounded slice of its comments.
func renderIssue(is domain.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue #%d: %s\n\n%s", is.Number, is.Title, is.Body)

	if len(is.Comments) > 0 {
		b.WriteString("\n\n--- Comments ---\n")
		for i, c := range is.Comments {
			if i >= maxIssueComments {
				break
			}
			fmt.Fprintf(&b, "\n@%s: %s\n", c.User, clip(c.Body, commentBudget))
		}
	}
	return b.String()
}

// renderPullRequest builds the canonical text for one pull request:
// header with merge status, body, changed-file diffs, then reviews.
func renderPullRequest(pr domain.PullRequest) string {
	status := pr.State
	if pr.Merged {
		status = "Merged"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PR #%d: %s\nStatus: %s\n\n%s", pr.Number, pr.Title, status, pr.Body)

	if len(pr.ChangedFiles) > 0 {
		b.WriteString("\n\n--- Changed Files ---\n")
		for i, cf := range pr.ChangedFiles {
			if i >= maxChangedFiles {
				break
			}
			if cf.Patch != "" {
				fmt.Fprintf(&b, "\nFile: %s\n```diff\n%s\n```\n", cf.Filename, clip(cf.Patch, prPatchBudget))
			} else {
				fmt.Fprintf(&b, "\nFile: %s (%s)\n", cf.Filename, cf.Status)
			}
		}
	}

	if len(pr.ReviewComments) > 0 {
		b.WriteString("\n\n--- Reviews ---\n")
		for i, rc := range pr.ReviewComments {
			if i >= maxReviewComments {
				break
			}
			fmt.Fprintf(&b, "\n@%s on %s: %s\n", rc.User, rc.Path, clip(rc.Body, reviewBudget))
		}
	}
	return b.String()
}

// renderCommit builds the canonical text for one commit: header, message,
// then the bounded file diffs.
func renderCommit(c domain.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commit %s\nAuthor: %s\nDate: %s\n\n%s", c.SHA, c.Author, c.Date, c.Message)

	if len(c.Files) > 0 {
		b.WriteString("\n\n--- Changes ---\n")
		for i, f := range c.Files {
			if i >= maxCommitFiles {
				break
			}
			if f.Patch != "" {
				fmt.Fprintf(&b, "\nFile: %s\n```diff\n%s\n```\n", f.Filename, clip(f.Patch, commitBudget))
			} else {
				fmt.Fprintf(&b, "\nFile: %s (%s)\n", f.Filename, f.Status)
			}
		}
	}
	return b.String()
}
