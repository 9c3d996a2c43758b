package domain

import (
	"fmt"
	"strings"
)

// MinContentLength is the shortest trimmed content worth indexing.
// Anything below it is skipped rather than chunked.
const MinContentLength = 20

func contentTooShort(s string) bool {
	return len(strings.TrimSpace(s)) < MinContentLength
}

// ValidateSourceFile checks a source file before segmentation.
func ValidateSourceFile(f SourceFile) error {
	if f.Path == "" {
		return fmt.Errorf("validate source file: %w", ErrMissingIdentifier)
	}
	if contentTooShort(f.Content) {
		return fmt.Errorf("validate source file %s: %w", f.Path, ErrEmptyContent)
	}
	return nil
}

// ValidateIssue checks an issue before rendering. Issues with an empty
// body but a title and comments are still indexable.
func ValidateIssue(is Issue) error {
	if is.Number <= 0 {
		return fmt.Errorf("validate issue: %w", ErrMissingIdentifier)
	}
	if is.Title == "" && contentTooShort(is.Body) {
		return fmt.Errorf("validate issue #%d: %w", is.Number, ErrEmptyContent)
	}
	return nil
}

// ValidatePullRequest checks a pull request before rendering.
func ValidatePullRequest(pr PullRequest) error {
	if pr.Number <= 0 {
		return fmt.Errorf("validate pull request: %w", ErrMissingIdentifier)
	}
	if pr.Title == "" && contentTooShort(pr.Body) {
		return fmt.Errorf("validate pull request #%d: %w", pr.Number, ErrEmptyContent)
	}
	return nil
}

// ValidateCommit checks a commit before rendering.
func ValidateCommit(c Commit) error {
	if c.SHA == "" {
		return fmt.Errorf("validate commit: %w", ErrMissingIdentifier)
	}
	if strings.TrimSpace(c.Message) == "" {
		return fmt.Errorf("validate commit %s: %w", c.SHA, ErrEmptyContent)
	}
	return nil
}
