// Package domain defines the artifact records, fragment metadata variants,
// and validation for the repolens indexing pipeline. It acts as the
// validation gate at pipeline entry points.
package domain

// Collection names one of the per-artifact-type fragment buckets.
type Collection string

const (
	CollectionCode        Collection = "code"
	CollectionIssue       Collection = "issue"
	CollectionPullRequest Collection = "pull_request"
	CollectionCommit      Collection = "commit"

	// CollectionAll is a query-side pseudo-collection that fans out to
	// every real collection. It is never written to.
	CollectionAll Collection = "all"
)

// Collections returns the real (writable) collections in indexing order.
func Collections() []Collection {
	return []Collection{CollectionCode, CollectionIssue, CollectionPullRequest, CollectionCommit}
}

// Valid reports whether c names a real collection or the all pseudo-collection.
func (c Collection) Valid() bool {
	switch c {
	case CollectionCode, CollectionIssue, CollectionPullRequest, CollectionCommit, CollectionAll:
		return true
	}
	return false
}

// SourceFile is one file of the mirrored repository tree.
type SourceFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Comment is a discussion comment on an issue.
type Comment struct {
	User string `json:"user"`
	Body string `json:"body"`
}

// Issue is an issue thread with its comments.
type Issue struct {
	Number   int       `json:"number"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	State    string    `json:"state"`
	Labels   []string  `json:"labels"`
	Comments []Comment `json:"comments"`
}

// ChangedFile is one file touched by a pull request or commit,
// with its unified diff when the provider supplies one.
type ChangedFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}

// ReviewComment is an inline review remark on a pull request.
type ReviewComment struct {
	User string `json:"user"`
	Path string `json:"path"`
	Body string `json:"body"`
}

// PullRequest is a pull-request thread with its file diffs and reviews.
type PullRequest struct {
	Number         int             `json:"number"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	State          string          `json:"state"`
	Merged         bool            `json:"merged"`
	Labels         []string        `json:"labels"`
	ChangedFiles   []ChangedFile   `json:"changed_files"`
	ReviewComments []ReviewComment `json:"review_comments"`
}

// Commit is a single commit with its touched files.
type Commit struct {
	SHA     string        `json:"sha"`
	Message string        `json:"message"`
	Author  string        `json:"author"`
	Date    string        `json:"date"`
	Files   []ChangedFile `json:"files"`
}
