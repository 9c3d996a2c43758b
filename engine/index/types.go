package index

import (
	"context"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/semantic"
	"github.com/repolens-ai/repolens/pkg/fn"
)

// Provider supplies raw repository artifacts, one type at a time.
type Provider interface {
	SourceFiles(ctx context.Context) ([]domain.SourceFile, error)
	Issues(ctx context.Context) ([]domain.Issue, error)
	PullRequests(ctx context.Context) ([]domain.PullRequest, error)
	Commits(ctx context.Context) ([]domain.Commit, error)
}

// Writer is the slice of the vector store the orchestrator needs.
type Writer interface {
	Add(ctx context.Context, col domain.Collection, fragments []semantic.Fragment) (int, error)
	ClearAll(ctx context.Context) error
}

// Report maps each artifact type to the number of fragments written.
type Report map[domain.Collection]int

// Total sums fragment counts across types.
func (r Report) Total() int {
	return fn.Reduce(domain.Collections(), 0, func(acc int, col domain.Collection) int {
		return acc + r[col]
	})
}
