// Package index pulls raw artifacts from a provider, renders each into a
// canonical text, segments it with the strategy for its type, and writes
// the resulting fragments to the vector store one artifact type at a
// time. Per-artifact failures are skipped with a warning; they never
// abort the surrounding batch.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/segment"
	"github.com/repolens-ai/repolens/engine/semantic"
	"github.com/repolens-ai/repolens/pkg/fn"
)

// Indexer drives the write path for one repository.
type Indexer struct {
	provider  Provider
	segmenter *segment.Segmenter
	store     Writer
	repo      string
	logger    *slog.Logger
}

// New creates an Indexer for the named repository.
func New(provider Provider, segmenter *segment.Segmenter, store Writer, repo string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		provider:  provider,
		segmenter: segmenter,
		store:     store,
		repo:      repo,
		logger:    logger,
	}
}

// FragmentID derives the deterministic fragment id from the artifact
// coordinates. Re-indexing the same artifact reproduces the same ids, so
// writes are upserts rather than duplicates.
func FragmentID(col domain.Collection, repo, artifactKey string, fragmentIndex int) string {
	raw := strings.Join([]string{string(col), repo, artifactKey, strconv.Itoa(fragmentIndex)}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(raw)).String()
}

// IndexAll indexes every artifact type, optionally clearing the store
// first. A failing type is logged and the rest still run.
func (ix *Indexer) IndexAll(ctx context.Context, clear bool) (Report, error) {
	if clear {
		if err := ix.store.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("index: clear all: %w", err)
		}
	}

	report := make(Report, 4)
	for col, run := range map[domain.Collection]func(context.Context) (int, error){
		domain.CollectionCode:        ix.IndexCode,
		domain.CollectionIssue:       ix.IndexIssues,
		domain.CollectionPullRequest: ix.IndexPullRequests,
		domain.CollectionCommit:      ix.IndexCommits,
	} {
		written, err := run(ctx)
		if err != nil {
			ix.logger.Error("index: type failed", "collection", col, "error", err)
		}
		report[col] = written
	}
	ix.logger.Info("index: complete", "repo", ix.repo, "total_fragments", report.Total())
	return report, nil
}

// IndexCode segments every source file and writes the code collection.
func (ix *Indexer) IndexCode(ctx context.Context) (int, error) {
	files, err := ix.provider.SourceFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: load source files: %w", err)
	}
	return run(ix, domain.CollectionCode, fn.MapStage(ix.codeFragments))(ctx, files)
}

// IndexIssues renders and segments every issue thread.
func (ix *Indexer) IndexIssues(ctx context.Context) (int, error) {
	issues, err := ix.provider.Issues(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: load issues: %w", err)
	}
	return run(ix, domain.CollectionIssue, fn.MapStage(ix.issueFragments))(ctx, issues)
}

// IndexPullRequests renders and segments every pull-request thread.
func (ix *Indexer) IndexPullRequests(ctx context.Context) (int, error) {
	prs, err := ix.provider.PullRequests(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: load pull requests: %w", err)
	}
	return run(ix, domain.CollectionPullRequest, fn.MapStage(ix.prFragments))(ctx, prs)
}

// IndexCommits renders and segments every commit.
func (ix *Indexer) IndexCommits(ctx context.Context) (int, error) {
	commits, err := ix.provider.Commits(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: load commits: %w", err)
	}
	return run(ix, domain.CollectionCommit, fn.MapStage(ix.commitFragments))(ctx, commits)
}

// run composes segment and store stages for one artifact type, with otel
// spans around each, and returns the executable batch.
func run[T any](ix *Indexer, col domain.Collection, build fn.Stage[[]T, []semantic.Fragment]) func(context.Context, []T) (int, error) {
	segmentStage := fn.TracedStage("index.segment."+string(col), build)
	logStage := fn.TapStage(func(_ context.Context, frags []semantic.Fragment) {
		ix.logger.Debug("index: segmented", "collection", col, "fragments", len(frags))
	})
	storeStage := fn.TracedStage("index.store."+string(col), func(ctx context.Context, frags []semantic.Fragment) fn.Result[int] {
		return fn.FromPair(ix.store.Add(ctx, col, frags))
	})
	staged := fn.Then(fn.Then(segmentStage, logStage), storeStage)
	return func(ctx context.Context, artifacts []T) (int, error) {
		written, err := staged(ctx, artifacts).Unwrap()
		if err == nil {
			ix.logger.Info("index: type done", "collection", col, "artifacts", len(artifacts), "fragments_written", written)
		}
		return written, err
	}
}

func (ix *Indexer) codeFragments(files []domain.SourceFile) []semantic.Fragment {
	var fragments []semantic.Fragment
	for _, f := range files {
		if err := domain.ValidateSourceFile(f); err != nil {
			ix.logger.Warn("index: skipping source file", "path", f.Path, "error", err)
			continue
		}
		pieces := ix.segmenter.Segment(f.Content, segment.ForLanguage(f.Language))
		for i, piece := range pieces {
			fragments = append(fragments, semantic.Fragment{
				ID:      FragmentID(domain.CollectionCode, ix.repo, f.Path, i),
				Content: piece,
				Meta: domain.CodeMeta{
					Repo:           ix.repo,
					FilePath:       f.Path,
					Language:       f.Language,
					FragmentIndex:  i,
					TotalFragments: len(pieces),
				},
			})
		}
	}
	return fragments
}

func (ix *Indexer) issueFragments(issues []domain.Issue) []semantic.Fragment {
	var fragments []semantic.Fragment
	for _, is := range issues {
		if err := domain.ValidateIssue(is); err != nil {
			ix.logger.Warn("index: skipping issue", "number", is.Number, "error", err)
			continue
		}
		pieces := ix.segmenter.Segment(renderIssue(is), segment.Markdown)
		key := strconv.Itoa(is.Number)
		for i, piece := range pieces {
			fragments = append(fragments, semantic.Fragment{
				ID:      FragmentID(domain.CollectionIssue, ix.repo, key, i),
				Content: piece,
				Meta: domain.IssueMeta{
					Repo:           ix.repo,
					IssueNumber:    is.Number,
					Title:          is.Title,
					State:          is.State,
					Labels:         domain.JoinLabels(is.Labels),
					CommentCount:   len(is.Comments),
					FragmentIndex:  i,
					TotalFragments: len(pieces),
				},
			})
		}
	}
	return fragments
}

func (ix *Indexer) prFragments(prs []domain.PullRequest) []semantic.Fragment {
	var fragments []semantic.Fragment
	for _, pr := range prs {
		if err := domain.ValidatePullRequest(pr); err != nil {
			ix.logger.Warn("index: skipping pull request", "number", pr.Number, "error", err)
			continue
		}
		pieces := ix.segmenter.Segment(renderPullRequest(pr), segment.Markdown)
		key := strconv.Itoa(pr.Number)
		for i, piece := range pieces {
			fragments = append(fragments, semantic.Fragment{
				ID:      FragmentID(domain.CollectionPullRequest, ix.repo, key, i),
				Content: piece,
				Meta: domain.PullRequestMeta{
					Repo:           ix.repo,
					PRNumber:       pr.Number,
					Title:          pr.Title,
					State:          pr.State,
					Merged:         pr.Merged,
					FilesChanged:   len(pr.ChangedFiles),
					FragmentIndex:  i,
					TotalFragments: len(pieces),
				},
			})
		}
	}
	return fragments
}

func (ix *Indexer) commitFragments(commits []domain.Commit) []semantic.Fragment {
	var fragments []semantic.Fragment
	for _, c := range commits {
		if err := domain.ValidateCommit(c); err != nil {
			ix.logger.Warn("index: skipping commit", "sha", c.SHA, "error", err)
			continue
		}
		pieces := ix.segmenter.Segment(renderCommit(c), segment.Generic)
		for i, piece := range pieces {
			fragments = append(fragments, semantic.Fragment{
				ID:      FragmentID(domain.CollectionCommit, ix.repo, c.SHA, i),
				Content: piece,
				Meta: domain.CommitMeta{
					Repo:           ix.repo,
					SHA:            c.SHA,
					Author:         c.Author,
					Message:        c.Message,
					FilesChanged:   len(c.Files),
					FragmentIndex:  i,
					TotalFragments: len(pieces),
				},
			})
		}
	}
	return fragments
}
