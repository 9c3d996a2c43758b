package index

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/pkg/natsutil"
)

// JobSubject is the NATS subject carrying re-index requests, typically
// published by the crawler after a mirror sync.
const JobSubject = "index.jobs"

// Job asks for a (re-)index of one artifact type, or of everything.
type Job struct {
	// Collection is a collection name or "all".
	Collection domain.Collection `json:"collection"`
	// Clear drops existing fragments before indexing. Only honored for
	// all-type jobs; single-type jobs always upsert in place.
	Clear bool `json:"clear"`
}

// StartConsumer subscribes the indexer to JobSubject so crawl runs can
// trigger re-indexing without restarting the process.
func StartConsumer(nc *nats.Conn, ix *Indexer, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return natsutil.Subscribe(nc, JobSubject, func(ctx context.Context, job Job) {
		logger.Info("index: job received", "collection", job.Collection, "clear", job.Clear)

		var (
			written int
			err     error
		)
		switch job.Collection {
		case domain.CollectionCode:
			written, err = ix.IndexCode(ctx)
		case domain.CollectionIssue:
			written, err = ix.IndexIssues(ctx)
		case domain.CollectionPullRequest:
			written, err = ix.IndexPullRequests(ctx)
		case domain.CollectionCommit:
			written, err = ix.IndexCommits(ctx)
		case domain.CollectionAll, "":
			var report Report
			report, err = ix.IndexAll(ctx, job.Clear)
			written = report.Total()
		default:
			logger.Warn("index: job names unknown collection", "collection", job.Collection)
			return
		}

		if err != nil {
			logger.Error("index: job failed", "collection", job.Collection, "error", err)
			return
		}
		logger.Info("index: job done", "collection", job.Collection, "fragments_written", written)
	})
}
