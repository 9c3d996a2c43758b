// Command indexer loads repository artifacts from a crawl backup or a
// Gitea mirror, segments them, and writes embedded fragments into Qdrant.
// It can run one-shot per artifact type, full with -clear, or stay
// resident consuming re-index jobs from NATS.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/index"
	"github.com/repolens-ai/repolens/engine/segment"
	"github.com/repolens-ai/repolens/engine/semantic"
	"github.com/repolens-ai/repolens/pkg/gitea"
	"github.com/repolens-ai/repolens/pkg/metrics"
	"github.com/repolens-ai/repolens/pkg/ollama"
)

var met = metrics.New()

var (
	mFragments = func(col string) *metrics.Counter {
		return met.Counter(metrics.Labeled("repolens_index_fragments_total", "collection", col), "Fragments written")
	}
	mErrors = func(col string) *metrics.Counter {
		return met.Counter(metrics.Labeled("repolens_index_errors_total", "collection", col), "Failed index passes")
	}
	mRunDur = met.Histogram("repolens_index_run_duration_seconds", "Wall time of one index run", nil)
)

const vectorDims = 768 // nomic-embed-text

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	var (
		backupPath  = flag.String("backup", envOr("CRAWL_BACKUP", ""), "crawl backup JSON file; API is skipped when set")
		giteaURL    = flag.String("gitea", envOr("GITEA_URL", "http://localhost:3000"), "Gitea base URL")
		giteaToken  = flag.String("token", envOr("GITEA_TOKEN", ""), "Gitea API token")
		org         = flag.String("org", envOr("GITEA_ORG", "mirror"), "Gitea organization")
		repo        = flag.String("repo", envOr("GITEA_REPO", ""), "repository name")
		qdrantAddr  = flag.String("qdrant", envOr("QDRANT_ADDR", "localhost:6334"), "Qdrant gRPC address")
		ollamaURL   = flag.String("ollama", envOr("OLLAMA_URL", "http://localhost:11434"), "Ollama base URL")
		embedModel  = flag.String("embed-model", envOr("EMBED_MODEL", "nomic-embed-text"), "embedding model")
		natsURL     = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
		chunkSize   = flag.Int("chunk-size", segment.DefaultChunkSize, "fragment size in characters")
		overlap     = flag.Int("overlap", segment.DefaultChunkOverlap, "fragment overlap in characters")
		artifact    = flag.String("type", "all", "artifact type to index: code, issues, prs, commits, all")
		clear       = flag.Bool("clear", false, "drop all collections before a full index")
		showStats   = flag.Bool("stats", false, "print collection counts and exit")
		consume     = flag.Bool("consume", false, "stay resident and consume index jobs from NATS")
		metricsPort = flag.Int("metrics-port", 9091, "Prometheus metrics port")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *repo == "" {
		logger.Error("missing -repo")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met.ServeAsync(*metricsPort)

	embedder := ollama.NewEmbedClient(*ollamaURL, *embedModel)
	store, err := semantic.New(*qdrantAddr, embedder, vectorDims, logger)
	if err != nil {
		logger.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.EnsureCollections(ctx); err != nil {
		logger.Error("qdrant ensure collections failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Qdrant", "addr", *qdrantAddr, "dims", vectorDims)

	if *showStats {
		stats, err := store.Stats(ctx)
		if err != nil {
			logger.Error("stats failed", "error", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
		return
	}

	loader, err := gitea.New(gitea.Config{
		BaseURL:    *giteaURL,
		Token:      *giteaToken,
		Org:        *org,
		Repo:       *repo,
		BackupPath: *backupPath,
	}, logger)
	if err != nil {
		logger.Error("loader init failed", "error", err)
		os.Exit(1)
	}

	seg := segment.New(*chunkSize, *overlap)
	ix := index.New(loader, seg, store, *org+"/"+*repo, logger)

	if *consume {
		nc, err := nats.Connect(*natsURL, nats.Name("repolens-indexer"))
		if err != nil {
			logger.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		sub, err := index.StartConsumer(nc, ix, logger)
		if err != nil {
			logger.Error("consumer start failed", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()

		logger.Info("consuming index jobs", "subject", index.JobSubject)
		<-ctx.Done()
		logger.Info("shutting down")
		return
	}

	start := time.Now()
	if err := runOnce(ctx, ix, *artifact, *clear); err != nil {
		logger.Error("index run failed", "error", err)
		os.Exit(1)
	}
	mRunDur.Since(start)
	logger.Info("index run complete", "duration", time.Since(start))
}

func runOnce(ctx context.Context, ix *index.Indexer, artifact string, clear bool) error {
	record := func(col domain.Collection, n int, err error) {
		if err != nil {
			mErrors(string(col)).Inc()
			return
		}
		mFragments(string(col)).Add(int64(n))
	}

	switch artifact {
	case "code":
		n, err := ix.IndexCode(ctx)
		record(domain.CollectionCode, n, err)
		return err
	case "issues":
		n, err := ix.IndexIssues(ctx)
		record(domain.CollectionIssue, n, err)
		return err
	case "prs":
		n, err := ix.IndexPullRequests(ctx)
		record(domain.CollectionPullRequest, n, err)
		return err
	case "commits":
		n, err := ix.IndexCommits(ctx)
		record(domain.CollectionCommit, n, err)
		return err
	case "all":
		report, err := ix.IndexAll(ctx, clear)
		for col, n := range report {
			mFragments(string(col)).Add(int64(n))
		}
		return err
	default:
		return fmt.Errorf("unknown artifact type %q", artifact)
	}
}
