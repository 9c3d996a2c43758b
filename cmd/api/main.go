// Command api serves the question-answering and search HTTP API on top
// of the retrieval engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/rag"
	"github.com/repolens-ai/repolens/engine/semantic"
	"github.com/repolens-ai/repolens/pkg/mid"
	"github.com/repolens-ai/repolens/pkg/ollama"
	"github.com/repolens-ai/repolens/pkg/resilience"
)

const vectorDims = 768 // nomic-embed-text

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	QdrantAddr string
	OllamaURL  string
	EmbedModel string
	ChatModel  string
	Repo       string
	CORSOrigin string
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		QdrantAddr: envOr("QDRANT_ADDR", "localhost:6334"),
		OllamaURL:  envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel: envOr("EMBED_MODEL", "nomic-embed-text"),
		ChatModel:  envOr("CHAT_MODEL", "qwen2.5-coder:7b"),
		Repo:       envOr("REPO_NAME", ""),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	store, err := semantic.New(cfg.QdrantAddr, embedder, vectorDims, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	llm := &guardedGenerator{
		llm:     ollama.NewChatClient(cfg.OllamaURL, cfg.ChatModel, logger),
		breaker: resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 3, Cooldown: 15 * time.Second}),
	}

	engine := rag.New(embedder, store, llm, rag.DefaultOptions(cfg.Repo), logger)
	if !engine.CheckBackend(ctx) {
		logger.Warn("LLM backend unreachable at startup", "url", cfg.OllamaURL)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(engine))
	mux.HandleFunc("GET /api/stats", handleStats(store, logger))
	mux.HandleFunc("POST /api/query", handleQuery(engine, logger))
	mux.HandleFunc("POST /api/query/stream", handleQueryStream(engine, logger))
	mux.HandleFunc("POST /api/search", handleSearch(engine, logger))
	mux.HandleFunc("GET /api/search/code", handleTypedSearch(engine, domain.CollectionCode, logger))
	mux.HandleFunc("GET /api/search/issues", handleTypedSearch(engine, domain.CollectionIssue, logger))
	mux.HandleFunc("GET /api/search/prs", handleTypedSearch(engine, domain.CollectionPullRequest, logger))
	mux.HandleFunc("GET /api/search/commits", handleTypedSearch(engine, domain.CollectionCommit, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("repolens-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "model", engine.Model())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(engine *rag.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"model":  engine.Model(),
			"llm":    engine.CheckBackend(r.Context()),
		})
	}
}

func handleStats(store *semantic.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats(r.Context())
		if err != nil {
			logger.Error("stats failed", "err", err)
			writeError(w, http.StatusInternalServerError, "stats unavailable")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// QueryRequest is the JSON body for POST /api/query and /api/query/stream.
type QueryRequest struct {
	Question    string   `json:"question"`
	Collections []string `json:"collections,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
}

func handleQuery(engine *rag.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, cols, ok := decodeQuery(w, r)
		if !ok {
			return
		}
		answer, err := engine.Query(r.Context(), req.Question, cols, req.TopK, req.Temperature)
		if err != nil {
			logger.Error("query failed", "err", err)
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		writeJSON(w, http.StatusOK, answer)
	}
}

func handleQueryStream(engine *rag.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, cols, ok := decodeQuery(w, r)
		if !ok {
			return
		}
		flusher, canFlush := w.(http.Flusher)
		if !canFlush {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		err := engine.QueryStream(r.Context(), req.Question, cols, req.TopK, req.Temperature, func(ev rag.Event) {
			data, err := json.Marshal(ev)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		})
		if err != nil {
			logger.Error("query stream failed", "err", err)
		}
	}
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query       string   `json:"query"`
	Collections []string `json:"collections,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Threshold   *float32 `json:"threshold,omitempty"`
}

func handleSearch(engine *rag.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		cols, err := parseCollections(req.Collections)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		threshold := float32(-1)
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		results, err := engine.Retrieve(r.Context(), req.Query, cols, req.TopK, threshold)
		if err != nil {
			logger.Error("search failed", "err", err)
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": results,
			"count":   len(results),
		})
	}
}

func handleTypedSearch(engine *rag.Engine, col domain.Collection, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if strings.TrimSpace(query) == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		topK := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			topK = n
		}

		results, err := engine.Retrieve(r.Context(), query, []domain.Collection{col}, topK, -1)
		if err != nil {
			logger.Error("search failed", "collection", col, "err", err)
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": results,
			"count":   len(results),
		})
	}
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, []domain.Collection, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, nil, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return req, nil, false
	}
	cols, err := parseCollections(req.Collections)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, nil, false
	}
	return req, cols, true
}

func parseCollections(names []string) ([]domain.Collection, error) {
	var cols []domain.Collection
	for _, name := range names {
		col := domain.Collection(name)
		if col == domain.CollectionAll {
			return nil, nil
		}
		if !col.Valid() {
			return nil, fmt.Errorf("unknown collection %q", name)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- LLM guard ---

const backendUnavailable = "Error: LLM backend temporarily unavailable"

// guardedGenerator runs the chat client behind a circuit breaker so a
// dead backend fails fast instead of holding requests for the full
// generation timeout. The client signals failure through its "Error:"
// sentinel rather than an error value.
type guardedGenerator struct {
	llm     *ollama.ChatClient
	breaker *resilience.Breaker
}

func (g *guardedGenerator) Generate(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) string {
	var out string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		out = g.llm.Generate(ctx, prompt, systemPrompt, temperature, maxTokens)
		if strings.HasPrefix(out, "Error:") {
			return errors.New(out)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return backendUnavailable
	}
	return out
}

func (g *guardedGenerator) GenerateStream(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int, emit func(token string)) {
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var failure string
		g.llm.GenerateStream(ctx, prompt, systemPrompt, temperature, maxTokens, func(token string) {
			if strings.HasPrefix(token, "Error:") {
				failure = token
			}
			emit(token)
		})
		if failure != "" {
			return errors.New(failure)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		emit(backendUnavailable)
	}
}

func (g *guardedGenerator) CheckConnection(ctx context.Context) bool {
	return g.llm.CheckConnection(ctx)
}

func (g *guardedGenerator) Model() string { return g.llm.Model() }
