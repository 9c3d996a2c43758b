// Package rag composes the read path: embed the question, retrieve
// ranked fragments across collections, assemble a bounded context block,
// and call the generation backend, blocking or streaming.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/repolens-ai/repolens/engine/domain"
	"github.com/repolens-ai/repolens/engine/semantic"
	"github.com/repolens-ai/repolens/pkg/fn"
)

// Searcher abstracts the vector store's query side.
type Searcher interface {
	Search(ctx context.Context, col domain.Collection, vector []float32, limit int, filter map[string]string) ([]semantic.SearchResult, error)
}

// Embedder turns the query into a unit vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator abstracts the text-generation backend.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) string
	GenerateStream(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int, emit func(token string))
	CheckConnection(ctx context.Context) bool
	Model() string
}

// Options configures the retrieval and generation defaults.
type Options struct {
	TopK             int
	ScoreThreshold   float32
	MaxContextLength int
	Temperature      float64
	MaxTokens        int
	SystemPrompt     string
}

// DefaultOptions mirrors the documented configuration defaults.
func DefaultOptions(repo string) Options {
	return Options{
		TopK:             8,
		ScoreThreshold:   0.3,
		MaxContextLength: 4000,
		Temperature:      0.7,
		MaxTokens:        2048,
		SystemPrompt:     fmt.Sprintf(systemPromptTemplate, repo),
	}
}

const systemPromptTemplate = `You are an expert code assistant with deep knowledge of the repository.
You have access to the codebase, issues, pull requests, and commits.

When answering:
1. Be specific and reference actual code, files, or issues when possible
2. Provide code examples when relevant
3. If you're not sure, say so
4. Keep answers concise but complete

Repository: %s
`

// Engine is the RAG conductor.
type Engine struct {
	embed  Embedder
	search Searcher
	llm    Generator
	opts   Options
	logger *slog.Logger
}

// New creates an Engine. All dependencies are injected and held for the
// engine's lifetime.
func New(embed Embedder, search Searcher, llm Generator, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embed: embed, search: search, llm: llm, opts: opts, logger: logger}
}

// Retrieve embeds the query once, fans out over the target collections,
// drops results under the score threshold, and returns the merged set
// sorted by score descending, truncated to topK. A failing collection is
// skipped; insufficient candidates simply mean fewer results.
func (e *Engine) Retrieve(ctx context.Context, query string, collections []domain.Collection, topK int, threshold float32) ([]semantic.SearchResult, error) {
	if topK <= 0 {
		topK = e.opts.TopK
	}
	if threshold < 0 {
		threshold = e.opts.ScoreThreshold
	}
	if len(collections) == 0 {
		collections = domain.Collections()
	}

	vector, err := e.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	var merged []semantic.SearchResult
	for _, col := range collections {
		results, err := e.search.Search(ctx, col, vector, topK, nil)
		if err != nil {
			e.logger.Warn("rag: search failed, skipping collection", "collection", col, "error", err)
			continue
		}
		merged = append(merged, fn.Filter(results, func(r semantic.SearchResult) bool {
			return r.Score >= threshold
		})...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Answer is the structured response of one blocking query.
type Answer struct {
	Answer        string   `json:"answer"`
	Sources       []Source `json:"sources"`
	ContextLength int      `json:"context_length"`
	SourcesCount  int      `json:"sources_count"`
}

// Query runs the full pipeline: retrieve, assemble context, render the
// prompt, and generate. Generation failures surface as descriptive text
// in Answer.Answer, never as an error.
func (e *Engine) Query(ctx context.Context, question string, collections []domain.Collection, topK int, temperature float64) (Answer, error) {
	results, err := e.Retrieve(ctx, question, collections, topK, -1)
	if err != nil {
		return Answer{}, err
	}

	contextBlock := e.BuildContext(results)
	prompt := BuildPrompt(question, contextBlock)
	if temperature <= 0 {
		temperature = e.opts.Temperature
	}

	answer := e.llm.Generate(ctx, prompt, e.opts.SystemPrompt, temperature, e.opts.MaxTokens)
	sources := buildSources(results)

	e.logger.Info("rag: query answered",
		"sources", len(sources),
		"context_length", len(contextBlock),
	)
	return Answer{
		Answer:        answer,
		Sources:       sources,
		ContextLength: len(contextBlock),
		SourcesCount:  len(sources),
	}, nil
}

// Event types emitted by QueryStream, in order: one sources event, zero
// or more token events, one done event.
const (
	EventSources = "sources"
	EventToken   = "token"
	EventDone    = "done"
)

// Event is one increment of a streaming query.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// QueryStream runs the same pipeline but emits sources before the first
// token so consumers can render attribution immediately.
func (e *Engine) QueryStream(ctx context.Context, question string, collections []domain.Collection, topK int, temperature float64, emit func(Event)) error {
	results, err := e.Retrieve(ctx, question, collections, topK, -1)
	if err != nil {
		return err
	}

	emit(Event{Type: EventSources, Data: buildSources(results)})

	contextBlock := e.BuildContext(results)
	prompt := BuildPrompt(question, contextBlock)
	if temperature <= 0 {
		temperature = e.opts.Temperature
	}

	e.llm.GenerateStream(ctx, prompt, e.opts.SystemPrompt, temperature, e.opts.MaxTokens, func(token string) {
		emit(Event{Type: EventToken, Data: token})
	})

	emit(Event{Type: EventDone})
	return nil
}

// CheckBackend reports whether the generation backend is reachable.
func (e *Engine) CheckBackend(ctx context.Context) bool {
	return e.llm.CheckConnection(ctx)
}

// Model returns the generation model identifier.
func (e *Engine) Model() string { return e.llm.Model() }
