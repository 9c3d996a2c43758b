package semantic

import "github.com/repolens-ai/repolens/engine/domain"

// Fragment is one indexed unit on the write path: deterministic id,
// bounded content, and its typed metadata. The embedding is produced
// inside Add via the injected Embedder.
type Fragment struct {
	ID      string
	Content string
	Meta    domain.Meta
}

// SearchResult is a single similarity hit. Score is 1 - cosine distance,
// clamped to [0, 1]; higher is more relevant.
type SearchResult struct {
	Content    string            `json:"content"`
	Meta       domain.Meta       `json:"-"`
	Payload    map[string]any    `json:"metadata"`
	Collection domain.Collection `json:"collection"`
	Score      float32           `json:"score"`
	Distance   float32           `json:"distance"`
}

// Stats reports per-collection fragment counts and the grand total.
type Stats struct {
	Collections map[domain.Collection]uint64 `json:"collections"`
	Total       uint64                       `json:"total"`
}
