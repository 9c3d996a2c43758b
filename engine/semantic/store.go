// Package semantic owns all Qdrant operations for the fragment store.
// Each artifact type lives in its own named collection; similarity space
// is fixed to cosine over unit vectors.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/repolens-ai/repolens/engine/domain"
)

const (
	// embedBatchSize caps texts per embedding request.
	embedBatchSize = 64
	// upsertBatchSize caps points per Qdrant upsert.
	upsertBatchSize = 100
	// unitTolerance is the allowed deviation from unit norm before a
	// vector is flagged as non-normalized.
	unitTolerance = 1e-3
)

// collectionNames maps artifact types to their Qdrant collection names.
var collectionNames = map[domain.Collection]string{
	domain.CollectionCode:        "code_chunks",
	domain.CollectionIssue:       "issue_chunks",
	domain.CollectionPullRequest: "pr_chunks",
	domain.CollectionCommit:      "commit_chunks",
}

// Embedder turns text into fixed-dimension unit vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PointsAPI is the subset of pb.PointsClient the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store is the vector store adapter over Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	embedder    Embedder
	dims        int
	logger      *slog.Logger
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string, embedder Embedder, dims int, logger *slog.Logger) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), embedder, dims, logger)
	s.conn = conn
	return s, nil
}

// NewWithClients creates a Store with explicit Qdrant clients, mainly for tests.
func NewWithClients(points PointsAPI, collections CollectionsAPI, embedder Embedder, dims int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		points:      points,
		collections: collections,
		embedder:    embedder,
		dims:        dims,
		logger:      logger,
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollections creates every missing per-type collection.
func (s *Store) EnsureCollections(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	existing := make(map[string]bool)
	for _, c := range list.GetCollections() {
		existing[c.GetName()] = true
	}

	for _, col := range domain.Collections() {
		name := collectionNames[col]
		if existing[name] {
			continue
		}
		if err := s.createCollection(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createCollection(ctx context.Context, name string) error {
	d := uint64(s.dims)
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// Add embeds and upserts fragments into the named collection. Embedding
// runs in bounded batches, upserts in bounded sub-batches; a failed
// sub-batch is logged and skipped so the rest still lands. Returns the
// number of fragments written; partial failure is not an error.
func (s *Store) Add(ctx context.Context, col domain.Collection, fragments []Fragment) (int, error) {
	name, ok := collectionNames[col]
	if !ok {
		return 0, fmt.Errorf("semantic: add: %w: %q", domain.ErrUnknownCollection, col)
	}
	if len(fragments) == 0 {
		return 0, nil
	}

	embeddings, err := s.embedAll(ctx, fragments)
	if err != nil {
		return 0, fmt.Errorf("semantic: add to %s: %w", name, err)
	}

	written := 0
	for start := 0; start < len(fragments); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(fragments) {
			end = len(fragments)
		}

		points := make([]*pb.PointStruct, end-start)
		for i, frag := range fragments[start:end] {
			points[i] = &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: frag.ID}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: embeddings[start+i]}}},
				Payload: toPayload(frag),
			}
		}

		wait := true
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: name,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			s.logger.Error("semantic: upsert batch failed",
				"collection", name, "from", start, "to", end, "error", err)
			continue
		}
		written += end - start
	}
	return written, nil
}

// embedAll runs the embedding function over fragment contents in batches.
func (s *Store) embedAll(ctx context.Context, fragments []Fragment) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(fragments))
	for start := 0; start < len(fragments); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		texts := make([]string, end-start)
		for i, f := range fragments[start:end] {
			texts[i] = f.Content
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		for _, vec := range batch {
			s.assertUnit(vec)
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

// Search returns up to limit nearest fragments by cosine similarity.
// CollectionAll queries every non-empty collection with the same limit,
// merges, re-sorts by score, and truncates; an empty collection yields
// no results rather than an error.
func (s *Store) Search(ctx context.Context, col domain.Collection, vector []float32, limit int, filter map[string]string) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.assertUnit(vector)

	if col == domain.CollectionAll {
		var merged []SearchResult
		for _, c := range domain.Collections() {
			results, err := s.searchOne(ctx, c, vector, limit, filter)
			if err != nil {
				s.logger.Warn("semantic: search failed, skipping collection",
					"collection", c, "error", err)
				continue
			}
			merged = append(merged, results...)
		}
		sortByScore(merged)
		if len(merged) > limit {
			merged = merged[:limit]
		}
		return merged, nil
	}

	return s.searchOne(ctx, col, vector, limit, filter)
}

func (s *Store) searchOne(ctx context.Context, col domain.Collection, vector []float32, limit int, filter map[string]string) ([]SearchResult, error) {
	name, ok := collectionNames[col]
	if !ok {
		return nil, fmt.Errorf("semantic: search: %w: %q", domain.ErrUnknownCollection, col)
	}

	count, err := s.Count(ctx, col)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if uint64(limit) > count {
		limit = int(count)
	}

	req := &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", name, err)
	}

	results := make([]SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := fromPayload(r.GetPayload())
		content, _ := payload["content"].(string)
		delete(payload, "content")

		meta, err := domain.MetaFromPayload(col, payload)
		if err != nil {
			s.logger.Warn("semantic: undecodable payload", "collection", name, "error", err)
		}

		score := clampScore(r.GetScore())
		results = append(results, SearchResult{
			Content:    content,
			Meta:       meta,
			Payload:    payload,
			Collection: col,
			Score:      score,
			Distance:   1 - score,
		})
	}
	return results, nil
}

// Count returns the number of fragments in a collection.
func (s *Store) Count(ctx context.Context, col domain.Collection) (uint64, error) {
	name, ok := collectionNames[col]
	if !ok {
		return 0, fmt.Errorf("semantic: count: %w: %q", domain.ErrUnknownCollection, col)
	}
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: name})
	if err != nil {
		return 0, fmt.Errorf("semantic: count %s: %w", name, err)
	}
	return resp.GetResult().GetCount(), nil
}

// Clear destroys and recreates a collection, dropping all its fragments.
func (s *Store) Clear(ctx context.Context, col domain.Collection) error {
	name, ok := collectionNames[col]
	if !ok {
		return fmt.Errorf("semantic: clear: %w: %q", domain.ErrUnknownCollection, col)
	}
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return s.createCollection(ctx, name)
}

// ClearAll clears every per-type collection.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, col := range domain.Collections() {
		if err := s.Clear(ctx, col); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns per-collection counts and the grand total.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Collections: make(map[domain.Collection]uint64)}
	for _, col := range domain.Collections() {
		count, err := s.Count(ctx, col)
		if err != nil {
			return Stats{}, err
		}
		stats.Collections[col] = count
		stats.Total += count
	}
	return stats, nil
}

// assertUnit logs a warning when a vector is not L2-normalized. Scores
// assume unit vectors; anything else could push them out of [0, 1].
func (s *Store) assertUnit(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if len(vec) > 0 && math.Abs(sum-1) > unitTolerance {
		s.logger.Warn("semantic: vector is not unit-norm", "norm_sq", sum, "dims", len(vec))
	}
}

func clampScore(score float32) float32 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func sortByScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func toPayload(frag Fragment) map[string]*pb.Value {
	fields := frag.Meta.Payload()
	payload := make(map[string]*pb.Value, len(fields)+1)
	payload["content"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: frag.Content}}
	for k, val := range fields {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
