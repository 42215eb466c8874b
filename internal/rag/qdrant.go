package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written alongside every point.
const (
	payloadDocID      = "doc_id"
	payloadTitle      = "title"
	payloadContent    = "content"
	payloadKind       = "kind"
	payloadOwnerScope = "owner_scope"
	payloadLocator    = "locator"
	payloadAttrPrefix = "attr."
)

// pointNamespace seeds the name-based UUIDs derived from document IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("pmrag.points"))

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection. Qdrant
// point IDs must be UUIDs or integers, so each document ID is mapped to a
// SHA-1 name UUID and the original ID is kept in the payload.
//
// Unlike MemoryStore, equal scores are ordered by Qdrant, not by insertion.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary).
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores or replaces a batch of documents. Every vector is checked
// against the collection size before the request is sent.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: upsert: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		if uint64(len(embeddings[i])) != s.cfg.VectorSize {
			return &DimensionMismatchError{ID: doc.ID, Want: int(s.cfg.VectorSize), Got: len(embeddings[i])}
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(documentPayload(doc)),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if uint64(len(queryEmbedding)) != s.cfg.VectorSize {
		return nil, &DimensionMismatchError{ID: "<query>", Want: int(s.cfg.VectorSize), Got: len(queryEmbedding)}
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         qdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			Document: payloadDocument(p.GetPayload()),
			Score:    float64(p.GetScore()),
		})
	}

	return results, nil
}

// Get fetches one document and its vector by ID.
func (s *QdrantStore) Get(ctx context.Context, id string) (Entry, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.cfg.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("qdrant: get failed: %w", err)
	}
	if len(points) == 0 {
		return Entry{}, ErrNotFound
	}

	p := points[0]
	return Entry{
		Document:  payloadDocument(p.GetPayload()),
		Embedding: p.GetVectors().GetVector().GetData(),
	}, nil
}

// Delete removes documents by ID. Qdrant does not report how many points a
// delete touched, so existing points are counted first.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(PointID(id)))
	}

	existing, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.cfg.Collection,
		Ids:            pointIDs,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete lookup failed: %w", err)
	}
	if len(existing) == 0 {
		return 0, nil
	}

	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return len(existing), nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// Dimension returns the collection vector size.
func (s *QdrantStore) Dimension() int { return int(s.cfg.VectorSize) }

// Ping checks that the Qdrant server is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// PointID maps a document ID to the UUID used as its Qdrant point ID.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// documentPayload flattens doc into a Qdrant payload map.
func documentPayload(doc Document) map[string]any {
	payload := map[string]any{
		payloadDocID:   doc.ID,
		payloadTitle:   doc.Title,
		payloadContent: doc.Content,
		payloadKind:    string(doc.Kind),
	}
	if doc.OwnerScope != "" {
		payload[payloadOwnerScope] = doc.OwnerScope
	}
	if doc.Locator > 0 {
		payload[payloadLocator] = int64(doc.Locator)
	}
	for k, v := range doc.Attributes {
		payload[payloadAttrPrefix+k] = v
	}
	return payload
}

// payloadDocument rebuilds a Document from a Qdrant payload.
func payloadDocument(p map[string]*qdrant.Value) Document {
	doc := Document{
		ID:         p[payloadDocID].GetStringValue(),
		Title:      p[payloadTitle].GetStringValue(),
		Content:    p[payloadContent].GetStringValue(),
		Kind:       Kind(p[payloadKind].GetStringValue()),
		OwnerScope: p[payloadOwnerScope].GetStringValue(),
		Locator:    int(p[payloadLocator].GetIntegerValue()),
	}
	for k, v := range p {
		name, ok := strings.CutPrefix(k, payloadAttrPrefix)
		if !ok {
			continue
		}
		if doc.Attributes == nil {
			doc.Attributes = make(map[string]string)
		}
		doc.Attributes[name] = v.GetStringValue()
	}
	return doc
}

// qdrantFilter converts f into payload conditions. A zero Filter yields nil.
func qdrantFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.OwnerScope != "" {
		must = append(must, qdrant.NewMatch(payloadOwnerScope, f.OwnerScope))
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		must = append(must, qdrant.NewMatchKeywords(payloadKind, kinds...))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
