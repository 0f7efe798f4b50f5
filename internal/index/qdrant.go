package index

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// metaPointID is the fixed id of the vector-less point that carries the
// index metadata record inside the collection.
const metaPointID = "00000000-0000-0000-0000-000000000001"

// upsertBatchSize bounds the number of points per Upsert call.
const upsertBatchSize = 100

// Qdrant is the persistent Index backend. Chunks are stored as points
// with a named "text" vector; a single vector-less meta point records
// the embedding model the index was built with.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
	modelID    string
}

// NewQdrant connects to Qdrant, verifies health with exponential
// backoff, and ensures the collection exists. It fails fast if the
// server is unreachable.
func NewQdrant(host string, port int, collection string, dimension int, modelID string) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	q := &Qdrant{
		client:     client,
		collection: collection,
		dimension:  uint64(dimension),
		modelID:    modelID,
	}

	ctx := context.Background()
	if err := q.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return q, nil
}

func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		result, err := q.client.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// ensureCollection creates the collection if missing. Named vectors let
// the meta point live in the same collection without an embedding.
// Idempotent.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			"text": {
				Size:     q.dimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Payload index on "kind" distinguishes chunk points from the meta
	// point during filtered search.
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "kind",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create payload index: %w", err)
	}

	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d (%s)", ErrMissingEmbedding, i, c.ID)
		}
		if uint64(len(c.Embedding)) != q.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), q.dimension)
		}
	}

	for i := 0; i < len(chunks); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(chunks))
		batch := chunks[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, c := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(c.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					"text": qdrant.NewVector(c.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"kind":        "chunk",
					"title":       c.SourceTitle,
					"url":         c.SourceURL,
					"chunk_index": c.ChunkIndex,
					"text":        c.Text,
				}),
			}
		}

		if err := q.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}

	return q.writeMeta(ctx)
}

func (q *Qdrant) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// writeMeta replaces the metadata point recording model and build time.
func (q *Qdrant) writeMeta(ctx context.Context) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(metaPointID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"kind":     "meta",
			"model_id": q.modelID,
			"built_at": time.Now().UTC().Format(time.RFC3339),
		}),
	}
	return q.upsertWithRetry(ctx, []*qdrant.PointStruct{point})
}

func (q *Qdrant) Search(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	if uint64(len(embedding)) != q.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), q.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	vectorName := "text"
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &vectorName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("kind", "chunk")},
		},
		Limit:       qdrant.PtrOf(uint64(k)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		payload := r.Payload
		score := float64(r.Score)
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scored = append(scored, ScoredChunk{
			Chunk: Chunk{
				ID:          r.Id.GetUuid(),
				SourceTitle: payload["title"].GetStringValue(),
				SourceURL:   payload["url"].GetStringValue(),
				ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
				Text:        payload["text"].GetStringValue(),
			},
			Score: score,
		})
	}

	return scored, nil
}

// Reset drops and recreates the collection, destroying chunks and
// metadata.
func (q *Qdrant) Reset(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return q.ensureCollection(ctx)
}

func (q *Qdrant) Stats(ctx context.Context) (Metadata, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("kind", "chunk")},
		},
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("count chunks: %w", err)
	}

	meta := Metadata{TotalChunks: int(count)}

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(metaPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("get index metadata: %w", err)
	}
	if len(points) > 0 {
		payload := points[0].Payload
		meta.EmbeddingModelID = payload["model_id"].GetStringValue()
		if t, err := time.Parse(time.RFC3339, payload["built_at"].GetStringValue()); err == nil {
			meta.BuiltAt = t
		}
	}

	return meta, nil
}

func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
