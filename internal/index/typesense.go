package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Typesense is the persistent index backend, used when chunk vectors should
// survive the run (the persistent-storage mode). The collection is dropped
// and recreated on the first Add, so each run still starts from a clean
// index.
type Typesense struct {
	client     *typesense.Client
	collection string
	dim        int
	count      int
	seq        int64
}

type TypesenseConfig struct {
	URL        string
	APIKey     string
	Collection string
}

func NewTypesense(cfg TypesenseConfig) *Typesense {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(10*time.Second),
	)
	return &Typesense{
		client:     client,
		collection: cfg.Collection,
	}
}

type chunkDocument struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	SourceFile string    `json:"source_file"`
	StartLine  int32     `json:"start_line"`
	EndLine    int32     `json:"end_line"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding"`
}

func (t *Typesense) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if t.dim == 0 {
		t.dim = len(chunks[0].Embedding)
		if err := t.recreateCollection(ctx); err != nil {
			return err
		}
	}

	docs := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != t.dim {
			return fmt.Errorf("embedding dimensionality mismatch: index has %d, chunk %s:%d has %d",
				t.dim, c.SourceFile, c.StartLine, len(c.Embedding))
		}
		t.seq++
		docs = append(docs, chunkDocument{
			ID:         fmt.Sprintf("%d", t.seq),
			Seq:        t.seq,
			SourceFile: c.SourceFile,
			StartLine:  int32(c.StartLine),
			EndLine:    int32(c.EndLine),
			Text:       c.Text,
			Embedding:  c.Embedding,
		})
	}

	params := &api.ImportDocumentsParams{
		Action:    pointer.Any(api.Upsert),
		BatchSize: pointer.Int(64),
	}
	if _, err := t.client.Collection(t.collection).Documents().Import(ctx, docs, params); err != nil {
		return fmt.Errorf("importing chunks into typesense: %w", err)
	}

	t.count += len(chunks)
	return nil
}

func (t *Typesense) Search(ctx context.Context, vector []float64, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 || t.count == 0 {
		return nil, nil
	}
	if len(vector) != t.dim {
		return nil, fmt.Errorf("query dimensionality %d does not match index %d", len(vector), t.dim)
	}

	searches := api.MultiSearchSearchesParameter{
		Searches: []api.MultiSearchCollectionParameters{
			{
				Collection:  pointer.String(t.collection),
				Q:           pointer.String("*"),
				VectorQuery: pointer.String(vectorQuery(vector, k)),
				SortBy:      pointer.String("_vector_distance:asc,seq:asc"),
				PerPage:     pointer.Int(k),
			},
		},
	}

	res, err := t.client.MultiSearch.Perform(ctx, &api.MultiSearchParams{}, searches)
	if err != nil {
		return nil, fmt.Errorf("typesense vector search: %w", err)
	}
	if len(res.Results) == 0 || res.Results[0].Hits == nil {
		return nil, nil
	}

	var results []domain.ScoredChunk
	for _, hit := range *res.Results[0].Hits {
		if hit.Document == nil {
			continue
		}
		chunk, err := chunkFromDocument(*hit.Document)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed typesense hit", "error", err)
			continue
		}
		score := 0.0
		if hit.VectorDistance != nil {
			// Typesense reports cosine distance; similarity = 1 - distance.
			score = 1 - float64(*hit.VectorDistance)
		}
		results = append(results, domain.ScoredChunk{Chunk: chunk, Score: score})
	}
	return results, nil
}

func (t *Typesense) Len() int {
	return t.count
}

func (t *Typesense) recreateCollection(ctx context.Context) error {
	// Ignore delete errors: the collection may not exist yet.
	if _, err := t.client.Collection(t.collection).Delete(ctx); err != nil {
		slog.DebugContext(ctx, "typesense collection delete", "collection", t.collection, "error", err)
	}

	schema := &api.CollectionSchema{
		Name: t.collection,
		Fields: []api.Field{
			{Name: "seq", Type: "int64"},
			{Name: "source_file", Type: "string"},
			{Name: "start_line", Type: "int32"},
			{Name: "end_line", Type: "int32"},
			{Name: "text", Type: "string"},
			{Name: "embedding", Type: "float[]", NumDim: pointer.Int(t.dim)},
		},
	}
	if _, err := t.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("creating typesense collection %q: %w", t.collection, err)
	}
	return nil
}

func vectorQuery(vector []float64, k int) string {
	var sb strings.Builder
	sb.WriteString("embedding:([")
	for i, v := range vector {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	fmt.Fprintf(&sb, "], k:%d)", k)
	return sb.String()
}

func chunkFromDocument(doc map[string]interface{}) (domain.Chunk, error) {
	sourceFile, ok := doc["source_file"].(string)
	if !ok {
		return domain.Chunk{}, fmt.Errorf("missing source_file")
	}
	text, _ := doc["text"].(string)

	startLine, err := intField(doc, "start_line")
	if err != nil {
		return domain.Chunk{}, err
	}
	endLine, err := intField(doc, "end_line")
	if err != nil {
		return domain.Chunk{}, err
	}

	return domain.Chunk{
		SourceFile: sourceFile,
		StartLine:  startLine,
		EndLine:    endLine,
		Text:       text,
	}, nil
}

func intField(doc map[string]interface{}, key string) (int, error) {
	v, ok := doc[key].(float64)
	if !ok {
		return 0, fmt.Errorf("missing numeric field %q", key)
	}
	return int(v), nil
}
