package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/cartageio/cartage/internal/log"
)

// DBTX is the subset of pgx operations the write path needs.
// Satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier defines the database operations Store depends on.
// Interfaces are defined by the consumer; Queries below is the
// production implementation, tests supply mocks.
type Querier interface {
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error
	DeleteBySource(ctx context.Context, sourceID string) (int64, error)
	CountBySourceType(ctx context.Context, sourceType string) (int64, error)
}

// UpsertDocumentParams carries one document row write.
type UpsertDocumentParams struct {
	ID         string
	Content    string
	Embedding  *pgvector.Vector
	Metadata   json.RawMessage
	SourceType string
	CreatedAt  time.Time
}

// Queries is the pgx-backed Querier.
type Queries struct {
	db DBTX
}

// NewQueries binds Queries to a pool or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertDocumentSQL = `
INSERT INTO documents (id, content, embedding, metadata, source_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata,
    source_type = EXCLUDED.source_type`

// UpsertDocument inserts or replaces one chunk row. Re-indexing the same
// source overwrites in place because chunk IDs are deterministic.
func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	createdAt := arg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := q.db.Exec(ctx, upsertDocumentSQL,
		arg.ID, arg.Content, arg.Embedding, arg.Metadata, arg.SourceType, createdAt)
	return err
}

const deleteBySourceSQL = `DELETE FROM documents WHERE metadata->>'source_id' = $1`

// DeleteBySource removes all chunks of one source document.
func (q *Queries) DeleteBySource(ctx context.Context, sourceID string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteBySourceSQL, sourceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countBySourceTypeSQL = `SELECT count(*) FROM documents WHERE source_type = $1`

// CountBySourceType counts indexed chunks of one source type.
func (q *Queries) CountBySourceType(ctx context.Context, sourceType string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countBySourceTypeSQL, sourceType).Scan(&n)
	return n, err
}

var _ Querier = (*Queries)(nil)

// Store writes documents to the index: embed, then upsert.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// NewStore creates a Store. logger may be nil for a no-op logger.
func NewStore(queries Querier, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if queries == nil {
		return nil, fmt.Errorf("queries is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{queries: queries, embedder: embedder, logger: logger}, nil
}

// Add embeds and upserts one document chunk.
// The chunk ID is derived from SourceID and ChunkIndex when unset.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.Content == "" {
		return fmt.Errorf("document %q has empty content", doc.ID)
	}
	if doc.ID == "" {
		doc.ID = ChunkID(doc.SourceID, doc.ChunkIndex)
	}
	if doc.SourceType == "" {
		doc.SourceType = SourceTypeManual
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(doc.Content)}},
		},
	})
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return fmt.Errorf("empty embedding returned for document %q", doc.ID)
	}

	embedding := pgvector.NewVector(resp.Embeddings[0].Embedding)

	metadata := map[string]string{
		"source_id":   doc.SourceID,
		"chunk_index": fmt.Sprintf("%d", doc.ChunkIndex),
	}
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	if err := s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:         doc.ID,
		Content:    doc.Content,
		Embedding:  &embedding,
		Metadata:   metadataJSON,
		SourceType: doc.SourceType,
		CreatedAt:  doc.CreatedAt,
	}); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("indexed document chunk",
		"id", doc.ID, "source_type", doc.SourceType, "content_length", len(doc.Content))
	return nil
}

// AddSource chunks content and indexes every chunk under sourceID.
// Returns the number of chunks written.
func (s *Store) AddSource(ctx context.Context, sourceID, sourceType, content string, metadata map[string]string) (int, error) {
	chunks := SplitText(content, DefaultChunkSize, DefaultChunkOverlap)
	for i, chunk := range chunks {
		if err := s.Add(ctx, Document{
			SourceID:   sourceID,
			ChunkIndex: i,
			Content:    chunk,
			SourceType: sourceType,
			Metadata:   metadata,
		}); err != nil {
			return i, fmt.Errorf("chunk %d of %q: %w", i, sourceID, err)
		}
	}
	return len(chunks), nil
}

// DeleteSource removes every chunk of one source document.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) (int64, error) {
	n, err := s.queries.DeleteBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting source %q: %w", sourceID, err)
	}
	s.logger.Debug("deleted source", "source_id", sourceID, "chunks", n)
	return n, nil
}

// Count reports how many chunks of a source type are indexed.
func (s *Store) Count(ctx context.Context, sourceType string) (int64, error) {
	return s.queries.CountBySourceType(ctx, sourceType)
}

// ChunkID builds the deterministic row id for a chunk.
func ChunkID(sourceID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%04d", sourceID, chunkIndex)
}
