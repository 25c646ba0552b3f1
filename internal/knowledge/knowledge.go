// Package knowledge manages the document index backing retrieval-augmented
// answering: chunking source documents, generating embeddings, and
// upserting rows into the pgvector-backed documents table.
//
// Reads go through the Genkit PostgreSQL retriever defined in internal/app;
// this package owns the write path. Both sides share the table layout
// declared here, and both use cosine similarity (db/migrations creates the
// hnsw index with vector_cosine_ops).
package knowledge

import (
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/plugins/postgresql"
)

// Source type constants for indexed documents.
const (
	// SourceTypeManual represents operations manuals, policies, and other
	// logistics reference documents.
	SourceTypeManual = "manual"

	// SourceTypeConversation represents archived chat history.
	SourceTypeConversation = "conversation"

	// SourceTypeSystem represents built-in assistant knowledge.
	SourceTypeSystem = "system"
)

// Table schema constants shared with the Genkit PostgreSQL plugin.
// These match the documents table in db/migrations.
const (
	DocumentsTableName    = "documents"
	DocumentsSchemaName   = "public"
	DocumentsIDColumn     = "id"
	DocumentsContentCol   = "content"
	DocumentsEmbeddingCol = "embedding"
	DocumentsMetadataCol  = "metadata"
)

// VectorDimension is the embedding width of the documents table.
// The embedder configured in internal/config must produce this dimension.
const VectorDimension = 768

// Document is one indexable chunk with its provenance.
type Document struct {
	ID         string            // deterministic "<source_id>:<chunk_index>"
	SourceID   string            // stable identifier of the source document
	ChunkIndex int               // position of this chunk within the source
	Content    string            // chunk text, embedded on Add
	SourceType string            // one of the SourceType constants
	Metadata   map[string]string // additional filterable metadata
	CreatedAt  time.Time
}

// NewDocStoreConfig creates the postgresql.Config for the documents table.
// This factory keeps the retriever (internal/app) and the write path here
// agreeing on one layout.
func NewDocStoreConfig(embedder ai.Embedder) *postgresql.Config {
	return &postgresql.Config{
		TableName:          DocumentsTableName,
		SchemaName:         DocumentsSchemaName,
		IDColumn:           DocumentsIDColumn,
		ContentColumn:      DocumentsContentCol,
		EmbeddingColumn:    DocumentsEmbeddingCol,
		MetadataJSONColumn: DocumentsMetadataCol,
		MetadataColumns:    []string{"source_type"}, // for filtering by type
		Embedder:           embedder,
	}
}
