// Package retrieval plans and executes document retrieval for a turn:
// query the vector index, filter weak matches, and fit the survivors
// into a fixed character budget before they reach the model.
package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/plugins/postgresql"

	"github.com/cartageio/cartage/internal/knowledge"
	"github.com/cartageio/cartage/internal/log"
)

// DocRetriever is the slice of ai.Retriever the planner needs.
type DocRetriever interface {
	Retrieve(ctx context.Context, req *ai.RetrieverRequest) (*ai.RetrieverResponse, error)
}

// Chunk is one retrieved passage with its provenance and similarity.
type Chunk struct {
	SourceID string  `json:"source_id,omitempty"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Bounds on planner configuration. Values outside are clamped, not errors,
// so a bad config degrades instead of disabling retrieval.
const (
	MinTopK = 1
	MaxTopK = 20

	// retrieveTimeout bounds one index query. A slow index degrades to
	// answering without context rather than stalling the turn.
	retrieveTimeout = 5 * time.Second
)

// Planner executes bounded retrieval against the document index.
type Planner struct {
	retriever  DocRetriever
	topK       int
	minScore   float64
	charBudget int
	logger     log.Logger
}

// NewPlanner creates a Planner. topK is clamped to [MinTopK, MaxTopK];
// logger may be nil.
func NewPlanner(retriever DocRetriever, topK int, minScore float64, charBudget int, logger log.Logger) (*Planner, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if topK < MinTopK {
		topK = MinTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return &Planner{
		retriever:  retriever,
		topK:       topK,
		minScore:   minScore,
		charBudget: charBudget,
		logger:     logger,
	}, nil
}

// Retrieve queries the index for query and returns the chunks that
// survive score filtering and the character budget, best match first.
//
// An empty result is a valid outcome, not an error: it means the index
// holds nothing relevant and the caller should answer without documents.
// Chunks never straddle the budget. A chunk that does not fit whole is
// dropped along with everything ranked below it.
func (p *Planner) Retrieve(ctx context.Context, query string) ([]Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, retrieveTimeout)
	defer cancel()

	req := &ai.RetrieverRequest{
		Query: ai.DocumentFromText(query, nil),
		Options: &postgresql.RetrieverOptions{
			Filter: "source_type = '" + knowledge.SourceTypeManual + "'",
			K:      p.topK,
		},
	}
	resp, err := p.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retrieving documents: %w", err)
	}

	chunks := p.selectChunks(resp.Documents)
	p.logger.Debug("retrieval complete",
		"candidates", len(resp.Documents), "selected", len(chunks), "query_length", len(query))
	return chunks, nil
}

// selectChunks applies score and budget filtering in rank order.
func (p *Planner) selectChunks(docs []*ai.Document) []Chunk {
	var chunks []Chunk
	used := 0
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		text := documentText(doc)
		if text == "" {
			continue
		}

		score := documentScore(doc)
		if score < p.minScore {
			continue
		}
		if p.charBudget > 0 && used+len(text) > p.charBudget {
			break
		}

		chunks = append(chunks, Chunk{
			SourceID: documentSourceID(doc),
			Text:     text,
			Score:    score,
		})
		used += len(text)
	}
	return chunks
}

// Documents converts chunks back into ai.Documents for ai.WithDocs.
func Documents(chunks []Chunk) []*ai.Document {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]*ai.Document, 0, len(chunks))
	for _, c := range chunks {
		meta := map[string]any{"score": c.Score}
		if c.SourceID != "" {
			meta["source_id"] = c.SourceID
		}
		docs = append(docs, ai.DocumentFromText(c.Text, meta))
	}
	return docs
}

func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, part := range doc.Content {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// documentScore derives a similarity in [0, 1] from document metadata.
// The index reports cosine distance; similarity is 1 - distance. A
// document without a distance passes filtering unconditionally.
func documentScore(doc *ai.Document) float64 {
	if doc.Metadata == nil {
		return 1
	}
	raw, ok := doc.Metadata["distance"]
	if !ok {
		return 1
	}
	switch v := raw.(type) {
	case float64:
		return clampScore(1 - v)
	case float32:
		return clampScore(1 - float64(v))
	case string:
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			return clampScore(1 - d)
		}
	}
	return 1
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func documentSourceID(doc *ai.Document) string {
	if doc.Metadata == nil {
		return ""
	}
	if id, ok := doc.Metadata["source_id"].(string); ok {
		return id
	}
	if name, ok := doc.Metadata["file_name"].(string); ok {
		return name
	}
	return ""
}
