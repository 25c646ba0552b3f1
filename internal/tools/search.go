package tools

import (
	"context"
	"strings"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/retrieval"
)

// DocumentSearcher is the retrieval surface the search tool needs.
// *retrieval.Planner satisfies it.
type DocumentSearcher interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Chunk, error)
}

// SearchDocumentsInput defines input for the search_documents tool.
type SearchDocumentsInput struct {
	Query string `json:"query" jsonschema_description:"What to look up in the reference documents"`
}

// NewSearchDocuments creates the search_documents tool. An empty result
// set is reported as success so the model can say the answer is not in
// the documentation instead of retrying.
func NewSearchDocuments(searcher DocumentSearcher, logger log.Logger) *Tool {
	if logger == nil {
		logger = log.NewNop()
	}
	return New("search_documents",
		"Search the indexed logistics reference documents (operations manuals, carrier "+
			"policies, rate sheets) for passages relevant to a question. Use this when the "+
			"answer depends on documented policy rather than live shipment data.",
		&InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {Type: "string", Description: "What to look up"},
			},
			Required: []string{"query"},
		},
		func(ctx context.Context, input SearchDocumentsInput) Result {
			query := strings.TrimSpace(input.Query)
			if query == "" {
				return FailField("query", "must not be empty")
			}

			chunks, err := searcher.Retrieve(ctx, query)
			if err != nil {
				logger.Warn("document search failed", "error", err)
				return Fail(ErrCodeUpstreamUnavailable, "document index is unavailable")
			}
			return Success(map[string]any{
				"query":        query,
				"result_count": len(chunks),
				"results":      chunks,
			})
		})
}
