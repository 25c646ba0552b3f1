package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/retrieval"
)

// Searcher queries the document index. *retrieval.Planner satisfies it.
type Searcher interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Chunk, error)
}

// SearchHandler exposes the document index directly, bypassing the
// model. Useful for debugging what the assistant can see.
type SearchHandler struct {
	searcher Searcher
	logger   log.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher Searcher, logger log.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, logger: logger}
}

// RegisterRoutes registers search routes on mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
}

// SearchRequest is the request body for /api/search.
type SearchRequest struct {
	Query string `json:"query"`
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_query", "query is required")
		return
	}

	chunks, err := h.searcher.Retrieve(r.Context(), req.Query)
	if err != nil {
		h.logger.Error("document search failed", "error", err)
		writeError(w, h.logger, http.StatusBadGateway, "search_failed", "the document index is unavailable")
		return
	}
	if chunks == nil {
		chunks = []retrieval.Chunk{}
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": chunks,
		"total":   len(chunks),
	})
}
