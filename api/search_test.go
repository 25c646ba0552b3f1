package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/retrieval"
)

func searchMux(searcher Searcher) http.Handler {
	mux := http.NewServeMux()
	NewSearchHandler(searcher, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestSearch_Success(t *testing.T) {
	searcher := &fakeSearcher{chunks: []retrieval.Chunk{
		{SourceID: "file:abc", Text: "Claims must be filed within 30 days.", Score: 0.91},
	}}

	w := postJSON(searchMux(searcher), "/api/search", `{"query":"claim deadline"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Query   string            `json:"query"`
		Results []retrieval.Chunk `json:"results"`
		Total   int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "claim deadline", resp.Query)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "file:abc", resp.Results[0].SourceID)
}

func TestSearch_EmptyResultsIsOK(t *testing.T) {
	w := postJSON(searchMux(&fakeSearcher{}), "/api/search", `{"query":"nothing matches"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []retrieval.Chunk `json:"results"`
		Total   int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Results)
}

func TestSearch_MissingQuery(t *testing.T) {
	w := postJSON(searchMux(&fakeSearcher{}), "/api/search", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_UpstreamError(t *testing.T) {
	w := postJSON(searchMux(&fakeSearcher{err: errUpstream}), "/api/search", `{"query":"q"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
