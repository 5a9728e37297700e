package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/rag"
	"github.com/BaSui01/memflow/rag/sources"
	"github.com/BaSui01/memflow/types"
)

type scriptedProvider struct{}

func (scriptedProvider) Name() string { return "scripted" }

func (scriptedProvider) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Analyze the following search query"):
		return `{"intent": "informational", "complexity": "medium"}`, nil
	case strings.Contains(prompt, "hierarchical search keywords"):
		return `{"primary_keywords": ["raft"], "confidence": 0.9}`, nil
	case strings.Contains(prompt, "different angles"):
		return `["raft protocol"]`, nil
	case strings.Contains(prompt, "markdown report"):
		return "Raft elects a leader [1].", nil
	default:
		return "1", nil
	}
}

func (scriptedProvider) Embed(_ context.Context, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i := range texts {
		vecs[i] = []float64{1, 0}
	}
	return vecs, nil
}

type memorySource struct{ docs []types.RawDocument }

func (memorySource) Name() string { return "document_store" }

func (s memorySource) Search(_ context.Context, _ []string, _ int) ([]types.RawDocument, error) {
	return s.docs, nil
}

func newHandler(provider llm.Provider, docs []types.RawDocument) *SearchHandler {
	registry := sources.NewRegistry(nil, memorySource{docs: docs})
	pipeline := rag.NewPipeline(rag.DefaultPipelineConfig(), provider, registry, nil, nil, nil, nil)
	return NewSearchHandler(pipeline, nil, nil)
}

func searchCorpus() []types.RawDocument {
	return []types.RawDocument{
		{ID: "1", Title: "Raft notes", Content: strings.Repeat("raft consensus leader election details ", 10)},
		{ID: "2", Title: "More notes", Content: strings.Repeat("followers replicate the leader log entries ", 10)},
	}
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestSearchHandler_Search(t *testing.T) {
	t.Parallel()

	h := newHandler(scriptedProvider{}, searchCorpus())
	rec, resp := doJSON(t, h.Search, http.MethodPost, "/search", `{"query": "how does raft work"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result types.SearchResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.NotEmpty(t, result.SearchID)
	assert.NotEmpty(t, result.Sources)
	assert.Empty(t, result.Reason)
	assert.Contains(t, result.Report, "Raft elects a leader")
}

func TestSearchHandler_SearchNoCandidatesIs200(t *testing.T) {
	t.Parallel()

	h := newHandler(scriptedProvider{}, nil)
	rec, resp := doJSON(t, h.Search, http.MethodPost, "/search", `{"query": "how does raft work"}`)

	assert.Equal(t, http.StatusOK, rec.Code, "an empty corpus is a reason, not an error")
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result types.SearchResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "NO_CANDIDATES", result.Reason)
}

func TestSearchHandler_SearchKeywordFailure(t *testing.T) {
	t.Parallel()

	h := newHandler(llm.UnavailableProvider{}, searchCorpus())
	rec, resp := doJSON(t, h.Search, http.MethodPost, "/search", `{"query": "anything"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "KEYWORD_GENERATION_FAILED", resp.Error.Code)
}

func TestSearchHandler_SearchValidation(t *testing.T) {
	t.Parallel()

	h := newHandler(scriptedProvider{}, nil)

	rec, _ := doJSON(t, h.Search, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doJSON(t, h.Search, http.MethodPost, "/search", `{"query": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h.Search, http.MethodPost, "/search", `{"query": "q", "extra": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchHandler_Feedback(t *testing.T) {
	t.Parallel()

	h := newHandler(scriptedProvider{}, searchCorpus())
	rec, _ := doJSON(t, h.Search, http.MethodPost, "/search", `{"query": "how does raft work"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, h.Feedback, http.MethodPost, "/feedback", `{"query": "how does raft work", "rating": 0.9}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	hist := h.pipeline.Tracker().History()
	require.Len(t, hist, 1)
	assert.True(t, hist[0].HasFeedback)
	assert.InDelta(t, 0.9, hist[0].UserFeedback, 1e-9)
}

func TestSearchHandler_FeedbackValidation(t *testing.T) {
	t.Parallel()

	h := newHandler(scriptedProvider{}, nil)

	rec, _ := doJSON(t, h.Feedback, http.MethodPost, "/feedback", `{"query": "q", "rating": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h.Feedback, http.MethodPost, "/feedback", `{"query": "", "rating": 0.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h.Feedback, http.MethodPost, "/feedback", `{"query": "never searched", "rating": 0.5}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchHandler_Recommendations(t *testing.T) {
	t.Parallel()

	h := newHandler(scriptedProvider{}, nil)
	rec, resp := doJSON(t, h.Recommendations, http.MethodGet, "/recommendations", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotNil(t, data["recommendations"], "empty list rather than null")
}

func TestSearchHandler_QualityHistory(t *testing.T) {
	t.Parallel()

	h := newHandler(scriptedProvider{}, searchCorpus())
	rec, _ := doJSON(t, h.Search, http.MethodPost, "/search", `{"query": "how does raft work"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, h.QualityHistory, http.MethodGet, "/quality", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)
}
