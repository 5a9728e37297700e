package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func TestUnavailableProvider(t *testing.T) {
	t.Parallel()

	var p Provider = UnavailableProvider{}
	_, err := p.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, types.ErrCollaboratorUnavailable, types.GetErrorCode(err))

	_, err = p.Embed(context.Background(), []string{"a"})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGeminiProvider_Complete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, ":generateContent")
		resp := geminiGenerateResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{Text: "hello "}, {Text: "world"}}},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL}, nil)
	out, err := p.Complete(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestGeminiProvider_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := geminiEmbedResponse{}
		for range req.Requests {
			resp.Embeddings = append(resp.Embeddings, struct {
				Values []float64 `json:"values"`
			}{Values: []float64{0.1, 0.2}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float64{0.1, 0.2}, vecs[0])
}

func TestGeminiProvider_ServerErrorRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := p.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestGeminiProvider_ConnectionRefused(t *testing.T) {
	t.Parallel()

	p := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := p.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrCollaboratorUnavailable, types.GetErrorCode(err))
}
