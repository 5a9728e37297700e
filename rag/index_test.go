package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

// axisVec maps marker words to orthogonal unit vectors so similarity
// outcomes are exact.
func axisVec(text string) []float64 {
	switch {
	case strings.Contains(text, "alpha"):
		return []float64{1, 0, 0}
	case strings.Contains(text, "beta"):
		return []float64{0, 1, 0}
	default:
		return []float64{0, 0, 1}
	}
}

func axisEmbedder() *stubProvider {
	return &stubProvider{
		embed: func(_ context.Context, texts []string) ([][]float64, error) {
			vecs := make([][]float64, len(texts))
			for i, txt := range texts {
				vecs[i] = axisVec(txt)
			}
			return vecs, nil
		},
	}
}

func testDocs() []types.RawDocument {
	return []types.RawDocument{
		{ID: "1", Content: "alpha notes on the first topic", Source: "document_store", Title: "Alpha"},
		{ID: "2", Content: "beta notes on the second topic", Source: "web", Title: "Beta"},
		{ID: "3", Content: "gamma notes on the third topic", Source: "web", Title: "Gamma"},
	}
}

func TestBuildIndex(t *testing.T) {
	t.Parallel()

	ix, err := BuildIndex(context.Background(), testDocs(), NewSplitter(types.ChunkConfig{Size: 1000}, nil), axisEmbedder(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Size())
	assert.False(t, ix.Unscored())
}

func TestBuildIndex_EmptyDocs(t *testing.T) {
	t.Parallel()

	ix, err := BuildIndex(context.Background(), nil, NewSplitter(types.ChunkConfig{}, nil), axisEmbedder(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Size())

	hits, err := ix.Search(context.Background(), "anything", types.RetrievalConfig{K: 3, FetchK: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBuildIndex_UnavailableEmbedder(t *testing.T) {
	t.Parallel()

	ix, err := BuildIndex(context.Background(), testDocs(), NewSplitter(types.ChunkConfig{Size: 1000}, nil), &stubProvider{}, nil)
	require.NoError(t, err, "unavailable embedder is not fatal")
	assert.True(t, ix.Unscored())

	hits, err := ix.Search(context.Background(), "beta topic", types.RetrievalConfig{K: 5, FetchK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "beta notes on the second topic", hits[0].Content)
	for _, h := range hits {
		assert.True(t, h.Unscored)
	}
}

func TestBuildIndex_HardEmbedFailure(t *testing.T) {
	t.Parallel()

	broken := &stubProvider{
		embed: func(_ context.Context, _ []string) ([][]float64, error) {
			return nil, errors.New("disk on fire")
		},
	}
	_, err := BuildIndex(context.Background(), testDocs(), NewSplitter(types.ChunkConfig{Size: 1000}, nil), broken, nil)
	require.Error(t, err)
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	ix, err := BuildIndex(context.Background(), testDocs(), NewSplitter(types.ChunkConfig{Size: 1000}, nil), axisEmbedder(), nil)
	require.NoError(t, err)

	hits, err := ix.Search(context.Background(), "alpha", types.RetrievalConfig{K: 2, FetchK: 3, LambdaMult: 0.5})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "alpha notes on the first topic", hits[0].Content)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9, "identical vector scores 1/(1+0)")
	assert.InDelta(t, 0.5, hits[1].Similarity, 1e-9, "orthogonal vector scores 1/(1+1)")
	assert.InDelta(t, 0.0, hits[0].RawDistance, 1e-9)
	assert.InDelta(t, 1.0, hits[1].RawDistance, 1e-9)
	assert.Equal(t, "alpha", hits[0].MatchedQuery)
	assert.Equal(t, "Alpha", hits[0].Title)
	assert.False(t, hits[0].Unscored)
}

func TestIndex_SearchMMRPrefersDiverse(t *testing.T) {
	t.Parallel()

	docs := []types.RawDocument{
		{ID: "1", Content: "alpha view one"},
		{ID: "2", Content: "alpha view two"},
		{ID: "3", Content: "beta counterpoint"},
	}
	ix, err := BuildIndex(context.Background(), docs, NewSplitter(types.ChunkConfig{Size: 1000}, nil), axisEmbedder(), nil)
	require.NoError(t, err)

	hits, err := ix.Search(context.Background(), "alpha", types.RetrievalConfig{K: 2, FetchK: 3, LambdaMult: 0.5})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "alpha view one", hits[0].Content)
	assert.Equal(t, "beta counterpoint", hits[1].Content,
		"the second alpha chunk is redundant, the beta chunk wins")
}

func TestIndex_SearchQueryEmbedFallback(t *testing.T) {
	t.Parallel()

	calls := 0
	provider := &stubProvider{
		embed: func(_ context.Context, texts []string) ([][]float64, error) {
			calls++
			if calls > 1 {
				return nil, types.NewError(types.ErrCollaboratorUnavailable, "gone away")
			}
			vecs := make([][]float64, len(texts))
			for i, txt := range texts {
				vecs[i] = axisVec(txt)
			}
			return vecs, nil
		},
	}
	ix, err := BuildIndex(context.Background(), testDocs(), NewSplitter(types.ChunkConfig{Size: 1000}, nil), provider, nil)
	require.NoError(t, err)
	assert.False(t, ix.Unscored())

	hits, err := ix.Search(context.Background(), "gamma topic", types.RetrievalConfig{K: 3, FetchK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.True(t, hits[0].Unscored, "query-time embedder loss degrades to lexical scoring")
	assert.Equal(t, "gamma notes on the third topic", hits[0].Content)
	assert.Equal(t, "gamma topic", hits[0].MatchedQuery)
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosine(nil, nil))
	assert.Equal(t, 0.0, cosine([]float64{1}, []float64{1, 2}), "mismatched dimensions")
	assert.Equal(t, 0.0, cosine([]float64{0, 0}, []float64{1, 2}), "zero vector")
}

func TestDistanceClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, distance([]float64{1, 2}, []float64{2, 4}), "negative raw distance clamps to zero")
	assert.InDelta(t, 2.0, distance([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.InDelta(t, 1.0/3.0, similarityFromDistance(2), 1e-9)
}

func TestTermSet(t *testing.T) {
	t.Parallel()

	set := termSet(`Go's scheduler, explained! (in depth) a`)
	_, hasScheduler := set["scheduler"]
	assert.True(t, hasScheduler, "punctuation is stripped")
	_, hasA := set["a"]
	assert.False(t, hasA, "single-rune terms are dropped")
}
