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

func TestKeywordGenerator_Generate(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		complete: func(_ context.Context, _ string) (string, error) {
			return `{
				"primary_keywords": ["raft", "consensus"],
				"secondary_keywords": ["leader election", "log replication"],
				"context_keywords": ["distributed systems"],
				"negative_keywords": ["paxos"],
				"confidence": 0.85
			}`, nil
		},
	}
	g := NewKeywordGenerator(provider, nil)

	h, err := g.Generate(context.Background(), "how does raft work", types.DefaultQueryAnalysis("how does raft work"))
	require.NoError(t, err)
	assert.Equal(t, []string{"raft", "consensus"}, h.Primary)
	assert.Equal(t, []string{"leader election", "log replication"}, h.Secondary)
	assert.Equal(t, []string{"distributed systems"}, h.Context)
	assert.Equal(t, []string{"paxos"}, h.Negative)
	assert.InDelta(t, 0.85, h.Confidence, 1e-9)
}

func TestKeywordGenerator_GenerateCallFailure(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		complete: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("connection reset")
		},
	}
	g := NewKeywordGenerator(provider, nil)

	_, err := g.Generate(context.Background(), "q", types.DefaultQueryAnalysis("q"))
	require.Error(t, err)
	assert.Equal(t, types.ErrKeywordGeneration, types.GetErrorCode(err))
}

func TestKeywordGenerator_GenerateUnparseableOutput(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		complete: func(_ context.Context, _ string) (string, error) {
			return "no json here at all", nil
		},
	}
	g := NewKeywordGenerator(provider, nil)

	_, err := g.Generate(context.Background(), "q", types.DefaultQueryAnalysis("q"))
	require.Error(t, err)
	assert.Equal(t, types.ErrKeywordGeneration, types.GetErrorCode(err))
}

func TestKeywordGenerator_GenerateEmptyPrimary(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		complete: func(_ context.Context, _ string) (string, error) {
			return `{"primary_keywords": ["  ", ""], "secondary_keywords": ["something"]}`, nil
		},
	}
	g := NewKeywordGenerator(provider, nil)

	_, err := g.Generate(context.Background(), "q", types.DefaultQueryAnalysis("q"))
	require.Error(t, err)
	assert.Equal(t, types.ErrKeywordGeneration, types.GetErrorCode(err))
}

func TestNormalizeHierarchy(t *testing.T) {
	t.Parallel()

	resp := keywordResponse{
		Primary:    []string{"go", "Concurrency", "channels", "goroutines", "select", "sixth"},
		Secondary:  []string{"GO", "mutex", "waitgroup"},
		Context:    []string{"mutex", "runtime"},
		Negative:   []string{"java", "python", "c++", "rust"},
		Confidence: 1.7,
	}
	h := normalizeHierarchy(resp)

	assert.Len(t, h.Primary, 4, "primary capped at four")
	assert.Equal(t, []string{"mutex", "waitgroup"}, h.Secondary, "cross-tier duplicates removed, earlier tier wins")
	assert.Equal(t, []string{"runtime"}, h.Context)
	assert.Len(t, h.Negative, 3, "negative capped at three")
	assert.Equal(t, 1.0, h.Confidence, "confidence clamped")

	h = normalizeHierarchy(keywordResponse{Primary: []string{"x"}, Confidence: -0.3})
	assert.Equal(t, 0.0, h.Confidence)
}

func TestKeywordGenerator_GenerateQueries(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		complete: func(_ context.Context, prompt string) (string, error) {
			if strings.Contains(prompt, "different angles") {
				return `["what are go channels", "go channel internals", "WHAT ARE GO CHANNELS"]`, nil
			}
			return "", errors.New("unexpected prompt")
		},
	}
	g := NewKeywordGenerator(provider, nil)

	queries := g.GenerateQueries(context.Background(), "go channels", types.KeywordHierarchy{})
	assert.Equal(t, "go channels", queries[0], "original query comes first")
	assert.Equal(t, []string{"go channels", "what are go channels", "go channel internals"}, queries,
		"case-insensitive duplicates are dropped")
}

func TestKeywordGenerator_GenerateQueriesFallback(t *testing.T) {
	t.Parallel()

	g := NewKeywordGenerator(&stubProvider{}, nil)

	queries := g.GenerateQueries(context.Background(), "go channels", types.KeywordHierarchy{
		Primary: []string{"go", "channels"},
	})
	assert.Equal(t, []string{
		"go channels",
		"What is go channels?",
		"How does go channels work?",
		"go channels overview",
		"go channels examples",
	}, queries)
}

func TestDedupeQueriesCap(t *testing.T) {
	t.Parallel()

	var many []string
	for i := 0; i < 40; i++ {
		many = append(many, strings.Repeat("q", i+1))
	}
	assert.Len(t, dedupeQueries("original", many), maxSearchQueries)
}
