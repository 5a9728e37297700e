package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQueryAnalysis(t *testing.T) {
	t.Parallel()

	a := DefaultQueryAnalysis("how do neural networks learn")
	assert.Equal(t, IntentInformational, a.Intent)
	assert.Equal(t, ComplexityMedium, a.Complexity)
	assert.Equal(t, ScopeMedium, a.Scope)
	assert.Equal(t, StrategyComprehensive, a.Strategy)
	require.Len(t, a.KeyConcepts, 1)
	assert.Equal(t, "how do neural networks learn", a.KeyConcepts[0])
}

func TestKeywordHierarchy_Flatten(t *testing.T) {
	t.Parallel()

	h := KeywordHierarchy{
		Primary:   []string{"machine learning", "Transformers"},
		Secondary: []string{"attention", "machine learning", "BERT"},
		Context:   []string{"NLP", "transformers"},
		Negative:  []string{"spam"},
	}

	flat := h.Flatten(20)
	assert.Equal(t, []string{"machine learning", "Transformers", "attention", "BERT", "NLP"}, flat)
	for _, kw := range flat {
		assert.NotEqual(t, "spam", strings.ToLower(kw), "negative terms must not leak into the flat list")
	}
}

func TestKeywordHierarchy_FlattenCap(t *testing.T) {
	t.Parallel()

	h := KeywordHierarchy{}
	for i := 0; i < 30; i++ {
		h.Secondary = append(h.Secondary, strings.Repeat("a", i+1))
	}
	assert.Len(t, h.Flatten(20), 20)
}

func TestKeywordHierarchy_FlattenSkipsBlank(t *testing.T) {
	t.Parallel()

	h := KeywordHierarchy{Primary: []string{"  ", "", "go"}}
	assert.Equal(t, []string{"go"}, h.Flatten(20))
}
